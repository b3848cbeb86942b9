package baseds

import (
	"context"
	"errors"
	"testing"
)

// secondContent is a one-sample dataset matching the fixture's chromosome
// and context types, used for sample-axis concatenation. Counts are
// 1000 + mc*100 + position.
func secondContent() ChromContent {
	c := testContent()
	c.Samples = []string{"s3"}

	const nmc, size = 3, 10
	counts := make([]int32, nmc*size)
	for mc := 0; mc < nmc; mc++ {
		for p := 0; p < size; p++ {
			counts[mc*size+p] = int32(1000 + mc*100 + p)
		}
	}
	c.Counts = counts
	return c
}

func TestOpenChrom_RequiresPath(t *testing.T) {
	ctx := context.Background()
	if _, err := OpenChrom(ctx, NewMemory(), nil); err == nil {
		t.Error("expected error for empty path list")
	}
}

func TestOpenChrom_WithWindow(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	if err := CreateChrom(ctx, store, "ds/chr1", testContent()); err != nil {
		t.Fatalf("CreateChrom failed: %v", err)
	}

	ds, err := OpenChrom(ctx, store, []string{"ds/chr1"}, WithWindow(2, 6))
	if err != nil {
		t.Fatalf("OpenChrom failed: %v", err)
	}
	if !ds.Continuous() || ds.Offset() != 2 {
		t.Errorf("expected continuous dataset at offset 2, got continuous=%v offset=%d", ds.Continuous(), ds.Offset())
	}
	checkPositions(t, ds, 2, 3, 4, 5)
}

func TestOpenChrom_WithObsDim(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	if err := CreateChrom(ctx, store, "ds/chr1", testContent()); err != nil {
		t.Fatalf("CreateChrom failed: %v", err)
	}

	ds, err := OpenChrom(ctx, store, []string{"ds/chr1"}, WithObsDim("cell_id"))
	if err != nil {
		t.Fatalf("OpenChrom failed: %v", err)
	}
	if ds.ObsDim() != "cell_id" {
		t.Errorf("expected obs dim cell_id, got %s", ds.ObsDim())
	}
}

// -----------------------------------------------------------------------------
// Multi-path sample concatenation
// -----------------------------------------------------------------------------

func TestOpenChrom_MultiPathConcatenatesSamples(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	if err := CreateChrom(ctx, store, "a/chr1", testContent()); err != nil {
		t.Fatalf("CreateChrom a failed: %v", err)
	}
	if err := CreateChrom(ctx, store, "b/chr1", secondContent()); err != nil {
		t.Fatalf("CreateChrom b failed: %v", err)
	}

	ds, err := OpenChrom(ctx, store, []string{"a/chr1", "b/chr1"})
	if err != nil {
		t.Fatalf("OpenChrom failed: %v", err)
	}

	names := ds.SampleNames()
	if len(names) != 3 || names[0] != "s1" || names[1] != "s2" || names[2] != "s3" {
		t.Fatalf("expected samples [s1 s2 s3], got %v", names)
	}

	buf, err := ds.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	// Row-major (context x sample x position) with 3 samples now.
	for mc := 0; mc < 3; mc++ {
		for p := int64(0); p < 10; p++ {
			if got := buf[(mc*3+0)*10+int(p)]; got != countVal(mc, 0, p) {
				t.Fatalf("(%d,s1,%d): expected %d, got %d", mc, p, countVal(mc, 0, p), got)
			}
			if got := buf[(mc*3+2)*10+int(p)]; got != int32(1000+mc*100)+int32(p) {
				t.Fatalf("(%d,s3,%d): expected %d, got %d", mc, p, int32(1000+mc*100)+int32(p), got)
			}
		}
	}
}

func TestOpenChrom_MultiPathChromMismatch(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	if err := CreateChrom(ctx, store, "a/chr1", testContent()); err != nil {
		t.Fatalf("CreateChrom a failed: %v", err)
	}
	other := secondContent()
	other.Chrom = "chr2"
	if err := CreateChrom(ctx, store, "b/chr2", other); err != nil {
		t.Fatalf("CreateChrom b failed: %v", err)
	}

	if _, err := OpenChrom(ctx, store, []string{"a/chr1", "b/chr2"}); err == nil {
		t.Error("expected error for mismatched chromosomes")
	}
}

// -----------------------------------------------------------------------------
// Codebook resolution
// -----------------------------------------------------------------------------

func TestOpenChrom_NoCodebook(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	c := testContent()
	c.Codebook = nil
	if err := CreateChrom(ctx, store, "ds/chr1", c); err != nil {
		t.Fatalf("CreateChrom failed: %v", err)
	}

	if _, err := OpenChrom(ctx, store, []string{"ds/chr1"}); !errors.Is(err, ErrNoCodebook) {
		t.Errorf("expected ErrNoCodebook, got %v", err)
	}
}

func TestOpenChrom_ExternalCodebook(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	c := testContent()
	codebook := c.Codebook
	c.Codebook = nil
	if err := CreateChrom(ctx, store, "ds/chr1", c); err != nil {
		t.Fatalf("CreateChrom failed: %v", err)
	}

	err := CreateCodebook(ctx, store, "cb/chr1", CodebookContent{
		Chrom:          c.Chrom,
		ChromSize:      c.ChromSize,
		ContextTypes:   c.ContextTypes,
		CytosineOffset: c.CytosineOffset,
		ContextLength:  c.ContextLength,
		Values:         codebook,
		PosChunk:       4,
	})
	if err != nil {
		t.Fatalf("CreateCodebook failed: %v", err)
	}

	ds, err := OpenChrom(ctx, store, []string{"ds/chr1"}, WithCodebookPath("cb/chr1"))
	if err != nil {
		t.Fatalf("OpenChrom failed: %v", err)
	}

	got, err := ds.SelectMCType(ctx, "CGN")
	if err != nil {
		t.Fatalf("SelectMCType failed: %v", err)
	}
	checkPositions(t, got, 1, 4, 7)
}

func TestOpenChrom_IncompatibleCodebook_ContextTypes(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	c := testContent()
	codebook := c.Codebook
	c.Codebook = nil
	if err := CreateChrom(ctx, store, "ds/chr1", c); err != nil {
		t.Fatalf("CreateChrom failed: %v", err)
	}

	err := CreateCodebook(ctx, store, "cb/chr1", CodebookContent{
		Chrom:          c.Chrom,
		ChromSize:      c.ChromSize,
		ContextTypes:   []string{"CGA", "CAA", "CGT"}, // reordered
		CytosineOffset: c.CytosineOffset,
		ContextLength:  c.ContextLength,
		Values:         codebook,
	})
	if err != nil {
		t.Fatalf("CreateCodebook failed: %v", err)
	}

	_, err = OpenChrom(ctx, store, []string{"ds/chr1"}, WithCodebookPath("cb/chr1"))
	if !errors.Is(err, ErrIncompatibleCodebook) {
		t.Errorf("expected ErrIncompatibleCodebook, got %v", err)
	}
}

func TestOpenChrom_IncompatibleCodebook_PositionAxis(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	c := testContent()
	c.Codebook = nil
	if err := CreateChrom(ctx, store, "ds/chr1", c); err != nil {
		t.Fatalf("CreateChrom failed: %v", err)
	}

	short := make([]int8, 3*8)
	err := CreateCodebook(ctx, store, "cb/chr1", CodebookContent{
		Chrom:          c.Chrom,
		ChromSize:      8, // dataset spans 10 positions
		ContextTypes:   c.ContextTypes,
		CytosineOffset: c.CytosineOffset,
		ContextLength:  c.ContextLength,
		Values:         short,
	})
	if err != nil {
		t.Fatalf("CreateCodebook failed: %v", err)
	}

	_, err = OpenChrom(ctx, store, []string{"ds/chr1"}, WithCodebookPath("cb/chr1"))
	if !errors.Is(err, ErrIncompatibleCodebook) {
		t.Errorf("expected ErrIncompatibleCodebook, got %v", err)
	}
}
