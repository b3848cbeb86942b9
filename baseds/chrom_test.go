package baseds

import (
	"context"
	"errors"
	"testing"
)

// -----------------------------------------------------------------------------
// Fixture
//
// One 10 bp chromosome, 3 context types, 2 samples, position chunks of 4.
// Counts are mc*100 + sample*10 + position, so any gather mistake shows up
// as a wrong value. Codebook matches: CGA at 1 and 7, CGT at 4, CAA at 3.
// -----------------------------------------------------------------------------

func testContent() ChromContent {
	const nmc, ns, size = 3, 2, 10

	counts := make([]int32, nmc*ns*size)
	for mc := 0; mc < nmc; mc++ {
		for s := 0; s < ns; s++ {
			for p := 0; p < size; p++ {
				counts[(mc*ns+s)*size+p] = countVal(mc, s, int64(p))
			}
		}
	}

	codebook := make([]int8, nmc*size)
	codebook[0*size+1] = 1
	codebook[0*size+7] = 1
	codebook[1*size+4] = -1
	codebook[2*size+3] = 1

	return ChromContent{
		Chrom:          "chr1",
		ChromSize:      size,
		Samples:        []string{"s1", "s2"},
		ContextTypes:   []string{"CGA", "CGT", "CAA"},
		CytosineOffset: 0,
		ContextLength:  3,
		Counts:         counts,
		Codebook:       codebook,
		PosChunk:       4,
	}
}

func countVal(mc, s int, p int64) int32 {
	return int32(mc*100+s*10) + int32(p)
}

func testDataset(t *testing.T) *ChromDataset {
	t.Helper()
	ctx := context.Background()
	store := NewMemory()

	if err := CreateChrom(ctx, store, "ds/chr1", testContent()); err != nil {
		t.Fatalf("CreateChrom failed: %v", err)
	}
	ds, err := OpenChrom(ctx, store, []string{"ds/chr1"})
	if err != nil {
		t.Fatalf("OpenChrom failed: %v", err)
	}
	return ds
}

func checkPositions(t *testing.T, ds *ChromDataset, want ...int64) {
	t.Helper()
	got := ds.Positions()
	if len(got) != len(want) {
		t.Fatalf("expected positions %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected positions %v, got %v", want, got)
		}
	}
}

// checkCounts verifies the materialized count buffer against the fixture
// formula for the given absolute positions.
func checkCounts(t *testing.T, ctx context.Context, ds *ChromDataset, positions []int64) {
	t.Helper()
	buf, err := ds.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	n := len(positions)
	if len(buf) != 3*2*n {
		t.Fatalf("expected %d values, got %d", 3*2*n, len(buf))
	}
	for mc := 0; mc < 3; mc++ {
		for s := 0; s < 2; s++ {
			for k, p := range positions {
				want := countVal(mc, s, p)
				have := buf[(mc*2+s)*n+k]
				if have != want {
					t.Fatalf("(%d,%d,%d): expected %d, got %d", mc, s, p, want, have)
				}
			}
		}
	}
}

// -----------------------------------------------------------------------------
// Accessors
// -----------------------------------------------------------------------------

func TestOpenChrom_Accessors(t *testing.T) {
	ds := testDataset(t)

	if ds.Chrom() != "chr1" {
		t.Errorf("expected chrom chr1, got %s", ds.Chrom())
	}
	if ds.ChromSize() != 10 {
		t.Errorf("expected size 10, got %d", ds.ChromSize())
	}
	if ds.ObsDim() != "sample_id" {
		t.Errorf("expected obs dim sample_id, got %s", ds.ObsDim())
	}
	if ds.NumSamples() != 2 {
		t.Errorf("expected 2 samples, got %d", ds.NumSamples())
	}
	if !ds.Continuous() || ds.Offset() != 0 {
		t.Errorf("expected continuous dataset at offset 0, got continuous=%v offset=%d", ds.Continuous(), ds.Offset())
	}
	if ds.NumPositions() != 10 {
		t.Errorf("expected 10 positions, got %d", ds.NumPositions())
	}
}

func TestChromDataset_ChunkRegions(t *testing.T) {
	ds := testDataset(t)

	regions := ds.ChunkRegions()
	if len(regions) != 3 {
		t.Fatalf("expected 3 chunk regions, got %d", len(regions))
	}
	if regions[0].Start != 0 || regions[0].End != 4 {
		t.Errorf("unexpected first chunk region %+v", regions[0])
	}
	if regions[2].Start != 8 || regions[2].End != 10 {
		t.Errorf("unexpected last chunk region %+v", regions[2])
	}
}

func TestChromDataset_Counts_FullWindow(t *testing.T) {
	ds := testDataset(t)
	checkCounts(t, context.Background(), ds, []int64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9})
}

// -----------------------------------------------------------------------------
// Fetch
// -----------------------------------------------------------------------------

func TestFetch_ContinuousWindow(t *testing.T) {
	ctx := context.Background()
	ds := testDataset(t)

	got, err := ds.Fetch(ctx, 2, 6)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if !got.Continuous() {
		t.Error("expected window of a continuous dataset to stay continuous")
	}
	if got.Offset() != 2 {
		t.Errorf("expected offset 2, got %d", got.Offset())
	}
	checkPositions(t, got, 2, 3, 4, 5)
	checkCounts(t, ctx, got, []int64{2, 3, 4, 5})
}

func TestFetch_Nested(t *testing.T) {
	ctx := context.Background()
	ds := testDataset(t)

	outer, err := ds.Fetch(ctx, 2, 8)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	inner, err := outer.Fetch(ctx, 4, 6)
	if err != nil {
		t.Fatalf("nested Fetch failed: %v", err)
	}
	if inner.Offset() != 4 {
		t.Errorf("expected offset 4, got %d", inner.Offset())
	}
	checkPositions(t, inner, 4, 5)
	checkCounts(t, ctx, inner, []int64{4, 5})
}

func TestFetch_ClampsToWindow(t *testing.T) {
	ctx := context.Background()
	ds := testDataset(t)

	got, err := ds.Fetch(ctx, 5, 100)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	checkPositions(t, got, 5, 6, 7, 8, 9)
}

func TestFetch_OmittedBounds(t *testing.T) {
	ctx := context.Background()
	ds := testDataset(t)

	got, err := ds.Fetch(ctx, -1, 3)
	if err != nil {
		t.Fatalf("Fetch with omitted start failed: %v", err)
	}
	checkPositions(t, got, 0, 1, 2)

	got, err = ds.Fetch(ctx, 7, -1)
	if err != nil {
		t.Fatalf("Fetch with omitted end failed: %v", err)
	}
	checkPositions(t, got, 7, 8, 9)
}

func TestFetch_InvalidRange(t *testing.T) {
	ctx := context.Background()
	ds := testDataset(t)

	if _, err := ds.Fetch(ctx, -1, -1); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("both omitted: expected ErrInvalidRange, got %v", err)
	}
	if _, err := ds.Fetch(ctx, 6, 6); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("start == end: expected ErrInvalidRange, got %v", err)
	}
	if _, err := ds.Fetch(ctx, 8, 2); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("start > end: expected ErrInvalidRange, got %v", err)
	}
}

func TestFetch_SparseIntersects(t *testing.T) {
	ctx := context.Background()
	ds := testDataset(t)

	sparse, err := ds.FetchPositions(ctx, []int64{1, 4, 7})
	if err != nil {
		t.Fatalf("FetchPositions failed: %v", err)
	}

	got, err := sparse.Fetch(ctx, 0, 5)
	if err != nil {
		t.Fatalf("Fetch on sparse failed: %v", err)
	}
	if got.Continuous() {
		t.Error("expected sparse dataset to stay sparse")
	}
	checkPositions(t, got, 1, 4)
	checkCounts(t, ctx, got, []int64{1, 4})
}

// -----------------------------------------------------------------------------
// FetchPositions
// -----------------------------------------------------------------------------

func TestFetchPositions_SortsAndKeepsDuplicates(t *testing.T) {
	ctx := context.Background()
	ds := testDataset(t)

	got, err := ds.FetchPositions(ctx, []int64{7, 1, 4, 4})
	if err != nil {
		t.Fatalf("FetchPositions failed: %v", err)
	}
	if got.Continuous() {
		t.Error("expected sparse result")
	}
	checkPositions(t, got, 1, 4, 4, 7)
	checkCounts(t, ctx, got, []int64{1, 4, 4, 7})
}

func TestFetchPositions_Empty(t *testing.T) {
	ctx := context.Background()
	ds := testDataset(t)

	got, err := ds.FetchPositions(ctx, nil)
	if err != nil {
		t.Fatalf("FetchPositions failed: %v", err)
	}
	if got.Continuous() || got.NumPositions() != 0 {
		t.Errorf("expected empty sparse result, got continuous=%v n=%d", got.Continuous(), got.NumPositions())
	}
}

func TestFetchPositions_OutOfRange(t *testing.T) {
	ctx := context.Background()
	ds := testDataset(t)

	if _, err := ds.FetchPositions(ctx, []int64{3, 11}); !errors.Is(err, ErrPositionOutOfRange) {
		t.Errorf("expected ErrPositionOutOfRange, got %v", err)
	}
}

func TestFetchPositions_SparseStrict(t *testing.T) {
	ctx := context.Background()
	ds := testDataset(t)

	sparse, err := ds.FetchPositions(ctx, []int64{1, 4, 7})
	if err != nil {
		t.Fatalf("FetchPositions failed: %v", err)
	}

	// Re-selecting a stored subset works.
	got, err := sparse.FetchPositions(ctx, []int64{7, 1})
	if err != nil {
		t.Fatalf("FetchPositions on sparse failed: %v", err)
	}
	checkPositions(t, got, 1, 7)
	checkCounts(t, ctx, got, []int64{1, 7})

	// Position 2 exists on the chromosome but not in the sparse set.
	if _, err := sparse.FetchPositions(ctx, []int64{2}); !errors.Is(err, ErrPositionOutOfRange) {
		t.Errorf("expected ErrPositionOutOfRange, got %v", err)
	}
}

func TestFetchPositions_IdempotentOnWindow(t *testing.T) {
	ctx := context.Background()
	ds := testDataset(t)

	window, err := ds.Fetch(ctx, 3, 8)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	got, err := window.FetchPositions(ctx, []int64{4, 6})
	if err != nil {
		t.Fatalf("FetchPositions failed: %v", err)
	}
	checkPositions(t, got, 4, 6)
	checkCounts(t, ctx, got, []int64{4, 6})

	// Positions outside the narrowed window are rejected even though they
	// exist on the chromosome.
	if _, err := window.FetchPositions(ctx, []int64{1}); !errors.Is(err, ErrPositionOutOfRange) {
		t.Errorf("expected ErrPositionOutOfRange, got %v", err)
	}
}

// -----------------------------------------------------------------------------
// FetchRegions
// -----------------------------------------------------------------------------

func TestFetchRegions_UnionIsSparse(t *testing.T) {
	ctx := context.Background()
	ds := testDataset(t)

	got, err := ds.FetchRegions(ctx, NewRegions([][2]int64{{2, 4}, {6, 9}}))
	if err != nil {
		t.Fatalf("FetchRegions failed: %v", err)
	}
	if got.Continuous() {
		t.Error("expected sparse result")
	}
	checkPositions(t, got, 2, 3, 6, 7, 8)
	checkCounts(t, ctx, got, []int64{2, 3, 6, 7, 8})
}

func TestFetchRegions_SingleRegionStillSparse(t *testing.T) {
	ctx := context.Background()
	ds := testDataset(t)

	got, err := ds.FetchRegions(ctx, NewRegions([][2]int64{{2, 5}}))
	if err != nil {
		t.Fatalf("FetchRegions failed: %v", err)
	}
	if got.Continuous() {
		t.Error("expected sparse result even for a single region")
	}
	if got.Offset() != 0 {
		t.Errorf("expected offset 0 on sparse result, got %d", got.Offset())
	}
	checkPositions(t, got, 2, 3, 4)
}

func TestFetchRegions_SparseIntersects(t *testing.T) {
	ctx := context.Background()
	ds := testDataset(t)

	sparse, err := ds.FetchPositions(ctx, []int64{1, 4, 7})
	if err != nil {
		t.Fatalf("FetchPositions failed: %v", err)
	}

	got, err := sparse.FetchRegions(ctx, NewRegions([][2]int64{{0, 5}}))
	if err != nil {
		t.Fatalf("FetchRegions on sparse failed: %v", err)
	}
	checkPositions(t, got, 1, 4)
}

func TestFetchRegions_InvertedContributesNothing(t *testing.T) {
	ctx := context.Background()
	ds := testDataset(t)

	got, err := ds.FetchRegions(ctx, NewRegions([][2]int64{{9, 6}, {2, 4}}))
	if err != nil {
		t.Fatalf("FetchRegions failed: %v", err)
	}
	checkPositions(t, got, 2, 3)
}

// -----------------------------------------------------------------------------
// SelectMCType
// -----------------------------------------------------------------------------

func TestSelectMCType_CGN(t *testing.T) {
	ctx := context.Background()
	ds := testDataset(t)

	got, err := ds.SelectMCType(ctx, "CGN")
	if err != nil {
		t.Fatalf("SelectMCType failed: %v", err)
	}
	if got.Continuous() {
		t.Error("expected sparse result")
	}
	checkPositions(t, got, 1, 4, 7)
	checkCounts(t, ctx, got, []int64{1, 4, 7})
}

func TestSelectMCType_OnWindow(t *testing.T) {
	ctx := context.Background()
	ds := testDataset(t)

	window, err := ds.Fetch(ctx, 3, 10)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	got, err := window.SelectMCType(ctx, "CGN")
	if err != nil {
		t.Fatalf("SelectMCType failed: %v", err)
	}
	checkPositions(t, got, 4, 7)
}

func TestSelectMCType_OnSparse(t *testing.T) {
	ctx := context.Background()
	ds := testDataset(t)

	sparse, err := ds.FetchRegions(ctx, NewRegions([][2]int64{{0, 5}, {6, 10}}))
	if err != nil {
		t.Fatalf("FetchRegions failed: %v", err)
	}
	got, err := sparse.SelectMCType(ctx, "CGN")
	if err != nil {
		t.Fatalf("SelectMCType failed: %v", err)
	}
	checkPositions(t, got, 1, 4, 7)
}

func TestSelectMCType_InvalidPattern(t *testing.T) {
	ctx := context.Background()
	ds := testDataset(t)

	if _, err := ds.SelectMCType(ctx, "GGN"); !errors.Is(err, ErrInvalidPattern) {
		t.Errorf("expected ErrInvalidPattern, got %v", err)
	}
	if _, err := ds.SelectMCType(ctx, "CG"); !errors.Is(err, ErrInvalidPattern) {
		t.Errorf("expected ErrInvalidPattern for short pattern, got %v", err)
	}
}

func TestSelectMCType_NoMatchIsEmpty(t *testing.T) {
	ctx := context.Background()
	ds := testDataset(t)

	got, err := ds.SelectMCType(ctx, "CCC")
	if err != nil {
		t.Fatalf("SelectMCType failed: %v", err)
	}
	if got.NumPositions() != 0 {
		t.Errorf("expected no positions, got %d", got.NumPositions())
	}
}

// -----------------------------------------------------------------------------
// Codebook materialization
// -----------------------------------------------------------------------------

func TestChromDataset_Codebook(t *testing.T) {
	ctx := context.Background()
	ds := testDataset(t)

	cb, err := ds.Codebook(ctx)
	if err != nil {
		t.Fatalf("Codebook failed: %v", err)
	}
	if cb.NumPositions() != 10 {
		t.Errorf("expected 10 positions, got %d", cb.NumPositions())
	}

	matched, err := cb.MatchingPositions("CGN", 0)
	if err != nil {
		t.Fatalf("MatchingPositions failed: %v", err)
	}
	if len(matched) != 3 || matched[0] != 1 || matched[1] != 4 || matched[2] != 7 {
		t.Errorf("expected [1 4 7], got %v", matched)
	}
}

func TestChromDataset_Codebook_SparseLabels(t *testing.T) {
	ctx := context.Background()
	ds := testDataset(t)

	sparse, err := ds.FetchPositions(ctx, []int64{1, 3, 7})
	if err != nil {
		t.Fatalf("FetchPositions failed: %v", err)
	}
	cb, err := sparse.Codebook(ctx)
	if err != nil {
		t.Fatalf("Codebook failed: %v", err)
	}

	matched, err := cb.MatchingPositions("CGN", 0)
	if err != nil {
		t.Fatalf("MatchingPositions failed: %v", err)
	}
	if len(matched) != 2 || matched[0] != 1 || matched[1] != 7 {
		t.Errorf("expected [1 7], got %v", matched)
	}
}
