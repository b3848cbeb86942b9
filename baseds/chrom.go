package baseds

import (
	"context"
	"fmt"
	"sort"
)

// defaultObsDim is the sample-axis name used when a dataset does not
// declare one.
const defaultObsDim = "sample_id"

// matchBlock is the position-window step used when streaming the codebook
// for pattern matching, so a whole-chromosome match never materializes the
// full codebook at once.
const matchBlock = 1 << 16

// ChromDataset is per-position, per-sample, per-context methylation count
// data for a single chromosome, backed by chunked storage.
//
// A dataset is either continuous (its position axis is the arithmetic
// sequence Offset, Offset+1, ...) or sparse (an explicit sorted array of
// absolute positions). Continuous datasets narrow lazily: Fetch adjusts
// the window and offset without touching storage. Sparse selection
// materializes exactly the covering window. Once sparse, a dataset never
// becomes continuous again.
//
// Datasets are immutable: every operation returns a new value and copies
// metadata rather than aliasing it.
type ChromDataset struct {
	chrom        string
	chromSize    int64
	obsDim       string
	contextTypes []string
	samples      []string
	chunkPos     []int64
	cytosinePos  int
	contextLen   int

	continuous bool
	offset     int64
	positions  []int64 // nil when continuous

	counts   countSource // (context type x sample) rows
	codebook countSource // context type rows
}

// -----------------------------------------------------------------------------
// Accessors
// -----------------------------------------------------------------------------

// Chrom returns the chromosome name.
func (d *ChromDataset) Chrom() string { return d.chrom }

// ChromSize returns the chromosome length in base pairs.
func (d *ChromDataset) ChromSize() int64 { return d.chromSize }

// ObsDim returns the sample-axis name.
func (d *ChromDataset) ObsDim() string { return d.obsDim }

// SampleNames returns the ordered sample labels.
func (d *ChromDataset) SampleNames() []string {
	out := make([]string, len(d.samples))
	copy(out, d.samples)
	return out
}

// NumSamples returns the sample count.
func (d *ChromDataset) NumSamples() int { return len(d.samples) }

// ContextTypes returns the ordered context-type labels.
func (d *ChromDataset) ContextTypes() []string {
	out := make([]string, len(d.contextTypes))
	copy(out, d.contextTypes)
	return out
}

// Continuous reports whether the position axis is an implicit arithmetic
// sequence starting at Offset.
func (d *ChromDataset) Continuous() bool { return d.continuous }

// Offset returns the absolute genome coordinate of local index 0. It is
// meaningful only for continuous datasets and zero otherwise.
func (d *ChromDataset) Offset() int64 {
	if !d.continuous {
		return 0
	}
	return d.offset
}

// NumPositions returns the length of the position axis.
func (d *ChromDataset) NumPositions() int64 { return d.counts.posLen() }

// Positions returns the absolute genome coordinates of the position axis.
func (d *ChromDataset) Positions() []int64 {
	n := d.counts.posLen()
	out := make([]int64, n)
	if d.continuous {
		for i := int64(0); i < n; i++ {
			out[i] = d.offset + i
		}
		return out
	}
	copy(out, d.positions)
	return out
}

// ChunkBoundaries returns the storage chunk edges of the chromosome, as
// recorded when the dataset was written.
func (d *ChromDataset) ChunkBoundaries() []int64 {
	out := make([]int64, len(d.chunkPos))
	copy(out, d.chunkPos)
	return out
}

// ChunkRegions returns the storage chunk layout as a BED-style region
// table, one region per chunk.
func (d *ChromDataset) ChunkRegions() Regions {
	var out Regions
	for i := 0; i+1 < len(d.chunkPos); i++ {
		out = append(out, Region{
			Name:  fmt.Sprintf("%s:%d", d.chrom, d.chunkPos[i]),
			Chrom: d.chrom,
			Start: d.chunkPos[i],
			End:   d.chunkPos[i+1],
		})
	}
	return out
}

// Counts materializes the current window's count array as a row-major
// (context type x sample x position) buffer.
func (d *ChromDataset) Counts(ctx context.Context) ([]int32, error) {
	return d.counts.readRange(ctx, 0, d.counts.posLen())
}

// Codebook materializes the codebook covering the current window. The
// returned value carries copies of the dataset's context attributes.
func (d *ChromDataset) Codebook(ctx context.Context) (*Codebook, error) {
	n := d.codebook.posLen()
	buf, err := d.codebook.readRange(ctx, 0, n)
	if err != nil {
		return nil, err
	}

	var pos []int64
	if !d.continuous {
		pos = make([]int64, len(d.positions))
		copy(pos, d.positions)
	}

	types := make([]string, len(d.contextTypes))
	copy(types, d.contextTypes)
	return NewCodebook(types, pos, toInt8(buf), d.cytosinePos, d.contextLen)
}

// clone copies the metadata of d; callers overwrite the selection state.
func (d *ChromDataset) clone() *ChromDataset {
	out := *d
	return &out
}

// -----------------------------------------------------------------------------
// Fetch operations
// -----------------------------------------------------------------------------

// Fetch selects the half-open window [start, end). A negative start means
// the chromosome origin; a negative end means the chromosome size. Both
// negative is ErrInvalidRange.
//
// On a continuous dataset this is pure offset arithmetic, independent of
// chromosome size, and the result stays continuous. On a sparse dataset
// the result is the intersection of [start, end) with the position set.
func (d *ChromDataset) Fetch(ctx context.Context, start, end int64) (*ChromDataset, error) {
	if start < 0 && end < 0 {
		return nil, fmt.Errorf("baseds: start and end cannot both be omitted: %w", ErrInvalidRange)
	}
	if start < 0 {
		start = 0
	}
	if end < 0 {
		end = d.chromSize
	}
	if start >= end {
		return nil, fmt.Errorf("baseds: start %d must be less than end %d: %w", start, end, ErrInvalidRange)
	}

	if d.continuous {
		n := d.counts.posLen()
		lo := clamp(start-d.offset, 0, n)
		hi := clamp(end-d.offset, 0, n)
		if hi < lo {
			hi = lo
		}

		out := d.clone()
		out.offset = d.offset + lo
		out.counts = newWindowSource(d.counts, lo, hi)
		out.codebook = newWindowSource(d.codebook, lo, hi)
		return out, nil
	}

	// Sparse: take the contiguous run of stored positions inside the range.
	lo := sort.Search(len(d.positions), func(i int) bool { return d.positions[i] >= start })
	hi := sort.Search(len(d.positions), func(i int) bool { return d.positions[i] >= end })
	kept := make([]int64, hi-lo)
	copy(kept, d.positions[lo:hi])
	return d.selectByIndex(ctx, kept, indexRange(lo, hi))
}

// FetchRegions selects the union of several half-open regions. The result
// is always sparse with a zero offset, even for a single region: a
// multi-region selection cannot be re-expressed as one arithmetic
// progression in general. Inverted intervals contribute nothing.
// Overlapping intervals contribute duplicate positions.
func (d *ChromDataset) FetchRegions(ctx context.Context, regions Regions) (*ChromDataset, error) {
	positions := expandRegions(regions)

	if !d.continuous {
		// Keep only positions present in the sparse set so that region
		// selection is an intersection, matching Fetch.
		kept := positions[:0]
		for _, p := range positions {
			i := sort.Search(len(d.positions), func(i int) bool { return d.positions[i] >= p })
			if i < len(d.positions) && d.positions[i] == p {
				kept = append(kept, p)
			}
		}
		positions = kept
	}

	return d.FetchPositions(ctx, positions)
}

// FetchPositions selects an arbitrary set of absolute genome positions.
// The input may be unsorted and may contain duplicates, which are
// preserved. The result is sparse, with the requested positions (sorted
// ascending) as its position axis. A position outside the current window
// is ErrPositionOutOfRange.
//
// On a continuous source the selection first narrows to the covering range
// [min, max+1) so no unrelated chunk data is materialized.
func (d *ChromDataset) FetchPositions(ctx context.Context, positions []int64) (*ChromDataset, error) {
	sorted := make([]int64, len(positions))
	copy(sorted, positions)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	if len(sorted) == 0 {
		return d.selectByIndex(ctx, nil, nil)
	}

	if d.continuous {
		narrowed, err := d.Fetch(ctx, sorted[0], sorted[len(sorted)-1]+1)
		if err != nil {
			return nil, err
		}
		idx := make([]int64, len(sorted))
		for k, p := range sorted {
			i := p - narrowed.offset
			if i < 0 || i >= narrowed.counts.posLen() {
				return nil, fmt.Errorf("baseds: position %d outside window [%d, %d): %w",
					p, narrowed.offset, narrowed.offset+narrowed.counts.posLen(), ErrPositionOutOfRange)
			}
			idx[k] = i
		}
		return narrowed.selectByIndex(ctx, sorted, idx)
	}

	idx := make([]int64, len(sorted))
	for k, p := range sorted {
		i := sort.Search(len(d.positions), func(i int) bool { return d.positions[i] >= p })
		if i == len(d.positions) || d.positions[i] != p {
			return nil, fmt.Errorf("baseds: position %d not in dataset: %w", p, ErrPositionOutOfRange)
		}
		idx[k] = int64(i)
	}
	return d.selectByIndex(ctx, sorted, idx)
}

// selectByIndex materializes the given local columns into a sparse dataset
// whose position axis is the absolute positions provided.
func (d *ChromDataset) selectByIndex(ctx context.Context, absolute []int64, idx []int64) (*ChromDataset, error) {
	out := d.clone()
	out.continuous = false
	out.offset = 0
	out.positions = absolute

	if len(idx) == 0 {
		out.counts = &memSource{nRow: d.counts.rows()}
		out.codebook = &memSource{nRow: d.codebook.rows()}
		out.positions = []int64{}
		return out, nil
	}

	lo, hi := idx[0], idx[0]+1
	for _, i := range idx {
		if i < lo {
			lo = i
		}
		if i+1 > hi {
			hi = i + 1
		}
	}

	countBuf, err := d.counts.readRange(ctx, lo, hi)
	if err != nil {
		return nil, err
	}
	cbBuf, err := d.codebook.readRange(ctx, lo, hi)
	if err != nil {
		return nil, err
	}

	rel := make([]int64, len(idx))
	for k, i := range idx {
		rel[k] = i - lo
	}

	out.counts = &memSource{
		nRow:  d.counts.rows(),
		width: int64(len(idx)),
		buf:   gatherColumns(countBuf, d.counts.rows(), hi-lo, rel),
	}
	out.codebook = &memSource{
		nRow:  d.codebook.rows(),
		width: int64(len(idx)),
		buf:   gatherColumns(cbBuf, d.codebook.rows(), hi-lo, rel),
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Context-pattern selection
// -----------------------------------------------------------------------------

// SelectMCType selects the positions whose codebook entry matches the
// given methyl-cytosine context pattern (IUPAC codes allowed). The result
// is always sparse.
func (d *ChromDataset) SelectMCType(ctx context.Context, mcPattern string) (*ChromDataset, error) {
	positions, err := d.patternPositions(ctx, mcPattern)
	if err != nil {
		return nil, err
	}
	return d.FetchPositions(ctx, positions)
}

// patternPositions streams the codebook over the current window in blocks
// and collects the absolute positions matching the pattern.
func (d *ChromDataset) patternPositions(ctx context.Context, mcPattern string) ([]int64, error) {
	if _, err := validatePattern(mcPattern, d.contextLen, d.cytosinePos); err != nil {
		return nil, err
	}

	n := d.codebook.posLen()
	var out []int64
	for lo := int64(0); lo < n; lo += matchBlock {
		hi := lo + matchBlock
		if hi > n {
			hi = n
		}

		buf, err := d.codebook.readRange(ctx, lo, hi)
		if err != nil {
			return nil, err
		}

		var labels []int64
		var offset int64
		if d.continuous {
			offset = d.offset + lo
		} else {
			labels = d.positions[lo:hi]
		}

		block, err := NewCodebook(d.contextTypes, labels, toInt8(buf), d.cytosinePos, d.contextLen)
		if err != nil {
			return nil, err
		}
		matched, err := block.MatchingPositions(mcPattern, offset)
		if err != nil {
			return nil, err
		}
		out = append(out, matched...)
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func indexRange(lo, hi int) []int64 {
	out := make([]int64, hi-lo)
	for i := range out {
		out[i] = int64(lo + i)
	}
	return out
}

func toInt8(vals []int32) []int8 {
	out := make([]int8, len(vals))
	for i, v := range vals {
		out[i] = int8(v)
	}
	return out
}
