package baseds

import (
	"context"
	"fmt"
	"sort"
	"strconv"
)

// RegionDataset is count data aggregated into regions: a row-major
// (context type x sample x region) sum of base counts.
type RegionDataset struct {
	Chrom        string
	ContextTypes []string
	Samples      []string

	// RegionDim names the region axis ("pos_bins" unless the caller
	// renamed it or supplied a named region table).
	RegionDim string

	// Labels are the region labels, one per region, in output order.
	Labels []string

	// BinEdges are the bin boundaries the labels were derived from, present
	// only for fixed-size binning.
	BinEdges []int64

	Counts []int64
}

// NumRegions returns the number of aggregated regions.
func (r *RegionDataset) NumRegions() int { return len(r.Labels) }

// CountAt returns the summed count for a (context type, sample, region)
// cell.
func (r *RegionDataset) CountAt(mcType, sample, region int) int64 {
	n := len(r.Labels)
	return r.Counts[(mcType*len(r.Samples)+sample)*n+region]
}

// defaultRegionDim is the region-axis name when none is configured.
const defaultRegionDim = "pos_bins"

// -----------------------------------------------------------------------------
// Options
// -----------------------------------------------------------------------------

type aggregateConfig struct {
	binSize    int64
	regions    Regions
	hasRegions bool
	regionDim  string
	start, end int64
}

// AggregateOption configures AggregateRegions.
type AggregateOption func(*aggregateConfig)

// WithBinSize aggregates into fixed-size bins of the given width.
// Mutually exclusive with WithRegions.
func WithBinSize(binSize int64) AggregateOption {
	return func(cfg *aggregateConfig) {
		cfg.binSize = binSize
	}
}

// WithRegions aggregates into the given region table. Three-column rows
// are filtered to the current chromosome; row names become the output
// labels. Mutually exclusive with WithBinSize.
func WithRegions(regions Regions) AggregateOption {
	return func(cfg *aggregateConfig) {
		cfg.regions = regions
		cfg.hasRegions = true
	}
}

// WithRegionDim names the region axis of the result.
func WithRegionDim(name string) AggregateOption {
	return func(cfg *aggregateConfig) {
		cfg.regionDim = name
	}
}

// WithBounds clips fixed-size binning to [start, end). Only meaningful
// with WithBinSize; defaults to the dataset's position extent.
func WithBounds(start, end int64) AggregateOption {
	return func(cfg *aggregateConfig) {
		cfg.start, cfg.end = start, end
	}
}

// -----------------------------------------------------------------------------
// AggregateRegions
// -----------------------------------------------------------------------------

// AggregateRegions selects the positions matching mcPattern, restricts
// them to the configured regions if any, and sums the count data within
// each region. Exactly one of WithBinSize or WithRegions must be given.
//
// A pattern that matches no position inside the regions is not an error:
// the result has the same region labels and dimensions as a non-empty
// aggregation, filled with zeros. Regions with no contributing positions
// are likewise zero, never absent.
func (d *ChromDataset) AggregateRegions(ctx context.Context, mcPattern string, opts ...AggregateOption) (*RegionDataset, error) {
	cfg := &aggregateConfig{start: -1, end: -1}
	for _, opt := range opts {
		opt(cfg)
	}

	if (cfg.binSize > 0) == cfg.hasRegions {
		return nil, fmt.Errorf("baseds: %w", ErrMissingBinningSpec)
	}
	if cfg.binSize != 0 && cfg.binSize < 2 {
		return nil, fmt.Errorf("baseds: bin size %d must be greater than 1", cfg.binSize)
	}

	var regions Regions
	if cfg.hasRegions {
		regions = cfg.regions.FilterChrom(d.chrom)
		if len(regions) == 0 {
			return nil, fmt.Errorf("baseds: %w", ErrEmptyRegionSet)
		}
		// Bin placement requires monotonic edges.
		for i, reg := range regions {
			if i > 0 && reg.Start < regions[i-1].Start {
				return nil, fmt.Errorf("baseds: region table must be sorted ascending by start (row %d)", i)
			}
		}
	}

	posIdx, err := d.patternPositions(ctx, mcPattern)
	if err != nil {
		return nil, err
	}
	if cfg.hasRegions {
		posIdx = intersectSorted(posIdx, sortedUnique(expandRegions(regions)))
	}

	base, err := d.FetchPositions(ctx, posIdx)
	if err != nil {
		return nil, err
	}

	var bins []int64
	var labels []string
	regionDim := cfg.regionDim
	if cfg.hasRegions {
		// Consecutive regions become consecutive bin edges: region i spans
		// (start_i, start_i+1], with the final edge at the last region's end.
		bins = make([]int64, 0, len(regions)+1)
		for _, reg := range regions {
			bins = append(bins, reg.Start)
			labels = append(labels, reg.Name)
		}
		bins = append(bins, regions[len(regions)-1].End)
		if regionDim == "" {
			regionDim = "region"
		}
	} else {
		bins, err = d.binEdges(cfg.binSize, cfg.start, cfg.end)
		if err != nil {
			return nil, err
		}
		for _, edge := range bins[:len(bins)-1] {
			labels = append(labels, strconv.FormatInt(edge, 10))
		}
		if regionDim == "" {
			regionDim = defaultRegionDim
		}
	}

	out := &RegionDataset{
		Chrom:        d.chrom,
		ContextTypes: d.ContextTypes(),
		Samples:      d.SampleNames(),
		RegionDim:    regionDim,
		Labels:       labels,
		Counts:       make([]int64, len(d.contextTypes)*len(d.samples)*len(labels)),
	}
	if !cfg.hasRegions {
		out.BinEdges = bins
	}

	// Zero-match border case: the zero-filled result already has the same
	// labels and dimensions as a non-empty aggregation.
	if base.NumPositions() == 0 {
		return out, nil
	}

	buf, err := base.Counts(ctx)
	if err != nil {
		return nil, err
	}

	nPos := int(base.NumPositions())
	nBins := len(labels)
	rows := len(d.contextTypes) * len(d.samples)
	for k, p := range base.positions {
		bin, ok := binIndex(bins, p)
		if !ok {
			continue
		}
		for r := 0; r < rows; r++ {
			out.Counts[r*nBins+bin] += int64(buf[r*nPos+k])
		}
	}
	return out, nil
}

// binEdges builds fixed-size bin boundaries: multiples of binSize within
// [start, end], with the last edge snapped up to end and the first snapped
// down to start when misaligned. Negative bounds default to the dataset's
// position extent.
func (d *ChromDataset) binEdges(binSize, start, end int64) ([]int64, error) {
	if start < 0 || end < 0 {
		n := d.counts.posLen()
		if n == 0 {
			return nil, fmt.Errorf("baseds: cannot derive binning bounds from an empty dataset")
		}
		if d.continuous {
			if start < 0 {
				start = d.offset
			}
			if end < 0 {
				end = d.offset + n - 1
			}
		} else {
			if start < 0 {
				start = d.positions[0]
			}
			if end < 0 {
				end = d.positions[len(d.positions)-1]
			}
		}
	}

	var bins []int64
	for i := int64(0); i < d.chromSize; i += binSize {
		if i < start || i > end {
			continue
		}
		bins = append(bins, i)
	}
	if len(bins) == 0 {
		return []int64{start, end}, nil
	}
	if bins[len(bins)-1] < end {
		bins = append(bins, end)
	}
	if bins[0] > start {
		bins = append([]int64{start}, bins...)
	}
	return bins, nil
}

// binIndex places p into right-closed, lowest-inclusive bins:
// bin i covers (bins[i], bins[i+1]], with p == bins[0] included in bin 0.
func binIndex(bins []int64, p int64) (int, bool) {
	j := sort.Search(len(bins), func(i int) bool { return bins[i] >= p })
	switch {
	case j == len(bins):
		return 0, false // beyond the last edge
	case bins[j] == p:
		if j == 0 {
			return 0, true // include lowest
		}
		return j - 1, true
	case j == 0:
		return 0, false // below the first edge
	default:
		return j - 1, true
	}
}

// sortedUnique sorts positions ascending and drops duplicates in place.
func sortedUnique(positions []int64) []int64 {
	sort.Slice(positions, func(i, j int) bool { return positions[i] < positions[j] })
	out := positions[:0]
	var last int64
	for i, p := range positions {
		if i > 0 && p == last {
			continue
		}
		out = append(out, p)
		last = p
	}
	return out
}

// intersectSorted returns the values present in both sorted ascending
// slices.
func intersectSorted(a, b []int64) []int64 {
	var out []int64
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			i++
		case a[i] > b[j]:
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}
