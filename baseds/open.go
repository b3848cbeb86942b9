package baseds

import (
	"context"
	"fmt"

	"github.com/epiblock/baseds/internal/zarrio"
)

// Storage layout: a chromosome dataset is a group at {base}/{chrom} whose
// ".zattrs" carries the metadata below, with a "data" array
// (context type x sample x position, int32) and optionally a "codebook"
// array (context type x position, int8). External codebook groups hold
// only the codebook array plus matching attributes.
const (
	dataArrayName     = "data"
	codebookArrayName = "codebook"
)

// chromGroupAttrs is the ".zattrs" document of a chromosome group.
type chromGroupAttrs struct {
	Chrom       string   `json:"chrom"`
	ChromSize   int64    `json:"chrom_size"`
	CPos        int      `json:"c_pos"`
	ContextSize int      `json:"context_size"`
	ObsDim      string   `json:"obs_dim,omitempty"`
	MCTypes     []string `json:"mc_type"`
	Samples     []string `json:"sample_id,omitempty"`
	ChunkPos    []int64  `json:"chunk_pos,omitempty"`
}

// -----------------------------------------------------------------------------
// Open options
// -----------------------------------------------------------------------------

type openConfig struct {
	start, end   int64
	codebookPath string
	obsDim       string
}

// OpenOption configures OpenChrom.
type OpenOption func(*openConfig)

// WithWindow restricts the opened dataset to the half-open range
// [start, end). A negative bound defaults like Fetch.
func WithWindow(start, end int64) OpenOption {
	return func(cfg *openConfig) {
		cfg.start, cfg.end = start, end
	}
}

// WithCodebookPath names an external codebook group to use when the
// dataset does not embed one. The group must hold a codebook array whose
// context types and position axis match the dataset.
func WithCodebookPath(path string) OpenOption {
	return func(cfg *openConfig) {
		cfg.codebookPath = path
	}
}

// WithObsDim overrides the sample-axis name when the stored attributes do
// not declare one. Default: "sample_id".
func WithObsDim(name string) OpenOption {
	return func(cfg *openConfig) {
		cfg.obsDim = name
	}
}

// -----------------------------------------------------------------------------
// OpenChrom
// -----------------------------------------------------------------------------

// OpenChrom opens a chromosome dataset from one or more storage paths.
// Multiple paths are treated as one logical dataset concatenated along the
// sample axis; their context types and position axes must agree. The
// returned dataset is continuous with offset 0 (or the window start when
// WithWindow is given). Only metadata is read at open time.
func OpenChrom(ctx context.Context, store Store, paths []string, opts ...OpenOption) (*ChromDataset, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("baseds: at least one storage path is required")
	}

	cfg := &openConfig{start: -1, end: -1}
	for _, opt := range opts {
		opt(cfg)
	}

	var (
		attrs    chromGroupAttrs
		samples  []string
		parts    []countSource
		codebook countSource
	)
	for i, path := range paths {
		var a chromGroupAttrs
		if err := zarrio.ReadAttrs(ctx, store, path, &a); err != nil {
			return nil, err
		}

		arr, err := zarrio.OpenArray(ctx, store, path+"/"+dataArrayName)
		if err != nil {
			return nil, err
		}
		shape := arr.Shape()
		if len(shape) != 3 {
			return nil, fmt.Errorf("baseds: %s: data array must be 3-dimensional, got shape %v", path, shape)
		}
		if int(shape[0]) != len(a.MCTypes) {
			return nil, fmt.Errorf("baseds: %s: data array has %d context rows for %d context types",
				path, shape[0], len(a.MCTypes))
		}
		if int(shape[1]) != len(a.Samples) {
			return nil, fmt.Errorf("baseds: %s: data array has %d sample rows for %d sample labels",
				path, shape[1], len(a.Samples))
		}

		if i == 0 {
			attrs = a
		} else {
			if a.Chrom != attrs.Chrom || a.ChromSize != attrs.ChromSize {
				return nil, fmt.Errorf("baseds: %s: chromosome %s (%d bp) does not match %s (%d bp)",
					path, a.Chrom, a.ChromSize, attrs.Chrom, attrs.ChromSize)
			}
			if !equalStrings(a.MCTypes, attrs.MCTypes) {
				return nil, fmt.Errorf("baseds: %s: context types differ from %s", path, paths[0])
			}
		}
		samples = append(samples, a.Samples...)
		parts = append(parts, newZarrSource(arr))

		if codebook == nil {
			ok, err := zarrio.ArrayExists(ctx, store, path+"/"+codebookArrayName)
			if err != nil {
				return nil, err
			}
			if ok {
				cbArr, err := zarrio.OpenArray(ctx, store, path+"/"+codebookArrayName)
				if err != nil {
					return nil, err
				}
				codebook = newZarrSource(cbArr)
			}
		}
	}

	var counts countSource
	if len(parts) == 1 {
		counts = parts[0]
	} else {
		concat, err := newSampleConcatSource(parts, len(attrs.MCTypes))
		if err != nil {
			return nil, err
		}
		counts = concat
	}

	if codebook == nil {
		if cfg.codebookPath == "" {
			return nil, fmt.Errorf("baseds: %s: %w", paths[0], ErrNoCodebook)
		}
		cb, err := openExternalCodebook(ctx, store, cfg.codebookPath, attrs.MCTypes, counts.posLen())
		if err != nil {
			return nil, err
		}
		codebook = cb
	}
	if codebook.posLen() != counts.posLen() {
		return nil, fmt.Errorf("baseds: codebook position axis %d does not match data %d: %w",
			codebook.posLen(), counts.posLen(), ErrIncompatibleCodebook)
	}

	obsDim := attrs.ObsDim
	if cfg.obsDim != "" {
		obsDim = cfg.obsDim
	}
	if obsDim == "" {
		obsDim = defaultObsDim
	}

	ds := &ChromDataset{
		chrom:        attrs.Chrom,
		chromSize:    attrs.ChromSize,
		obsDim:       obsDim,
		contextTypes: attrs.MCTypes,
		samples:      samples,
		chunkPos:     attrs.ChunkPos,
		cytosinePos:  attrs.CPos,
		contextLen:   attrs.ContextSize,
		continuous:   true,
		offset:       0,
		counts:       counts,
		codebook:     codebook,
	}

	if cfg.start >= 0 || cfg.end >= 0 {
		return ds.Fetch(ctx, cfg.start, cfg.end)
	}
	return ds, nil
}

// openExternalCodebook opens a standalone codebook group and validates it
// against the dataset it will serve. Mismatched context-type ordering or a
// mismatched position axis aborts the open.
func openExternalCodebook(ctx context.Context, store Store, path string, mcTypes []string, posLen int64) (countSource, error) {
	var a chromGroupAttrs
	if err := zarrio.ReadAttrs(ctx, store, path, &a); err != nil {
		return nil, err
	}

	arr, err := zarrio.OpenArray(ctx, store, path+"/"+codebookArrayName)
	if err != nil {
		return nil, err
	}
	shape := arr.Shape()
	if len(shape) != 2 {
		return nil, fmt.Errorf("baseds: %s: codebook array must be 2-dimensional, got shape %v", path, shape)
	}

	if !equalStrings(a.MCTypes, mcTypes) {
		return nil, fmt.Errorf("baseds: %s: codebook context types %v do not match dataset %v: %w",
			path, a.MCTypes, mcTypes, ErrIncompatibleCodebook)
	}
	if shape[1] != posLen {
		return nil, fmt.Errorf("baseds: %s: codebook position axis %d does not match dataset %d: %w",
			path, shape[1], posLen, ErrIncompatibleCodebook)
	}
	if int(shape[0]) != len(mcTypes) {
		return nil, fmt.Errorf("baseds: %s: codebook has %d context rows for %d context types: %w",
			path, shape[0], len(mcTypes), ErrIncompatibleCodebook)
	}

	return newZarrSource(arr), nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
