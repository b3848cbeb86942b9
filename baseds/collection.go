package baseds

import (
	"context"
	"fmt"
	"sync"
)

// Collection is a multi-chromosome façade over one or more chromosome
// dataset stores. Each configured base path holds one group per
// chromosome at {base}/{chrom}; multiple base paths are treated as a
// single logical dataset concatenated along the sample axis.
//
// Chromosome datasets are opened lazily on first access and cached for
// the lifetime of the collection, unbounded and without eviction. The
// cache itself is safe for concurrent use; the cached dataset values are
// immutable, so concurrent reads need no further coordination.
type Collection struct {
	store        Store
	paths        []string
	codebookPath string
	obsDim       string

	mu    sync.Mutex
	cache map[string]*ChromDataset
}

// CollectionOption configures NewCollection.
type CollectionOption func(*Collection)

// WithCollectionCodebook names a base path holding external codebook
// groups at {base}/{chrom}, for datasets that do not embed a codebook.
func WithCollectionCodebook(path string) CollectionOption {
	return func(c *Collection) {
		c.codebookPath = path
	}
}

// WithCollectionObsDim overrides the sample-axis name for datasets whose
// stored attributes do not declare one.
func WithCollectionObsDim(name string) CollectionOption {
	return func(c *Collection) {
		c.obsDim = name
	}
}

// NewCollection creates a collection over the given base paths.
func NewCollection(store Store, paths []string, opts ...CollectionOption) (*Collection, error) {
	if store == nil {
		return nil, fmt.Errorf("baseds: store is required")
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("baseds: at least one base path is required")
	}

	c := &Collection{
		store: store,
		paths: paths,
		cache: make(map[string]*ChromDataset),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Chrom resolves a chromosome to its dataset, opening and caching it on
// first access.
func (c *Collection) Chrom(ctx context.Context, chrom string) (*ChromDataset, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ds, ok := c.cache[chrom]; ok {
		return ds, nil
	}

	paths := make([]string, len(c.paths))
	for i, base := range c.paths {
		paths[i] = base + "/" + chrom
	}

	var opts []OpenOption
	if c.codebookPath != "" {
		opts = append(opts, WithCodebookPath(c.codebookPath+"/"+chrom))
	}
	if c.obsDim != "" {
		opts = append(opts, WithObsDim(c.obsDim))
	}

	ds, err := OpenChrom(ctx, c.store, paths, opts...)
	if err != nil {
		return nil, fmt.Errorf("baseds: opening chromosome %s: %w", chrom, err)
	}
	c.cache[chrom] = ds
	return ds, nil
}

// Fetch selects the half-open window [start, end) on a chromosome.
// Negative bounds default like ChromDataset.Fetch.
func (c *Collection) Fetch(ctx context.Context, chrom string, start, end int64) (*ChromDataset, error) {
	ds, err := c.Chrom(ctx, chrom)
	if err != nil {
		return nil, err
	}
	return ds.Fetch(ctx, start, end)
}

// FetchRegions selects multiple half-open regions on a chromosome.
func (c *Collection) FetchRegions(ctx context.Context, chrom string, regions Regions) (*ChromDataset, error) {
	ds, err := c.Chrom(ctx, chrom)
	if err != nil {
		return nil, err
	}
	return ds.FetchRegions(ctx, regions)
}

// FetchPositions selects an arbitrary set of absolute positions on a
// chromosome.
func (c *Collection) FetchPositions(ctx context.Context, chrom string, positions []int64) (*ChromDataset, error) {
	ds, err := c.Chrom(ctx, chrom)
	if err != nil {
		return nil, err
	}
	return ds.FetchPositions(ctx, positions)
}
