// Package baseds provides base-pair-resolution access to chunked,
// multi-sample cytosine-methylation count data stored per chromosome.
//
// A chromosome dataset is a three-dimensional count array
// (context type x sample x genomic position) backed by chunked object
// storage, plus a per-position codebook that records which sequence
// context (CpG, CHH, ...) every cytosine belongs to. The package supports
// random and range access, context-pattern filtering, and aggregation
// into arbitrary or fixed-size regions without loading a whole
// chromosome into memory.
//
// Baseds focuses on positional access structure: datasets are immutable
// values, every selection returns a new dataset, and storage reads are
// deferred until a selection is materialized. It does not implement
// statistical testing or visualization.
package baseds

import (
	"context"
	"errors"
	"io"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrInvalidRange indicates a range fetch where start >= end, or where
	// both start and end were omitted.
	ErrInvalidRange = errors.New("invalid range")

	// ErrInvalidPattern indicates a context pattern whose length does not
	// match the codebook context length, or whose cytosine-offset character
	// is not 'C'.
	ErrInvalidPattern = errors.New("invalid context pattern")

	// ErrIncompatibleCodebook indicates an external codebook whose context
	// types or position axis disagree with the dataset it was opened for.
	ErrIncompatibleCodebook = errors.New("incompatible codebook")

	// ErrMissingBinningSpec indicates that an aggregation was requested
	// without exactly one of a bin size or a region table.
	ErrMissingBinningSpec = errors.New("exactly one of bin size or regions must be specified")

	// ErrEmptyRegionSet indicates a region table with zero rows after
	// chromosome filtering.
	ErrEmptyRegionSet = errors.New("region set is empty")

	// ErrPositionOutOfRange indicates a requested absolute position outside
	// the current dataset window.
	ErrPositionOutOfRange = errors.New("position out of range")

	// ErrNoCodebook indicates a dataset opened without an embedded codebook
	// and without a codebook path to load one from.
	ErrNoCodebook = errors.New("dataset has no codebook and no codebook path was given")
)

// Storage-level sentinels shared by all Store implementations.
var (
	// ErrNotFound indicates a requested object does not exist.
	ErrNotFound = errNotFound{}

	// ErrPathExists indicates an attempt to write to an existing path.
	ErrPathExists = errPathExists{}
)

type errNotFound struct{}

func (errNotFound) Error() string { return "not found" }

type errPathExists struct{}

func (errPathExists) Error() string { return "path exists" }

// -----------------------------------------------------------------------------
// Store interface
// -----------------------------------------------------------------------------

// Store abstracts the underlying object storage system holding chunked
// chromosome data.
//
// Implementations may target filesystems, S3, or other object stores.
// The interface is intentionally minimal to avoid backend-specific leakage.
type Store interface {
	// Put writes data to the given path.
	Put(ctx context.Context, path string, r io.Reader) error

	// Get retrieves data from the given path.
	Get(ctx context.Context, path string) (io.ReadCloser, error)

	// Exists checks whether a path exists.
	Exists(ctx context.Context, path string) (bool, error)

	// List returns paths under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the path if it exists.
	Delete(ctx context.Context, path string) error
}
