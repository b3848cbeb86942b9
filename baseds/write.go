package baseds

import (
	"context"
	"fmt"

	"github.com/epiblock/baseds/internal/zarrio"
)

// defaultPosChunk is the position-axis chunk width used when a writer does
// not pick one.
const defaultPosChunk = 1 << 16

// ChromContent is the full content of a chromosome dataset to be written.
type ChromContent struct {
	Chrom          string
	ChromSize      int64
	ObsDim         string   // sample-axis name, default "sample_id"
	Samples        []string // sample labels, in storage order
	ContextTypes   []string // context labels, in storage order
	CytosineOffset int
	ContextLength  int

	// Counts is row-major (context type x sample x position), with the
	// position axis spanning the whole chromosome.
	Counts []int32

	// Codebook is row-major (context type x position). Nil omits the
	// embedded codebook, in which case readers must supply an external one.
	Codebook []int8

	// PosChunk is the position-axis chunk width. Zero picks a default.
	PosChunk int64

	// Compressor is the chunk compression: "zstd" (default), "gzip", or
	// "none".
	Compressor string
}

// CreateChrom writes a complete chromosome dataset group under path.
func CreateChrom(ctx context.Context, store Store, path string, c ChromContent) error {
	nmc := len(c.ContextTypes)
	ns := len(c.Samples)
	if nmc == 0 || ns == 0 || c.ChromSize <= 0 {
		return fmt.Errorf("baseds: chromosome content requires context types, samples, and a positive size")
	}
	if int64(len(c.Counts)) != int64(nmc)*int64(ns)*c.ChromSize {
		return fmt.Errorf("baseds: counts buffer has %d values, expected %d",
			len(c.Counts), int64(nmc)*int64(ns)*c.ChromSize)
	}
	if c.Codebook != nil && int64(len(c.Codebook)) != int64(nmc)*c.ChromSize {
		return fmt.Errorf("baseds: codebook buffer has %d values, expected %d",
			len(c.Codebook), int64(nmc)*c.ChromSize)
	}

	posChunk := c.PosChunk
	if posChunk <= 0 {
		posChunk = defaultPosChunk
	}
	compressor, err := compressorMeta(c.Compressor)
	if err != nil {
		return err
	}

	obsDim := c.ObsDim
	if obsDim == "" {
		obsDim = defaultObsDim
	}

	attrs := chromGroupAttrs{
		Chrom:       c.Chrom,
		ChromSize:   c.ChromSize,
		CPos:        c.CytosineOffset,
		ContextSize: c.ContextLength,
		ObsDim:      obsDim,
		MCTypes:     c.ContextTypes,
		Samples:     c.Samples,
		ChunkPos:    chunkBoundaries(c.ChromSize, posChunk),
	}
	if err := zarrio.PutAttrs(ctx, store, path, &attrs); err != nil {
		return err
	}

	dataMeta := zarrio.ArrayMeta{
		Shape:      []int64{int64(nmc), int64(ns), c.ChromSize},
		Chunks:     []int64{int64(nmc), int64(ns), posChunk},
		Dtype:      "<i4",
		Compressor: compressor,
	}
	if err := zarrio.Create(ctx, store, path+"/"+dataArrayName, dataMeta, c.Counts); err != nil {
		return err
	}

	if c.Codebook != nil {
		cbMeta := zarrio.ArrayMeta{
			Shape:      []int64{int64(nmc), c.ChromSize},
			Chunks:     []int64{int64(nmc), posChunk},
			Dtype:      "|i1",
			Compressor: compressor,
		}
		if err := zarrio.Create(ctx, store, path+"/"+codebookArrayName, cbMeta, toInt32(c.Codebook)); err != nil {
			return err
		}
	}
	return nil
}

// CodebookContent is a standalone codebook to be written for datasets that
// do not embed one.
type CodebookContent struct {
	Chrom          string
	ChromSize      int64
	ContextTypes   []string
	CytosineOffset int
	ContextLength  int

	// Values is row-major (context type x position).
	Values []int8

	PosChunk   int64
	Compressor string
}

// CreateCodebook writes an external codebook group under path.
func CreateCodebook(ctx context.Context, store Store, path string, c CodebookContent) error {
	nmc := len(c.ContextTypes)
	if nmc == 0 || c.ChromSize <= 0 {
		return fmt.Errorf("baseds: codebook content requires context types and a positive size")
	}
	if int64(len(c.Values)) != int64(nmc)*c.ChromSize {
		return fmt.Errorf("baseds: codebook buffer has %d values, expected %d",
			len(c.Values), int64(nmc)*c.ChromSize)
	}

	posChunk := c.PosChunk
	if posChunk <= 0 {
		posChunk = defaultPosChunk
	}
	compressor, err := compressorMeta(c.Compressor)
	if err != nil {
		return err
	}

	attrs := chromGroupAttrs{
		Chrom:       c.Chrom,
		ChromSize:   c.ChromSize,
		CPos:        c.CytosineOffset,
		ContextSize: c.ContextLength,
		MCTypes:     c.ContextTypes,
	}
	if err := zarrio.PutAttrs(ctx, store, path, &attrs); err != nil {
		return err
	}

	meta := zarrio.ArrayMeta{
		Shape:      []int64{int64(nmc), c.ChromSize},
		Chunks:     []int64{int64(nmc), posChunk},
		Dtype:      "|i1",
		Compressor: compressor,
	}
	return zarrio.Create(ctx, store, path+"/"+codebookArrayName, meta, toInt32(c.Values))
}

func compressorMeta(name string) (*zarrio.CompressorMeta, error) {
	switch name {
	case "", "zstd":
		return &zarrio.CompressorMeta{ID: "zstd"}, nil
	case "gzip":
		return &zarrio.CompressorMeta{ID: "gzip"}, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("baseds: unsupported compressor %q", name)
	}
}

func chunkBoundaries(size, chunk int64) []int64 {
	var out []int64
	for p := int64(0); p < size; p += chunk {
		out = append(out, p)
	}
	return append(out, size)
}

func toInt32(vals []int8) []int32 {
	out := make([]int32, len(vals))
	for i, v := range vals {
		out[i] = int32(v)
	}
	return out
}
