package baseds

import (
	"context"
	"fmt"

	"github.com/epiblock/baseds/internal/zarrio"
)

// countSource is a lazy view of an integer array whose trailing axis is the
// position axis. Leading axes are flattened into rows. readRange
// materializes a window of position columns; implementations backed by
// chunked storage read only the chunks covering the window.
type countSource interface {
	// posLen is the length of the position axis.
	posLen() int64

	// rows is the product of the leading dimensions.
	rows() int

	// readRange returns a row-major buffer of shape rows x (hi-lo) for the
	// local position window [lo, hi).
	readRange(ctx context.Context, lo, hi int64) ([]int32, error)
}

// -----------------------------------------------------------------------------
// Chunked-storage source
// -----------------------------------------------------------------------------

// zarrSource reads from a chunked array on a Store.
type zarrSource struct {
	arr  *zarrio.Array
	nRow int
}

func newZarrSource(arr *zarrio.Array) *zarrSource {
	shape := arr.Shape()
	n := 1
	for _, d := range shape[:len(shape)-1] {
		n *= int(d)
	}
	return &zarrSource{arr: arr, nRow: n}
}

func (s *zarrSource) posLen() int64 {
	shape := s.arr.Shape()
	return shape[len(shape)-1]
}

func (s *zarrSource) rows() int { return s.nRow }

func (s *zarrSource) readRange(ctx context.Context, lo, hi int64) ([]int32, error) {
	return s.arr.ReadRange(ctx, lo, hi)
}

// -----------------------------------------------------------------------------
// Window view
// -----------------------------------------------------------------------------

// windowSource narrows another source to a position window. Narrowing is
// pure bookkeeping; no data moves until readRange.
type windowSource struct {
	src    countSource
	lo, hi int64
}

func newWindowSource(src countSource, lo, hi int64) countSource {
	if w, ok := src.(*windowSource); ok {
		return &windowSource{src: w.src, lo: w.lo + lo, hi: w.lo + hi}
	}
	return &windowSource{src: src, lo: lo, hi: hi}
}

func (s *windowSource) posLen() int64 { return s.hi - s.lo }

func (s *windowSource) rows() int { return s.src.rows() }

func (s *windowSource) readRange(ctx context.Context, lo, hi int64) ([]int32, error) {
	if lo < 0 || hi > s.posLen() || lo > hi {
		return nil, fmt.Errorf("baseds: window read [%d, %d) outside view of length %d", lo, hi, s.posLen())
	}
	return s.src.readRange(ctx, s.lo+lo, s.lo+hi)
}

// -----------------------------------------------------------------------------
// Materialized source
// -----------------------------------------------------------------------------

// memSource holds a fully materialized row-major buffer.
type memSource struct {
	nRow  int
	width int64
	buf   []int32
}

func (s *memSource) posLen() int64 { return s.width }

func (s *memSource) rows() int { return s.nRow }

func (s *memSource) readRange(_ context.Context, lo, hi int64) ([]int32, error) {
	if lo < 0 || hi > s.width || lo > hi {
		return nil, fmt.Errorf("baseds: read [%d, %d) outside buffer of width %d", lo, hi, s.width)
	}
	w := hi - lo
	out := make([]int32, int64(s.nRow)*w)
	for r := 0; r < s.nRow; r++ {
		copy(out[int64(r)*w:int64(r)*w+w], s.buf[int64(r)*s.width+lo:int64(r)*s.width+hi])
	}
	return out, nil
}

// gatherColumns selects the given columns from a rows x width buffer,
// producing a rows x len(idx) buffer.
func gatherColumns(buf []int32, nRow int, width int64, idx []int64) []int32 {
	out := make([]int32, int64(nRow)*int64(len(idx)))
	for r := 0; r < nRow; r++ {
		src := int64(r) * width
		dst := r * len(idx)
		for k, j := range idx {
			out[dst+k] = buf[src+j]
		}
	}
	return out
}

// -----------------------------------------------------------------------------
// Sample-axis concatenation
// -----------------------------------------------------------------------------

// sampleConcatSource presents several per-path data arrays, each shaped
// (context type x samples_i x position), as one array concatenated along
// the sample axis.
type sampleConcatSource struct {
	parts    []countSource
	nContext int
	nSamples []int // per part
	total    int   // sum of nSamples
}

func newSampleConcatSource(parts []countSource, nContext int) (*sampleConcatSource, error) {
	s := &sampleConcatSource{parts: parts, nContext: nContext}
	for i, p := range parts {
		if p.rows()%nContext != 0 {
			return nil, fmt.Errorf("baseds: path %d: %d rows not divisible by %d context types", i, p.rows(), nContext)
		}
		if p.posLen() != parts[0].posLen() {
			return nil, fmt.Errorf("baseds: path %d: position axis %d differs from %d", i, p.posLen(), parts[0].posLen())
		}
		n := p.rows() / nContext
		s.nSamples = append(s.nSamples, n)
		s.total += n
	}
	return s, nil
}

func (s *sampleConcatSource) posLen() int64 { return s.parts[0].posLen() }

func (s *sampleConcatSource) rows() int { return s.nContext * s.total }

func (s *sampleConcatSource) readRange(ctx context.Context, lo, hi int64) ([]int32, error) {
	w := hi - lo
	out := make([]int32, int64(s.rows())*w)

	sampleBase := 0
	for pi, part := range s.parts {
		buf, err := part.readRange(ctx, lo, hi)
		if err != nil {
			return nil, err
		}
		ns := s.nSamples[pi]
		for mc := 0; mc < s.nContext; mc++ {
			src := int64(mc*ns) * w
			dst := (int64(mc*s.total) + int64(sampleBase)) * w
			copy(out[dst:dst+int64(ns)*w], buf[src:src+int64(ns)*w])
		}
		sampleBase += ns
	}
	return out, nil
}
