// Package zarrio reads and writes zarr-flavored chunked integer arrays on
// top of an object store.
//
// An array lives under a logical path holding a ".zarray" JSON metadata
// document and one object per chunk, keyed by the chunk's grid coordinates
// joined with dots ("0.0.3"). A group is a path holding a ".zattrs" JSON
// document plus member arrays. Chunks are stored at full chunk extent
// (edge chunks padded with zeros) and may be zstd- or gzip-compressed.
package zarrio

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/klauspost/compress/zstd"
)

var jsonCodec = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	arrayMetaKey = ".zarray"
	attrsKey     = ".zattrs"
)

// Store is the minimal object-store surface zarrio needs. It is
// structurally identical to the caller's store interface so any such value
// satisfies it directly.
type Store interface {
	Put(ctx context.Context, path string, r io.Reader) error
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	Exists(ctx context.Context, path string) (bool, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, path string) error
}

// -----------------------------------------------------------------------------
// Metadata
// -----------------------------------------------------------------------------

// CompressorMeta identifies the chunk compressor ("zstd" or "gzip").
// A nil compressor means raw chunks.
type CompressorMeta struct {
	ID string `json:"id"`
}

// ArrayMeta mirrors the zarr v2 ".zarray" document for the subset of the
// format this package supports: C-order integer arrays.
type ArrayMeta struct {
	Shape      []int64         `json:"shape"`
	Chunks     []int64         `json:"chunks"`
	Dtype      string          `json:"dtype"`
	Compressor *CompressorMeta `json:"compressor"`
	FillValue  int64           `json:"fill_value"`
	Order      string          `json:"order"`
	ZarrFormat int             `json:"zarr_format"`
}

func (m *ArrayMeta) validate() error {
	if len(m.Shape) == 0 || len(m.Shape) != len(m.Chunks) {
		return fmt.Errorf("zarrio: shape %v and chunks %v must be non-empty and equal rank", m.Shape, m.Chunks)
	}
	for i := range m.Shape {
		if m.Shape[i] < 0 || m.Chunks[i] <= 0 {
			return fmt.Errorf("zarrio: invalid shape %v / chunks %v", m.Shape, m.Chunks)
		}
	}
	if m.Order != "" && m.Order != "C" {
		return fmt.Errorf("zarrio: unsupported order %q", m.Order)
	}
	if _, err := dtypeSize(m.Dtype); err != nil {
		return err
	}
	if m.Compressor != nil {
		switch m.Compressor.ID {
		case "zstd", "gzip":
		default:
			return fmt.Errorf("zarrio: unsupported compressor %q", m.Compressor.ID)
		}
	}
	return nil
}

// dtypeSize returns the element byte size for a supported dtype string.
// Supported: "|i1", "<i2", "<i4", "<i8", "<u4" (little-endian integers).
func dtypeSize(dtype string) (int, error) {
	switch dtype {
	case "|i1":
		return 1, nil
	case "<i2":
		return 2, nil
	case "<i4", "<u4":
		return 4, nil
	case "<i8":
		return 8, nil
	default:
		return 0, fmt.Errorf("zarrio: unsupported dtype %q", dtype)
	}
}

// -----------------------------------------------------------------------------
// Group attributes
// -----------------------------------------------------------------------------

// ReadAttrs decodes the ".zattrs" document under path into v.
func ReadAttrs(ctx context.Context, store Store, path string, v any) error {
	rc, err := store.Get(ctx, joinKey(path, attrsKey))
	if err != nil {
		return fmt.Errorf("zarrio: reading attrs for %s: %w", path, err)
	}
	defer func() { _ = rc.Close() }()

	if err := jsonCodec.NewDecoder(rc).Decode(v); err != nil {
		return fmt.Errorf("zarrio: decoding attrs for %s: %w", path, err)
	}
	return nil
}

// PutAttrs writes v as the ".zattrs" document under path.
func PutAttrs(ctx context.Context, store Store, path string, v any) error {
	data, err := jsonCodec.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("zarrio: encoding attrs for %s: %w", path, err)
	}
	return store.Put(ctx, joinKey(path, attrsKey), bytes.NewReader(data))
}

// ArrayExists reports whether an array metadata document exists under path.
func ArrayExists(ctx context.Context, store Store, path string) (bool, error) {
	return store.Exists(ctx, joinKey(path, arrayMetaKey))
}

// -----------------------------------------------------------------------------
// Array
// -----------------------------------------------------------------------------

// Array is a read handle on a chunked integer array. Reads are deferred:
// opening an array fetches only its metadata, and ReadRange touches only
// the chunks covering the requested window.
type Array struct {
	store Store
	path  string
	meta  ArrayMeta
}

// OpenArray reads the ".zarray" metadata under path and returns a handle.
func OpenArray(ctx context.Context, store Store, path string) (*Array, error) {
	rc, err := store.Get(ctx, joinKey(path, arrayMetaKey))
	if err != nil {
		return nil, fmt.Errorf("zarrio: opening array %s: %w", path, err)
	}
	defer func() { _ = rc.Close() }()

	var meta ArrayMeta
	if err := jsonCodec.NewDecoder(rc).Decode(&meta); err != nil {
		return nil, fmt.Errorf("zarrio: decoding metadata for %s: %w", path, err)
	}
	if err := meta.validate(); err != nil {
		return nil, err
	}

	return &Array{store: store, path: path, meta: meta}, nil
}

// Shape returns the array dimensions.
func (a *Array) Shape() []int64 {
	out := make([]int64, len(a.meta.Shape))
	copy(out, a.meta.Shape)
	return out
}

// Chunks returns the chunk extent per dimension.
func (a *Array) Chunks() []int64 {
	out := make([]int64, len(a.meta.Chunks))
	copy(out, a.meta.Chunks)
	return out
}

// ReadRange materializes the window [lo, hi) along the last dimension,
// spanning all leading dimensions, as a row-major int32 buffer.
func (a *Array) ReadRange(ctx context.Context, lo, hi int64) ([]int32, error) {
	n := len(a.meta.Shape)
	last := a.meta.Shape[n-1]
	if lo < 0 || hi > last || lo > hi {
		return nil, fmt.Errorf("zarrio: range [%d, %d) outside array of length %d", lo, hi, last)
	}

	width := hi - lo
	outDims := make([]int64, n)
	copy(outDims, a.meta.Shape[:n-1])
	outDims[n-1] = width

	total := int64(1)
	for _, d := range outDims {
		total *= d
	}
	out := make([]int32, total)
	if total == 0 || width == 0 {
		return out, nil
	}

	// Chunk grid extents per dimension.
	grid := make([]int64, n)
	for i := range grid {
		grid[i] = (a.meta.Shape[i] + a.meta.Chunks[i] - 1) / a.meta.Chunks[i]
	}

	chunkLo := lo / a.meta.Chunks[n-1]
	chunkHi := (hi - 1) / a.meta.Chunks[n-1]

	coord := make([]int64, n)
	for {
		for ck := chunkLo; ck <= chunkHi; ck++ {
			coord[n-1] = ck
			buf, err := a.readChunk(ctx, coord)
			if err != nil {
				return nil, err
			}
			a.copyChunkWindow(out, outDims, buf, coord, lo, hi)
		}

		// Advance the odometer over the leading chunk dimensions.
		i := n - 2
		for ; i >= 0; i-- {
			coord[i]++
			if coord[i] < grid[i] {
				break
			}
			coord[i] = 0
		}
		if i < 0 {
			break
		}
	}

	return out, nil
}

// copyChunkWindow copies the part of a decoded chunk that falls inside the
// requested window into the output buffer.
func (a *Array) copyChunkWindow(out []int32, outDims []int64, buf []int32, coord []int64, lo, hi int64) {
	n := len(a.meta.Shape)
	chunks := a.meta.Chunks

	// Intersection along the last dimension, in global coordinates.
	gLo := coord[n-1] * chunks[n-1]
	gHi := gLo + chunks[n-1]
	if gLo < lo {
		gLo = lo
	}
	if gHi > hi {
		gHi = hi
	}
	runLen := gHi - gLo
	if runLen <= 0 {
		return
	}

	// Valid extents of the leading dimensions within this chunk.
	valid := make([]int64, n-1)
	for i := 0; i < n-1; i++ {
		v := a.meta.Shape[i] - coord[i]*chunks[i]
		if v > chunks[i] {
			v = chunks[i]
		}
		valid[i] = v
	}

	// Row-major strides of the chunk buffer and the output buffer.
	chunkStride := make([]int64, n)
	chunkStride[n-1] = 1
	for i := n - 2; i >= 0; i-- {
		chunkStride[i] = chunkStride[i+1] * chunks[i+1]
	}
	outStride := make([]int64, n)
	outStride[n-1] = 1
	for i := n - 2; i >= 0; i-- {
		outStride[i] = outStride[i+1] * outDims[i+1]
	}

	local := make([]int64, n-1)
	for {
		srcOff := (gLo - coord[n-1]*chunks[n-1]) * chunkStride[n-1]
		dstOff := (gLo - lo) * outStride[n-1]
		for i := 0; i < n-1; i++ {
			srcOff += local[i] * chunkStride[i]
			dstOff += (coord[i]*chunks[i] + local[i]) * outStride[i]
		}
		copy(out[dstOff:dstOff+runLen], buf[srcOff:srcOff+runLen])

		i := n - 2
		for ; i >= 0; i-- {
			local[i]++
			if local[i] < valid[i] {
				break
			}
			local[i] = 0
		}
		if i < 0 {
			break
		}
	}
}

func (a *Array) readChunk(ctx context.Context, coord []int64) ([]int32, error) {
	rc, err := a.store.Get(ctx, joinKey(a.path, chunkKey(coord)))
	if err != nil {
		return nil, fmt.Errorf("zarrio: reading chunk %s of %s: %w", chunkKey(coord), a.path, err)
	}
	defer func() { _ = rc.Close() }()

	dr, err := decompressor(a.meta.Compressor, rc)
	if err != nil {
		return nil, err
	}
	defer func() { _ = dr.Close() }()

	raw, err := io.ReadAll(dr)
	if err != nil {
		return nil, fmt.Errorf("zarrio: decompressing chunk %s of %s: %w", chunkKey(coord), a.path, err)
	}

	chunkLen := int64(1)
	for _, c := range a.meta.Chunks {
		chunkLen *= c
	}
	return decodeInts(raw, a.meta.Dtype, chunkLen)
}

// -----------------------------------------------------------------------------
// Writer
// -----------------------------------------------------------------------------

// Create writes a complete array (metadata plus every chunk) under path.
// data must be a row-major buffer matching meta.Shape. Edge chunks are
// padded to full extent with the fill value (zero).
func Create(ctx context.Context, store Store, path string, meta ArrayMeta, data []int32) error {
	if meta.Order == "" {
		meta.Order = "C"
	}
	if meta.ZarrFormat == 0 {
		meta.ZarrFormat = 2
	}
	if err := meta.validate(); err != nil {
		return err
	}

	total := int64(1)
	for _, d := range meta.Shape {
		total *= d
	}
	if int64(len(data)) != total {
		return fmt.Errorf("zarrio: data length %d does not match shape %v", len(data), meta.Shape)
	}

	metaDoc, err := jsonCodec.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	if err := store.Put(ctx, joinKey(path, arrayMetaKey), bytes.NewReader(metaDoc)); err != nil {
		return fmt.Errorf("zarrio: writing metadata for %s: %w", path, err)
	}

	n := len(meta.Shape)
	grid := make([]int64, n)
	for i := range grid {
		grid[i] = (meta.Shape[i] + meta.Chunks[i] - 1) / meta.Chunks[i]
		if grid[i] == 0 {
			grid[i] = 1
		}
	}

	chunkLen := int64(1)
	for _, c := range meta.Chunks {
		chunkLen *= c
	}

	dataStride := make([]int64, n)
	dataStride[n-1] = 1
	for i := n - 2; i >= 0; i-- {
		dataStride[i] = dataStride[i+1] * meta.Shape[i+1]
	}
	chunkStride := make([]int64, n)
	chunkStride[n-1] = 1
	for i := n - 2; i >= 0; i-- {
		chunkStride[i] = chunkStride[i+1] * meta.Chunks[i+1]
	}

	coord := make([]int64, n)
	for {
		buf := make([]int32, chunkLen)
		fillChunk(buf, data, meta.Shape, meta.Chunks, dataStride, chunkStride, coord)

		raw, err := encodeInts(buf, meta.Dtype)
		if err != nil {
			return err
		}
		compressed, err := compress(meta.Compressor, raw)
		if err != nil {
			return err
		}
		if err := store.Put(ctx, joinKey(path, chunkKey(coord)), bytes.NewReader(compressed)); err != nil {
			return fmt.Errorf("zarrio: writing chunk %s of %s: %w", chunkKey(coord), path, err)
		}

		i := n - 1
		for ; i >= 0; i-- {
			coord[i]++
			if coord[i] < grid[i] {
				break
			}
			coord[i] = 0
		}
		if i < 0 {
			break
		}
	}

	return nil
}

// fillChunk copies the valid region of one chunk out of the full data buffer.
func fillChunk(buf, data []int32, shape, chunks, dataStride, chunkStride, coord []int64) {
	n := len(shape)

	valid := make([]int64, n)
	for i := 0; i < n; i++ {
		v := shape[i] - coord[i]*chunks[i]
		if v > chunks[i] {
			v = chunks[i]
		}
		if v < 0 {
			v = 0
		}
		valid[i] = v
	}
	for _, v := range valid {
		if v == 0 {
			return
		}
	}

	local := make([]int64, n-1)
	runLen := valid[n-1]
	for {
		var srcOff, dstOff int64
		for i := 0; i < n-1; i++ {
			srcOff += (coord[i]*chunks[i] + local[i]) * dataStride[i]
			dstOff += local[i] * chunkStride[i]
		}
		srcOff += coord[n-1] * chunks[n-1] * dataStride[n-1]
		copy(buf[dstOff:dstOff+runLen], data[srcOff:srcOff+runLen])

		i := n - 2
		for ; i >= 0; i-- {
			local[i]++
			if local[i] < valid[i] {
				break
			}
			local[i] = 0
		}
		if i < 0 {
			break
		}
	}
}

// -----------------------------------------------------------------------------
// Chunk encoding
// -----------------------------------------------------------------------------

func chunkKey(coord []int64) string {
	parts := make([]string, len(coord))
	for i, c := range coord {
		parts[i] = strconv.FormatInt(c, 10)
	}
	return strings.Join(parts, ".")
}

func joinKey(path, key string) string {
	return strings.TrimSuffix(path, "/") + "/" + key
}

func decodeInts(raw []byte, dtype string, n int64) ([]int32, error) {
	size, err := dtypeSize(dtype)
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) != n*int64(size) {
		return nil, fmt.Errorf("zarrio: chunk has %d bytes, expected %d", len(raw), n*int64(size))
	}

	out := make([]int32, n)
	switch dtype {
	case "|i1":
		for i := range out {
			out[i] = int32(int8(raw[i]))
		}
	case "<i2":
		for i := range out {
			out[i] = int32(int16(binary.LittleEndian.Uint16(raw[i*2:])))
		}
	case "<i4":
		for i := range out {
			out[i] = int32(binary.LittleEndian.Uint32(raw[i*4:]))
		}
	case "<u4":
		for i := range out {
			v := binary.LittleEndian.Uint32(raw[i*4:])
			if v > 1<<31-1 {
				return nil, fmt.Errorf("zarrio: uint32 value %d overflows int32", v)
			}
			out[i] = int32(v)
		}
	case "<i8":
		for i := range out {
			v := int64(binary.LittleEndian.Uint64(raw[i*8:]))
			if v > 1<<31-1 || v < -(1<<31) {
				return nil, fmt.Errorf("zarrio: int64 value %d overflows int32", v)
			}
			out[i] = int32(v)
		}
	}
	return out, nil
}

func encodeInts(vals []int32, dtype string) ([]byte, error) {
	size, err := dtypeSize(dtype)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(vals)*size)
	switch dtype {
	case "|i1":
		for i, v := range vals {
			if v > 127 || v < -128 {
				return nil, fmt.Errorf("zarrio: value %d overflows int8", v)
			}
			out[i] = byte(int8(v))
		}
	case "<i2":
		for i, v := range vals {
			if v > 1<<15-1 || v < -(1<<15) {
				return nil, fmt.Errorf("zarrio: value %d overflows int16", v)
			}
			binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
		}
	case "<i4":
		for i, v := range vals {
			binary.LittleEndian.PutUint32(out[i*4:], uint32(v))
		}
	case "<u4":
		for i, v := range vals {
			if v < 0 {
				return nil, fmt.Errorf("zarrio: negative value %d for unsigned dtype", v)
			}
			binary.LittleEndian.PutUint32(out[i*4:], uint32(v))
		}
	case "<i8":
		for i, v := range vals {
			binary.LittleEndian.PutUint64(out[i*8:], uint64(int64(v)))
		}
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Compression
// -----------------------------------------------------------------------------

func decompressor(meta *CompressorMeta, r io.Reader) (io.ReadCloser, error) {
	if meta == nil {
		return io.NopCloser(r), nil
	}
	switch meta.ID {
	case "zstd":
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return dec.IOReadCloser(), nil
	case "gzip":
		return gzip.NewReader(r)
	default:
		return nil, fmt.Errorf("zarrio: unsupported compressor %q", meta.ID)
	}
}

func compress(meta *CompressorMeta, raw []byte) ([]byte, error) {
	if meta == nil {
		return raw, nil
	}

	var buf bytes.Buffer
	var w io.WriteCloser
	var err error
	switch meta.ID {
	case "zstd":
		w, err = zstd.NewWriter(&buf)
	case "gzip":
		w = gzip.NewWriter(&buf)
	default:
		return nil, fmt.Errorf("zarrio: unsupported compressor %q", meta.ID)
	}
	if err != nil {
		return nil, err
	}

	if _, err := w.Write(raw); err != nil {
		_ = w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
