// Package compression implements the stateless transform that turns a
// byte sequence plus content type into a compressed byte sequence. The
// algorithm is chosen by content-type heuristics: zstd for text-like
// content, LZ4 block mode for binary and document content, gzip when a
// caller explicitly asks for it. A compressed result larger than 95% of
// the input is treated as unsuccessful so compression can never
// silently enlarge storage.
package compression

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/mbelovs/contractvault/internal/common"
)

// Algorithm tags the transform applied to stored bytes. The tag is
// persisted in blob side-channel metadata, separately from the data
// itself, so Decompress must reject tags it does not recognize.
type Algorithm string

const (
	AlgorithmNone Algorithm = "none"
	AlgorithmZstd Algorithm = "zstd"
	AlgorithmLZ4  Algorithm = "lz4"
	AlgorithmGzip Algorithm = "gzip"
)

// maxBeneficialRatio is the cut-off above which a compression attempt
// is reported as "not beneficial" and the caller stores the original.
const maxBeneficialRatio = 0.95

// lz4HeaderSize is the length prefix in front of LZ4 block payloads.
// LZ4 block mode needs the exact uncompressed size to decode, so it is
// framed into the payload as a little-endian uint64.
const lz4HeaderSize = 8

// Options lets a caller override the content-type heuristics.
type Options struct {
	Algorithm Algorithm
	Level     int
}

// Result is the transient outcome of one compression attempt. It is
// never persisted; the file manager consumes it immediately.
type Result struct {
	Success        bool
	Data           []byte
	OriginalSize   int64
	CompressedSize int64
	Ratio          float64
	Algorithm      Algorithm
	Reason         string
}

// Engine performs compression and decompression. It is stateless apart
// from reusable zstd coder instances, which are safe for concurrent
// use.
type Engine struct {
	zenc *zstd.Encoder
	zdec *zstd.Decoder
}

func NewEngine() (*Engine, error) {
	zenc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("init zstd encoder: %w", err)
	}
	zdec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("init zstd decoder: %w", err)
	}
	return &Engine{zenc: zenc, zdec: zdec}, nil
}

// Compress transforms data according to the default profile for its
// MIME type, or the caller's override. The result is unsuccessful —
// never an error — when the input is denylisted as already compressed,
// or when the compressed form would not be beneficial.
func (e *Engine) Compress(data []byte, mimeType string, opts *Options) *Result {
	original := int64(len(data))

	if original == 0 {
		return &Result{Success: false, OriginalSize: 0, Algorithm: AlgorithmNone, Reason: "empty input"}
	}

	// The denylist check runs before any CPU is spent on the transform.
	if !e.IsCompressible(mimeType) {
		return &Result{Success: false, OriginalSize: original, Algorithm: AlgorithmNone, Reason: "not compressible"}
	}

	algorithm, level := profileFor(mimeType)
	if opts != nil {
		if opts.Algorithm != "" {
			algorithm = opts.Algorithm
		}
		if opts.Level > 0 {
			level = opts.Level
		}
	}

	compressed, err := e.encode(data, algorithm, level)
	if err != nil {
		return &Result{Success: false, OriginalSize: original, Algorithm: algorithm, Reason: common.Reason(err)}
	}

	ratio := float64(len(compressed)) / float64(original)
	if ratio > maxBeneficialRatio {
		return &Result{
			Success:        false,
			OriginalSize:   original,
			CompressedSize: int64(len(compressed)),
			Ratio:          ratio,
			Algorithm:      algorithm,
			Reason:         "not beneficial",
		}
	}

	return &Result{
		Success:        true,
		Data:           compressed,
		OriginalSize:   original,
		CompressedSize: int64(len(compressed)),
		Ratio:          ratio,
		Algorithm:      algorithm,
	}
}

func (e *Engine) encode(data []byte, algorithm Algorithm, level int) ([]byte, error) {
	switch algorithm {
	case AlgorithmZstd:
		return e.encodeZstd(data, level)
	case AlgorithmLZ4:
		return encodeLZ4(data)
	case AlgorithmGzip:
		return encodeGzip(data, level)
	default:
		return nil, common.NewError(common.ErrCompression, fmt.Sprintf("unsupported compression algorithm %q", algorithm))
	}
}

func (e *Engine) encodeZstd(data []byte, level int) ([]byte, error) {
	if level > 0 && zstd.EncoderLevelFromZstd(level) != zstd.SpeedDefault {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		if err != nil {
			return nil, common.WrapError(common.ErrCompression, "init zstd encoder", err)
		}
		defer enc.Close()
		return enc.EncodeAll(data, nil), nil
	}
	return e.zenc.EncodeAll(data, nil), nil
}

func encodeLZ4(data []byte) ([]byte, error) {
	bound := lz4.CompressBlockBound(len(data))
	out := make([]byte, lz4HeaderSize+bound)
	binary.LittleEndian.PutUint64(out, uint64(len(data)))

	written, err := lz4.CompressBlock(data, out[lz4HeaderSize:], nil)
	if err != nil {
		return nil, common.WrapError(common.ErrCompression, "lz4 compress", err)
	}
	// CompressBlock returns 0 when it determines the data is
	// incompressible.
	if written == 0 {
		return nil, common.NewError(common.ErrCompression, "not beneficial")
	}
	return out[:lz4HeaderSize+written], nil
}

func encodeGzip(data []byte, level int) ([]byte, error) {
	if level <= 0 || level > gzip.BestCompression {
		level = gzip.DefaultCompression
	}
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, common.WrapError(common.ErrCompression, "init gzip writer", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, common.WrapError(common.ErrCompression, "gzip compress", err)
	}
	if err := w.Close(); err != nil {
		return nil, common.WrapError(common.ErrCompression, "gzip compress", err)
	}
	return buf.Bytes(), nil
}

// Decompress reverses a transform previously applied by Compress. An
// algorithm tag the engine does not recognize yields an integrity
// error, since data and tag are stored separately and can drift apart.
func (e *Engine) Decompress(data []byte, algorithm Algorithm) ([]byte, error) {
	switch algorithm {
	case AlgorithmNone:
		return data, nil
	case AlgorithmZstd:
		out, err := e.zdec.DecodeAll(data, nil)
		if err != nil {
			return nil, common.WrapError(common.ErrCompression, "zstd decompress", err)
		}
		return out, nil
	case AlgorithmLZ4:
		return decodeLZ4(data)
	case AlgorithmGzip:
		return decodeGzip(data)
	default:
		return nil, common.NewError(common.ErrIntegrity, fmt.Sprintf("unknown compression algorithm %q", algorithm))
	}
}

func decodeLZ4(data []byte) ([]byte, error) {
	if len(data) < lz4HeaderSize {
		return nil, common.NewError(common.ErrCompression, "lz4 payload truncated")
	}
	size := binary.LittleEndian.Uint64(data)
	if size > 1<<31 {
		return nil, common.NewError(common.ErrCompression, "lz4 declared size implausibly large")
	}
	out := make([]byte, size)
	read, err := lz4.UncompressBlock(data[lz4HeaderSize:], out)
	if err != nil {
		return nil, common.WrapError(common.ErrCompression, "lz4 decompress", err)
	}
	if read != int(size) {
		return nil, common.NewError(common.ErrCompression, fmt.Sprintf("lz4 decompress: got %d bytes, expected %d", read, size))
	}
	return out, nil
}

func decodeGzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, common.WrapError(common.ErrCompression, "gzip decompress", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, common.WrapError(common.ErrCompression, "gzip decompress", err)
	}
	return out, nil
}
