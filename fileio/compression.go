// Package fileio implements the chunked, optionally compressed file
// read/write engine (spec §4.6): splitting files into fixed-size
// chunks, the Auto/Always/Never zstd compression negotiation, safe
// relative-path writes, and the sequential vs. resumable writer modes.
package fileio

import (
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/sanchxt/yoop-sub002/yerr"
)

// CompressionMode mirrors the transfer-level negotiation knob.
type CompressionMode string

const (
	CompressionAuto   CompressionMode = "auto"
	CompressionAlways CompressionMode = "always"
	CompressionNever  CompressionMode = "never"
)

// ParseCompressionMode validates a config/CLI string.
func ParseCompressionMode(s string) (CompressionMode, error) {
	switch CompressionMode(strings.ToLower(s)) {
	case CompressionAuto, CompressionAlways, CompressionNever:
		return CompressionMode(strings.ToLower(s)), nil
	default:
		return "", yerr.New(yerr.KindInvalidConfig, "invalid compression mode: "+s)
	}
}

// Decision is what a file's extension/mode combination tells us to do,
// before any chunk has actually been compressed.
type Decision int

const (
	DecisionCompress Decision = iota
	DecisionSkip
	DecisionTestFirstChunk
)

// IncompressibleExtensions lists file types that are already compressed
// or otherwise don't benefit from a second compression pass.
var IncompressibleExtensions = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "gif": true, "webp": true,
	"heic": true, "heif": true, "avif": true, "ico": true, "bmp": true,
	"tiff": true, "tif": true,
	"mp4": true, "mkv": true, "webm": true, "avi": true, "mov": true,
	"m4v": true, "wmv": true, "flv": true, "mpeg": true, "mpg": true, "3gp": true,
	"mp3": true, "aac": true, "ogg": true, "flac": true, "m4a": true,
	"opus": true, "wma": true, "wav": true, "aiff": true,
	"zip": true, "gz": true, "bz2": true, "xz": true, "7z": true, "rar": true,
	"zst": true, "lz4": true, "lzma": true,
	"tar.gz": true, "tar.bz2": true, "tar.xz": true, "tgz": true, "tbz2": true, "txz": true,
	"pdf": true, "docx": true, "xlsx": true, "pptx": true, "epub": true,
	"odt": true, "ods": true, "odp": true,
	"woff": true, "woff2": true, "eot": true,
	"unity3d": true, "unitypackage": true,
	"dmg": true, "iso": true,
}

// ShouldCompressFile decides, from the file's name and the configured
// mode, whether to compress it: never in Never mode, always in Always
// mode, and in Auto mode skip known-incompressible extensions but test
// the first chunk of anything else.
func ShouldCompressFile(path string, mode CompressionMode) Decision {
	switch mode {
	case CompressionNever:
		return DecisionSkip
	case CompressionAlways:
		return DecisionCompress
	default:
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
		if IncompressibleExtensions[ext] {
			return DecisionSkip
		}
		return DecisionTestFirstChunk
	}
}

// shouldCompressSample does a one-shot compress-and-measure test; used
// when ShouldCompressFile returns DecisionTestFirstChunk. Chunks smaller
// than 1KiB are never worth the framing overhead of compression.
func shouldCompressSample(data []byte, skipThreshold float64) bool {
	if len(data) < 1024 {
		return false
	}
	compressed, err := Compress(data)
	if err != nil {
		return false
	}
	ratio := float64(len(compressed)) / float64(len(data))
	return ratio < skipThreshold
}

var encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
var decoder, _ = zstd.NewReader(nil)

// Compress zstd-compresses data at a fast encoder level, tuned for
// per-chunk latency over a LAN rather than maximum ratio.
func Compress(data []byte) ([]byte, error) {
	return encoder.EncodeAll(data, nil), nil
}

// Decompress reverses Compress.
func Decompress(data []byte) ([]byte, error) {
	out, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, yerr.Wrap(yerr.KindProtocolError, "zstd decompress failed", err)
	}
	return out, nil
}

// Stats tracks compression effectiveness across a whole transfer,
// aggregated from per-chunk Add calls.
type Stats struct {
	OriginalBytes      uint64
	CompressedBytes    uint64
	ChunksCompressed   uint32
	ChunksUncompressed uint32
}

func (s *Stats) AddCompressed(originalSize, compressedSize uint64) {
	s.OriginalBytes += originalSize
	s.CompressedBytes += compressedSize
	s.ChunksCompressed++
}

func (s *Stats) AddUncompressed(size uint64) {
	s.OriginalBytes += size
	s.CompressedBytes += size
	s.ChunksUncompressed++
}

func (s *Stats) TotalChunks() uint32 { return s.ChunksCompressed + s.ChunksUncompressed }

// Ratio returns the fraction of bytes saved (0.7 means 70% saved).
func (s *Stats) Ratio() float64 {
	if s.OriginalBytes == 0 {
		return 0
	}
	return 1 - float64(s.CompressedBytes)/float64(s.OriginalBytes)
}

func (s *Stats) BytesSaved() uint64 {
	if s.CompressedBytes >= s.OriginalBytes {
		return 0
	}
	return s.OriginalBytes - s.CompressedBytes
}

func (s *Stats) Merge(other Stats) {
	s.OriginalBytes += other.OriginalBytes
	s.CompressedBytes += other.CompressedBytes
	s.ChunksCompressed += other.ChunksCompressed
	s.ChunksUncompressed += other.ChunksUncompressed
}
