package fileio

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sanchxt/yoop-sub002/identity"
)

func TestShouldCompressFileRespectsMode(t *testing.T) {
	if d := ShouldCompressFile("movie.mp4", CompressionAuto); d != DecisionSkip {
		t.Fatalf("expected mp4 to be skipped under auto, got %v", d)
	}
	if d := ShouldCompressFile("movie.mp4", CompressionAlways); d != DecisionCompress {
		t.Fatalf("expected always mode to force compression, got %v", d)
	}
	if d := ShouldCompressFile("notes.txt", CompressionNever); d != DecisionSkip {
		t.Fatalf("expected never mode to skip, got %v", d)
	}
	if d := ShouldCompressFile("notes.txt", CompressionAuto); d != DecisionTestFirstChunk {
		t.Fatalf("expected auto mode on txt to test first chunk, got %v", d)
	}
}

func TestParseCompressionMode(t *testing.T) {
	for _, s := range []string{"auto", "Always", "NEVER"} {
		if _, err := ParseCompressionMode(s); err != nil {
			t.Fatalf("ParseCompressionMode(%q): %v", s, err)
		}
	}
	if _, err := ParseCompressionMode("bogus"); err == nil {
		t.Fatalf("expected error for invalid mode")
	}
}

func TestCompressDecompressRoundTrip(t *testing.T) {
	original := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 200)
	compressed, err := Compress(original)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if len(compressed) >= len(original) {
		t.Fatalf("expected repetitive text to shrink: %d vs %d", len(compressed), len(original))
	}
	restored, err := Decompress(compressed)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(restored, original) {
		t.Fatalf("round trip mismatch")
	}
}

func TestShouldCompressSampleSkipsSmallAndRandom(t *testing.T) {
	if shouldCompressSample([]byte("tiny"), 0.9) {
		t.Fatalf("expected small sample to be skipped regardless of threshold")
	}
	textual := bytes.Repeat([]byte("aaaaaaaaaa"), 200)
	if !shouldCompressSample(textual, 0.9) {
		t.Fatalf("expected highly repetitive sample to pass the compress test")
	}
}

func TestStatsAggregation(t *testing.T) {
	var s Stats
	s.AddCompressed(1000, 200)
	s.AddUncompressed(500)
	if s.TotalChunks() != 2 {
		t.Fatalf("expected 2 total chunks, got %d", s.TotalChunks())
	}
	if s.BytesSaved() != 800 {
		t.Fatalf("expected 800 bytes saved, got %d", s.BytesSaved())
	}
	var other Stats
	other.AddCompressed(1000, 900)
	s.Merge(other)
	if s.OriginalBytes != 2500 || s.CompressedBytes != 1600 {
		t.Fatalf("unexpected merged totals: %+v", s)
	}
}

func TestChunkReaderSplitsIntoFixedSizePieces(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	content := bytes.Repeat([]byte{0xAB}, ChunkSize+17)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	r, err := OpenChunkReader(path)
	if err != nil {
		t.Fatalf("OpenChunkReader: %v", err)
	}
	defer r.Close()

	first, err := r.Next()
	if err != nil {
		t.Fatalf("first Next: %v", err)
	}
	if first.Index != 0 || first.Offset != 0 || len(first.Data) != ChunkSize {
		t.Fatalf("unexpected first chunk: index=%d offset=%d len=%d", first.Index, first.Offset, len(first.Data))
	}

	second, err := r.Next()
	if err != nil {
		t.Fatalf("second Next: %v", err)
	}
	if second.Index != 1 || second.Offset != ChunkSize || len(second.Data) != 17 {
		t.Fatalf("unexpected second chunk: index=%d offset=%d len=%d", second.Index, second.Offset, len(second.Data))
	}
	if second.Checksum == first.Checksum {
		t.Fatalf("expected distinct checksums for distinct content")
	}

	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("expected io.EOF at end of file, got %v", err)
	}
}

func TestChunkReaderSeekToResumesAtBoundary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	content := bytes.Repeat([]byte{0xCD}, ChunkSize*2+5)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	r, err := OpenChunkReader(path)
	if err != nil {
		t.Fatalf("OpenChunkReader: %v", err)
	}
	defer r.Close()

	if err := r.SeekTo(ChunkSize); err != nil {
		t.Fatalf("SeekTo: %v", err)
	}
	c, err := r.Next()
	if err != nil {
		t.Fatalf("Next after SeekTo: %v", err)
	}
	if c.Index != 1 || c.Offset != ChunkSize {
		t.Fatalf("unexpected chunk after resume: index=%d offset=%d", c.Index, c.Offset)
	}

	if err := r.SeekTo(ChunkSize + 1); err == nil {
		t.Fatalf("expected error for non-chunk-aligned offset")
	}
}

func TestOpenChunkReaderMissingFile(t *testing.T) {
	_, err := OpenChunkReader(filepath.Join(t.TempDir(), "nope.bin"))
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestSafeJoinRejectsEscapes(t *testing.T) {
	root := t.TempDir()
	cases := []string{"../escape.txt", "..", "", "a/../../b.txt", "/etc/passwd"}
	for _, c := range cases {
		if _, err := SafeJoin(root, c); err == nil {
			t.Fatalf("expected SafeJoin(%q) to be rejected", c)
		}
	}
}

func TestSafeJoinAcceptsNestedRelativePath(t *testing.T) {
	root := t.TempDir()
	got, err := SafeJoin(root, "photos/2024/trip.jpg")
	if err != nil {
		t.Fatalf("SafeJoin: %v", err)
	}
	want := filepath.Join(root, "photos", "2024", "trip.jpg")
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestEnvelopeRoundTripRawAndCompressed(t *testing.T) {
	data := bytes.Repeat([]byte("payload"), 50)

	raw, err := EncodeEnvelope(data, false)
	if err != nil {
		t.Fatalf("EncodeEnvelope(raw): %v", err)
	}
	got, err := DecodeEnvelope(raw)
	if err != nil {
		t.Fatalf("DecodeEnvelope(raw): %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("raw round trip mismatch")
	}

	compressed, err := EncodeEnvelope(data, true)
	if err != nil {
		t.Fatalf("EncodeEnvelope(compressed): %v", err)
	}
	if len(compressed) >= len(raw) {
		t.Fatalf("expected compressed envelope to be smaller than raw for repetitive data")
	}
	got, err = DecodeEnvelope(compressed)
	if err != nil {
		t.Fatalf("DecodeEnvelope(compressed): %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("compressed round trip mismatch")
	}
}

func TestDecodeEnvelopeRejectsEmptyAndBadFlag(t *testing.T) {
	if _, err := DecodeEnvelope(nil); err == nil {
		t.Fatalf("expected error for empty envelope")
	}
	if _, err := DecodeEnvelope([]byte{0x7F, 'x'}); err == nil {
		t.Fatalf("expected error for unknown envelope flag")
	}
}

func TestSequentialWriterHappyPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.bin")
	w, err := NewSequentialWriter(path)
	if err != nil {
		t.Fatalf("NewSequentialWriter: %v", err)
	}

	chunks := []PlainChunk{
		{Index: 0, Offset: 0, Data: []byte("hello ")},
		{Index: 1, Offset: 6, Data: []byte("world")},
	}
	for _, c := range chunks {
		if err := w.WriteChunk(c); err != nil {
			t.Fatalf("WriteChunk: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "hello world" {
		t.Fatalf("got %q", got)
	}

	wantHash, _ := identity.HashReader(strings.NewReader("hello world"))
	if w.StrongHash() != wantHash {
		t.Fatalf("strong hash mismatch: got %s want %s", w.StrongHash(), wantHash)
	}
}

func TestSequentialWriterRejectsOutOfOrder(t *testing.T) {
	dir := t.TempDir()
	w, err := NewSequentialWriter(filepath.Join(dir, "out.bin"))
	if err != nil {
		t.Fatalf("NewSequentialWriter: %v", err)
	}
	defer w.Close()

	if err := w.WriteChunk(PlainChunk{Offset: 5, Data: []byte("nope")}); err == nil {
		t.Fatalf("expected error writing chunk at wrong offset")
	}
}

func TestResumableWriterOutOfOrderChunksStillProduceCorrectFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.bin")
	w, err := NewResumableWriter(path, 0)
	if err != nil {
		t.Fatalf("NewResumableWriter: %v", err)
	}

	parts := []PlainChunk{
		{Offset: 0, Data: []byte("AAAA")},
		{Offset: 4, Data: []byte("BBBB")},
		{Offset: 8, Data: []byte("CCCC")},
	}
	// write out of order: last, first, middle
	order := []int{2, 0, 1}
	for _, i := range order {
		if err := w.WriteChunk(parts[i]); err != nil {
			t.Fatalf("WriteChunk: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "AAAABBBBCCCC" {
		t.Fatalf("got %q", got)
	}
	if !w.HashComplete(12) {
		t.Fatalf("expected hash to be complete once all offsets filled")
	}

	wantHash, _ := identity.HashReader(strings.NewReader("AAAABBBBCCCC"))
	if w.StrongHash() != wantHash {
		t.Fatalf("strong hash mismatch: got %s want %s", w.StrongHash(), wantHash)
	}
}

func TestResumableWriterDuplicateChunkIsIgnored(t *testing.T) {
	dir := t.TempDir()
	w, err := NewResumableWriter(filepath.Join(dir, "out.bin"), 0)
	if err != nil {
		t.Fatalf("NewResumableWriter: %v", err)
	}
	defer w.Close()

	c := PlainChunk{Offset: 0, Data: []byte("hello")}
	if err := w.WriteChunk(c); err != nil {
		t.Fatalf("first WriteChunk: %v", err)
	}
	if err := w.WriteChunk(c); err != nil {
		t.Fatalf("duplicate WriteChunk should be a no-op, got error: %v", err)
	}
	if !w.HashComplete(5) {
		t.Fatalf("expected hash complete after duplicate write")
	}
}

func TestResumableWriterHashWaitsForGapToClose(t *testing.T) {
	dir := t.TempDir()
	w, err := NewResumableWriter(filepath.Join(dir, "out.bin"), 0)
	if err != nil {
		t.Fatalf("NewResumableWriter: %v", err)
	}
	defer w.Close()

	if err := w.WriteChunk(PlainChunk{Offset: 4, Data: []byte("BBBB")}); err != nil {
		t.Fatalf("WriteChunk: %v", err)
	}
	if w.HashComplete(8) {
		t.Fatalf("hash should not be complete while a gap at offset 0 remains")
	}
	if err := w.WriteChunk(PlainChunk{Offset: 0, Data: []byte("AAAA")}); err != nil {
		t.Fatalf("WriteChunk: %v", err)
	}
	if !w.HashComplete(8) {
		t.Fatalf("hash should be complete once the gap closes")
	}
}

func TestResumableWriterResumedFromNonZeroIncludesDurablePrefixInHash(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.bin")

	if err := os.WriteFile(path, []byte("AAAABBBB"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	w, err := NewResumableWriter(path, 8)
	if err != nil {
		t.Fatalf("NewResumableWriter: %v", err)
	}
	if err := w.WriteChunk(PlainChunk{Offset: 8, Data: []byte("CCCC")}); err != nil {
		t.Fatalf("WriteChunk: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "AAAABBBBCCCC" {
		t.Fatalf("got %q", got)
	}

	wantHash, _ := identity.HashReader(strings.NewReader("AAAABBBBCCCC"))
	if w.StrongHash() != wantHash {
		t.Fatalf("strong hash mismatch: got %s want %s (resume did not include the pre-existing prefix)", w.StrongHash(), wantHash)
	}
}
