// Package resume implements the ResumeState document and the manager
// that persists, enumerates, and expires it (spec §4.8): the record a
// receiver keeps of partial progress so an interrupted transfer can
// continue from where it left off instead of restarting.
package resume

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// FileEntry is the minimal per-file bookkeeping a ResumeState needs: a
// stable position in manifest order plus its declared size.
type FileEntry struct {
	RelativePath string `json:"relative_path"`
	Size         uint64 `json:"size"`
}

// ChunkSet is the set of chunk indices completed for one file.
type ChunkSet map[uint32]bool

// State is one transfer's resume bookkeeping (spec §3 ResumeState).
type State struct {
	TransferID        uuid.UUID          `json:"transfer_id"`
	Code              string             `json:"code"`
	Files             []FileEntry        `json:"files"`
	SenderDeviceName  string             `json:"sender_device_name"`
	SenderDeviceID    uuid.UUID          `json:"sender_device_id"`
	OutputDir         string             `json:"output_dir"`
	CompletedChunks   map[int]ChunkSet   `json:"completed_chunks"`
	BytesReceived     uint64             `json:"bytes_received"`
	TotalBytes        uint64             `json:"total_bytes"`
	UpdatedAt         time.Time          `json:"updated_at"`
	ProtocolVersion   uint32             `json:"protocol_version"`
	CompletedFiles    map[int]bool       `json:"completed_files"`
	PerFileStrongHash map[int]string     `json:"per_file_strong_hash,omitempty"`
}

// New builds a fresh ResumeState with no progress recorded yet.
func New(transferID uuid.UUID, code string, files []FileEntry, senderName string, senderID uuid.UUID, outputDir string) *State {
	var total uint64
	for _, f := range files {
		total += f.Size
	}
	return &State{
		TransferID:       transferID,
		Code:             code,
		Files:            files,
		SenderDeviceName: senderName,
		SenderDeviceID:   senderID,
		OutputDir:        outputDir,
		CompletedChunks:  make(map[int]ChunkSet),
		TotalBytes:       total,
		ProtocolVersion:  1,
		CompletedFiles:   make(map[int]bool),
		UpdatedAt:        time.Now().UTC(),
	}
}

// MarkChunkCompleted records chunkIndex as done for fileIndex,
// idempotently: a repeated completion for the same index neither
// double-counts bytesReceived nor errors.
func (s *State) MarkChunkCompleted(fileIndex int, chunkIndex uint32, byteCount uint64) {
	set, ok := s.CompletedChunks[fileIndex]
	if !ok {
		set = make(ChunkSet)
		s.CompletedChunks[fileIndex] = set
	}
	if set[chunkIndex] {
		return
	}
	set[chunkIndex] = true
	s.BytesReceived += byteCount
	s.UpdatedAt = time.Now().UTC()
}

// GetCompletedChunks returns the completed chunk indices for fileIndex,
// sorted ascending.
func (s *State) GetCompletedChunks(fileIndex int) []uint32 {
	set := s.CompletedChunks[fileIndex]
	out := make([]uint32, 0, len(set))
	for idx := range set {
		out = append(out, idx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MarkFileCompleted records fileIndex as fully received, along with its
// verified whole-file strong hash.
func (s *State) MarkFileCompleted(fileIndex int, strongHash string) {
	if s.CompletedFiles == nil {
		s.CompletedFiles = make(map[int]bool)
	}
	s.CompletedFiles[fileIndex] = true
	if s.PerFileStrongHash == nil {
		s.PerFileStrongHash = make(map[int]string)
	}
	s.PerFileStrongHash[fileIndex] = strongHash
	s.UpdatedAt = time.Now().UTC()
}

// IsFileCompleted reports whether fileIndex has been fully received.
func (s *State) IsFileCompleted(fileIndex int) bool { return s.CompletedFiles[fileIndex] }

// IsTransferCompleted reports whether every file in the manifest is
// complete. An empty file list is trivially complete.
func (s *State) IsTransferCompleted() bool {
	for i := range s.Files {
		if !s.IsFileCompleted(i) {
			return false
		}
	}
	return true
}

// ProgressPercentage returns bytes received as a percentage of total
// bytes. An empty transfer (TotalBytes == 0) is trivially 100%.
func (s *State) ProgressPercentage() float64 {
	if s.TotalBytes == 0 {
		return 100
	}
	return float64(s.BytesReceived) / float64(s.TotalBytes) * 100
}

// Expired reports whether this state is older than retention and should
// be swept by cleanup_expired.
func (s *State) Expired(now time.Time, retention time.Duration) bool {
	return now.Sub(s.UpdatedAt) > retention
}
