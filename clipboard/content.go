// Package clipboard bridges the OS clipboard with a sync session: typed
// content, hash-based change detection, and echo suppression so a write
// triggered by a remote update is never re-detected as a local change
// (spec §4.10).
package clipboard

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// ContentType tags which variant of Content is populated.
type ContentType int

const (
	ContentText ContentType = iota
	ContentImage
)

func (t ContentType) String() string {
	if t == ContentImage {
		return "image"
	}
	return "text"
}

// ImageEncoding names the pixel encoding carried alongside raw image
// bytes (currently only PNG is produced by any OS adapter).
type ImageEncoding string

const ImageEncodingPNG ImageEncoding = "png"

// Content is a tagged clipboard payload: exactly one of Text or ImageData
// is meaningful, selected by Type.
type Content struct {
	Type          ContentType
	Text          string
	ImageData     []byte
	ImageWidth    uint32
	ImageHeight   uint32
	ImageEncoding ImageEncoding
}

// NewText builds a text Content value.
func NewText(text string) Content {
	return Content{Type: ContentText, Text: text}
}

// NewImage builds an image Content value.
func NewImage(data []byte, width, height uint32, enc ImageEncoding) Content {
	return Content{Type: ContentImage, ImageData: data, ImageWidth: width, ImageHeight: height, ImageEncoding: enc}
}

// Empty reports whether this value carries no content at all.
func (c Content) Empty() bool {
	return c.Type == ContentText && c.Text == "" && len(c.ImageData) == 0
}

// Hash returns a stable 64-bit identity for this content, used by
// Watcher to detect changes without storing the full payload.
// Text and image content are disjoint in hash space because each mixes
// in its own tag byte ahead of the payload.
func (c Content) Hash() uint64 {
	h := xxhash.New()
	switch c.Type {
	case ContentText:
		h.Write([]byte{byte(ContentText)})
		h.Write([]byte(c.Text))
	case ContentImage:
		h.Write([]byte{byte(ContentImage)})
		var dims [8]byte
		binary.LittleEndian.PutUint32(dims[0:4], c.ImageWidth)
		binary.LittleEndian.PutUint32(dims[4:8], c.ImageHeight)
		h.Write(dims[:])
		h.Write(c.ImageData)
	}
	return h.Sum64()
}
