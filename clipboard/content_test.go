package clipboard

import "testing"

func TestContentHashStableForSameText(t *testing.T) {
	a := NewText("hello")
	b := NewText("hello")
	if a.Hash() != b.Hash() {
		t.Fatalf("expected identical text to hash identically")
	}
}

func TestContentHashDiffersAcrossTypesWithSameBytes(t *testing.T) {
	text := NewText("abc")
	image := NewImage([]byte("abc"), 1, 1, ImageEncodingPNG)
	if text.Hash() == image.Hash() {
		t.Fatalf("expected text and image variants carrying the same raw bytes to hash differently")
	}
}

func TestContentHashDiffersOnDimensions(t *testing.T) {
	a := NewImage([]byte{1, 2, 3}, 10, 20, ImageEncodingPNG)
	b := NewImage([]byte{1, 2, 3}, 20, 10, ImageEncodingPNG)
	if a.Hash() == b.Hash() {
		t.Fatalf("expected differing dimensions to change the hash even with identical pixel bytes")
	}
}

func TestContentEmpty(t *testing.T) {
	if !(Content{}).Empty() {
		t.Fatalf("expected zero-value Content to be Empty")
	}
	if NewText("x").Empty() {
		t.Fatalf("expected non-empty text to not be Empty")
	}
	if NewImage([]byte{1}, 1, 1, ImageEncodingPNG).Empty() {
		t.Fatalf("expected non-empty image to not be Empty")
	}
}
