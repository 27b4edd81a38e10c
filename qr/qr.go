// Package qr generates scannable deep links for a share code: a
// "yoop://CODE" URL rendered as ASCII art for the terminal, SVG for a web
// view, or base64 PNG for embedding.
package qr

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/skip2/go-qrcode"

	"github.com/sanchxt/yoop-sub002/yerr"
)

// Config controls deep-link construction and QR error correction.
type Config struct {
	Scheme          string
	ErrorCorrection qrcode.RecoveryLevel
}

// DefaultConfig is the "yoop://" scheme at medium error correction.
func DefaultConfig() Config {
	return Config{Scheme: "yoop", ErrorCorrection: qrcode.Medium}
}

// DeepLink builds the "<scheme>://<CODE>" URL for a share code, upper-casing
// the code the way the rest of the code package does for display.
func DeepLink(code string, cfg Config) string {
	return fmt.Sprintf("%s://%s", cfg.Scheme, strings.ToUpper(code))
}

func encode(code string, cfg Config) (*qrcode.QRCode, error) {
	link := DeepLink(code, cfg)
	q, err := qrcode.New(link, cfg.ErrorCorrection)
	if err != nil {
		return nil, yerr.Wrap(yerr.KindInternal, "failed to generate qr code", err)
	}
	return q, nil
}

// ASCII renders a share code's deep link as a Unicode block-character QR
// code for terminal display, two source rows per output line.
func ASCII(code string) (string, error) {
	q, err := encode(code, DefaultConfig())
	if err != nil {
		return "", err
	}
	bitmap := q.Bitmap()
	var b strings.Builder
	for y := 0; y < len(bitmap); y += 2 {
		for x := 0; x < len(bitmap[y]); x++ {
			top := bitmap[y][x]
			bottom := false
			if y+1 < len(bitmap) {
				bottom = bitmap[y+1][x]
			}
			b.WriteRune(blockFor(top, bottom))
		}
		b.WriteByte('\n')
	}
	return b.String(), nil
}

// blockFor picks the Unicode half-block character representing a pair of
// vertically stacked QR modules, light modules drawn as filled blocks and
// dark modules as blank space.
func blockFor(top, bottom bool) rune {
	switch {
	case top && bottom:
		return ' '
	case top && !bottom:
		return '▄'
	case !top && bottom:
		return '▀'
	default:
		return '█'
	}
}

// SVG renders a share code's deep link as an SVG QR code sized to at least
// 200x200, suitable for embedding in a web interface.
func SVG(code string) (string, error) {
	q, err := encode(code, DefaultConfig())
	if err != nil {
		return "", err
	}
	bitmap := q.Bitmap()
	modules := len(bitmap)
	const minDim = 200
	scale := (minDim + modules - 1) / modules
	if scale < 1 {
		scale = 1
	}
	dim := modules * scale

	var b strings.Builder
	fmt.Fprintf(&b, `<?xml version="1.0" encoding="UTF-8"?>`+"\n")
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`+"\n",
		dim, dim, dim, dim)
	fmt.Fprintf(&b, `<rect width="%d" height="%d" fill="#ffffff"/>`+"\n", dim, dim)
	for y, row := range bitmap {
		for x, dark := range row {
			if !dark {
				continue
			}
			fmt.Fprintf(&b, `<rect x="%d" y="%d" width="%d" height="%d" fill="#000000"/>`+"\n",
				x*scale, y*scale, scale, scale)
		}
	}
	b.WriteString("</svg>\n")
	return b.String(), nil
}

// PNGBase64 renders a share code's deep link as a base64-encoded PNG of the
// requested pixel size, suitable for a data: URL.
func PNGBase64(code string, size int) (string, error) {
	q, err := encode(code, DefaultConfig())
	if err != nil {
		return "", err
	}
	png, err := q.PNG(size)
	if err != nil {
		return "", yerr.Wrap(yerr.KindInternal, "failed to encode qr png", err)
	}
	return base64.StdEncoding.EncodeToString(png), nil
}
