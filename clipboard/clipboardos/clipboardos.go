// Package clipboardos adapts clipboard.Access to the real OS clipboard.
package clipboardos

import (
	"time"

	atotto "github.com/atotto/clipboard"

	"github.com/sanchxt/yoop-sub002/clipboard"
	"github.com/sanchxt/yoop-sub002/yerr"
)

// OS is the atotto/clipboard-backed Access. atotto only reaches the
// platform's plain-text clipboard API (xclip/xsel, pbcopy/pbpaste,
// the Windows clipboard API), so image reads/writes return
// KindUnsupportedClipboardType rather than silently truncating to text.
type OS struct{}

// New returns the platform clipboard adapter.
func New() *OS { return &OS{} }

func (o *OS) Read() (clipboard.Content, error) {
	text, err := atotto.ReadAll()
	if err != nil {
		return clipboard.Content{}, yerr.Wrap(yerr.KindClipboardError, "failed to read OS clipboard", err)
	}
	if text == "" {
		return clipboard.Content{}, yerr.New(yerr.KindClipboardEmpty, "clipboard is empty")
	}
	return clipboard.NewText(text), nil
}

func (o *OS) Write(c clipboard.Content) error {
	if c.Type != clipboard.ContentText {
		return yerr.New(yerr.KindUnsupportedClipboardType, "this platform adapter only supports text clipboard content")
	}
	if err := atotto.WriteAll(c.Text); err != nil {
		return yerr.Wrap(yerr.KindClipboardError, "failed to write OS clipboard", err)
	}
	return nil
}

// WriteAndWait on this adapter is just Write: the plain OS clipboard
// commands atotto wraps don't hold ownership the way a Wayland image
// selection does, so there is nothing to block on.
func (o *OS) WriteAndWait(c clipboard.Content, _ time.Duration) error {
	return o.Write(c)
}
