// Package consent opens admin consent URLs for the operator.
package consent

import (
	"fmt"
	"io"

	"github.com/pkg/browser"

	"github.com/agent365/a365ctl/internal/logging"
)

// BrowserPrompter opens consent URLs in the local default browser. With
// NoBrowser set it only prints the URL, for remote shells and CI.
type BrowserPrompter struct {
	NoBrowser bool
	Out       io.Writer
}

// OpenConsentURL shows the consent URL to the operator. The URL is always
// printed so it survives a browser that opens on the wrong profile.
func (p *BrowserPrompter) OpenConsentURL(url string) error {
	fmt.Fprintf(p.Out, "Grant admin consent at:\n\n  %s\n\n", url)
	if p.NoBrowser {
		return nil
	}
	if err := browser.OpenURL(url); err != nil {
		logging.Debug("browser launch failed", "error", err)
		return fmt.Errorf("could not open a browser: %w", err)
	}
	return nil
}
