package export

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// percentEncodeForDataURL escapes everything outside the RFC 3986 unreserved
// set byte by byte. Spaces become %20, never '+'.
func percentEncodeForDataURL(s string) string {
	const hex = "0123456789ABCDEF"
	var result strings.Builder
	result.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '-', c == '_', c == '.', c == '~':
			result.WriteByte(c)
		default:
			result.WriteByte('%')
			result.WriteByte(hex[c>>4])
			result.WriteByte(hex[c&0x0F])
		}
	}
	return result.String()
}

var browserBinaries = []string{"chromium-browser", "chromium", "google-chrome", "google-chrome-stable"}

func findBrowser() (string, bool) {
	for _, name := range browserBinaries {
		if path, err := exec.LookPath(name); err == nil {
			return path, true
		}
	}
	return "", false
}

// pageSetup is US Letter with 0.75in margins; CSS @page rules win.
var pageSetup = struct {
	width, height, margin float64
}{8.5, 11, 0.75}

const renderTimeout = 30 * time.Second

func allocatorOptions(browser string) []chromedp.ExecAllocatorOption {
	return append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(browser),
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
	)
}

func printPage(out *[]byte) chromedp.ActionFunc {
	return func(ctx context.Context) error {
		data, _, err := page.PrintToPDF().
			WithPrintBackground(true).
			WithPaperWidth(pageSetup.width).
			WithPaperHeight(pageSetup.height).
			WithMarginTop(pageSetup.margin).
			WithMarginBottom(pageSetup.margin).
			WithMarginLeft(pageSetup.margin).
			WithMarginRight(pageSetup.margin).
			WithPreferCSSPageSize(true).
			Do(ctx)
		*out = data
		return err
	}
}

// renderChromePDF prints html through a fresh headless browser. A missing
// browser binary is reported as ErrPDFDependencyMissing.
func renderChromePDF(parent context.Context, html, title string) (*Result, error) {
	browser, ok := findBrowser()
	if !ok {
		return nil, fmt.Errorf("%w: chromium not installed", ErrPDFDependencyMissing)
	}

	ctx, cancel := context.WithTimeout(parent, renderTimeout)
	defer cancel()
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocatorOptions(browser)...)
	defer cancelAlloc()
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()

	var data []byte
	if err := chromedp.Run(tabCtx,
		chromedp.Navigate("data:text/html;charset=utf-8,"+percentEncodeForDataURL(html)),
		chromedp.WaitReady("body"),
		printPage(&data),
	); err != nil {
		return nil, fmt.Errorf("print %q to pdf: %w", title, err)
	}
	return &Result{Data: data, Filename: sanitizeFilename(title) + ".pdf", MimeType: "application/pdf"}, nil
}

// sanitizeFilename keeps ASCII letters, digits, '-' and '_', turns spaces
// into hyphens and caps the result at 50 bytes.
func sanitizeFilename(title string) string {
	var b strings.Builder
	for _, r := range title {
		if b.Len() >= 50 {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('-')
		}
	}
	if b.Len() == 0 {
		return "page"
	}
	return b.String()
}
