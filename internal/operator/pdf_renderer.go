package operator

import (
	"context"
	"encoding/base64"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/joelkehle/priorart-assistant/internal/llm"
)

type ReportPDFRenderer interface {
	Render(ctx context.Context, title, report string) ([]byte, error)
}

var (
	reDetailedAnalysis = regexp.MustCompile(`(?i)<h2([^>]*)>\s*Detailed Analysis\s*</h2>`)
	reNoticeParagraph  = regexp.MustCompile(`<p><strong>((?:Retrieval|Ranking|Detailed analysis) skipped:|Ranking failed:|Skipped:|Analysis failed:)</strong>`)
)

// RenderHTML converts a markdown report into an HTML fragment. A report the
// model wrapped in a code fence is unwrapped first.
func RenderHTML(report string) (string, error) {
	var out strings.Builder
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	if err := md.Convert([]byte(llm.StripCodeFences(report)), &out); err != nil {
		return "", fmt.Errorf("markdown convert: %w", err)
	}
	return applyPrintLayoutHooks(out.String()), nil
}

func applyPrintLayoutHooks(contentHTML string) string {
	out := reDetailedAnalysis.ReplaceAllString(contentHTML, `<h2$1 data-page-break-before="true">Detailed Analysis</h2>`)
	return reNoticeParagraph.ReplaceAllString(out, `<p class="report-notice"><strong>$1</strong>`)
}

type ChromiumPDFRenderer struct {
	webDir     string
	chromePath string
	timeout    time.Duration
	styleOnce  sync.Once
	styleCSS   string
}

func NewChromiumPDFRenderer(webDir string) *ChromiumPDFRenderer {
	return &ChromiumPDFRenderer{
		webDir:     webDir,
		chromePath: detectChromePath(),
		timeout:    30 * time.Second,
	}
}

func (r *ChromiumPDFRenderer) Render(ctx context.Context, title, report string) ([]byte, error) {
	htmlDoc, err := r.buildHTML(title, report)
	if err != nil {
		return nil, err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
	}
	if r.chromePath != "" {
		opts = append(opts, chromedp.ExecPath(r.chromePath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(timeoutCtx, append(chromedp.DefaultExecAllocatorOptions[:], opts...)...)
	defer allocCancel()

	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	var pdf []byte
	dataURL := "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(htmlDoc))
	if err := chromedp.Run(taskCtx,
		chromedp.Navigate(dataURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			footer := `<div style="width:100%;text-align:center;font-size:9px;color:#666;">` +
				`Page <span class="pageNumber"></span> of <span class="totalPages"></span></div>`
			out, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithDisplayHeaderFooter(true).
				WithHeaderTemplate(`<div></div>`).
				WithFooterTemplate(footer).
				WithPaperWidth(8.27).
				WithPaperHeight(11.69).
				WithMarginTop(0.5).
				WithMarginBottom(0.75).
				WithMarginLeft(0.45).
				WithMarginRight(0.45).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = out
			return nil
		}),
	); err != nil {
		return nil, err
	}
	return pdf, nil
}

func (r *ChromiumPDFRenderer) buildHTML(title, report string) (string, error) {
	content, err := RenderHTML(report)
	if err != nil {
		return "", err
	}
	return "<!doctype html><html><head><meta charset='utf-8'><title>" + html.EscapeString(title) + "</title>" +
		"<style>" + r.loadStyleCSS() + "\n" +
		`h2[data-page-break-before="true"]{break-before:page;page-break-before:always;} ` +
		"@media print{ @page{size:auto;margin:12mm;} body{background:#fff;padding:0;} }" +
		"</style></head><body><div class='report-html'>" + content + "</div></body></html>", nil
}

// loadStyleCSS prefers WEB_DIR/style.css and falls back to the built-in sheet.
func (r *ChromiumPDFRenderer) loadStyleCSS() string {
	r.styleOnce.Do(func() {
		r.styleCSS = reportCSS
		if r.webDir == "" {
			return
		}
		if b, err := os.ReadFile(filepath.Join(r.webDir, "style.css")); err == nil {
			r.styleCSS = string(b)
		}
	})
	return r.styleCSS
}

func detectChromePath() string {
	candidates := []string{
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/usr/bin/google-chrome",
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
