// Package scrape renders Google Patents search pages in headless Chromium and
// extracts a plain-text sample.
package scrape

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
)

const (
	DefaultURL     = "https://patents.google.com/?q=%E5%8F%AF%E4%BA%92%E6%8F%9B%E7%87%83%E6%96%99%E7%BB%84%E4%BB%B6"
	ResultSelector = "#resultsContainer search-result-item"
	SampleChars    = 2000
	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

type Page struct {
	URL   string
	Title string
	// Text is whitespace-collapsed and capped at SampleChars runes.
	Text  string
	Items []Item
}

type Item struct {
	Title string
	ID    string
}

type Scraper struct {
	ChromePath string
	// Timeout bounds waiting for the first result to render.
	Timeout time.Duration
	// Settle is extra time given to client-side rendering after the first result appears.
	Settle time.Duration
}

func New() *Scraper {
	return &Scraper{ChromePath: detectChromePath(), Timeout: 20 * time.Second, Settle: 5 * time.Second}
}

func SearchURL(query string) string {
	return "https://patents.google.com/?q=" + url.QueryEscape(query)
}

func (s *Scraper) Scrape(ctx context.Context, target string) (Page, error) {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(userAgent),
		chromedp.WindowSize(1920, 1080),
	}
	if s.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(s.ChromePath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, append(chromedp.DefaultExecAllocatorOptions[:], opts...)...)
	defer allocCancel()
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	waitCtx, waitCancel := context.WithTimeout(taskCtx, s.Timeout+s.Settle+10*time.Second)
	defer waitCancel()

	var html string
	err := chromedp.Run(waitCtx,
		chromedp.Navigate(target),
		chromedp.ActionFunc(func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, s.Timeout)
			defer cancel()
			if err := chromedp.WaitVisible(ResultSelector, chromedp.ByQuery).Do(ctx); err != nil {
				return fmt.Errorf("element %s did not appear within %s: %w", ResultSelector, s.Timeout, err)
			}
			return nil
		}),
		chromedp.Sleep(s.Settle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return Page{}, fmt.Errorf("render %s: %w", target, err)
	}
	if strings.TrimSpace(html) == "" {
		return Page{}, fmt.Errorf("render %s: empty page source", target)
	}
	return Parse(target, html)
}

// Parse extracts the title, result items and a text sample from rendered HTML.
func Parse(target, html string) (Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Page{}, fmt.Errorf("parse html: %w", err)
	}
	page := Page{URL: target, Title: strings.TrimSpace(doc.Find("title").First().Text())}
	if page.Title == "" {
		page.Title = "No title found"
	}

	doc.Find("search-result-item").Each(func(_ int, sel *goquery.Selection) {
		item := Item{
			Title: collapse(sel.Find("h3").First().Text()),
			ID:    collapse(sel.Find("[data-proto='OPEN_PATENT_PDF'], .pdfLink, span.style-scope.search-result-item").First().Text()),
		}
		if item.Title != "" || item.ID != "" {
			page.Items = append(page.Items, item)
		}
	})

	container := doc.Find("#resultsContainer").First()
	if container.Length() == 0 {
		container = doc.Find("body").First()
	}
	container.Find("script, style").Remove()
	page.Text = truncate(collapse(container.Text()), SampleChars)
	if page.Text == "" {
		page.Text = "No relevant text content found"
	}
	return page, nil
}

func Format(p Page) string {
	var b strings.Builder
	b.WriteString("--- Scraped Content ---\n")
	fmt.Fprintf(&b, "URL: %s\n", p.URL)
	fmt.Fprintf(&b, "Page Title: %s\n", p.Title)
	if len(p.Items) > 0 {
		fmt.Fprintf(&b, "Result Items: %d\n", len(p.Items))
		for i, it := range p.Items {
			fmt.Fprintf(&b, "  %d. %s %s\n", i+1, it.ID, it.Title)
		}
	}
	fmt.Fprintf(&b, "\nSample Text Content (first %d chars):\n%s\n", SampleChars, p.Text)
	b.WriteString("-----------------------\n")
	return b.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func detectChromePath() string {
	for _, p := range []string{"/usr/bin/chromium-browser", "/usr/bin/chromium", "/usr/bin/google-chrome"} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
