package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/joelkehle/priorart-assistant/internal/logging"
	"github.com/joelkehle/priorart-assistant/internal/scrape"
)

func main() {
	var (
		query   = flag.String("q", "", "Search query; builds a Google Patents search URL (overrides -url)")
		target  = flag.String("url", scrape.DefaultURL, "Google Patents search URL to render")
		output  = flag.String("o", "scrape.txt", "File to write the scraped sample to (empty for stdout only)")
		timeout = flag.Duration("timeout", 20*time.Second, "How long to wait for search results to appear")
		settle  = flag.Duration("settle", 5*time.Second, "Extra wait after results appear")
		chrome  = flag.String("chrome", "", "Chromium executable (auto-detected when empty)")
	)
	flag.Parse()

	logger := logging.New(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	defer func() { _ = logger.Sync() }()

	url := *target
	if *query != "" {
		url = scrape.SearchURL(*query)
	}
	if flag.NArg() > 0 {
		url = flag.Arg(0)
	}

	s := scrape.New()
	s.Timeout = *timeout
	s.Settle = *settle
	if *chrome != "" {
		s.ChromePath = *chrome
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("scrape_start", zap.String("url", url), zap.String("chrome", s.ChromePath))
	page, err := s.Scrape(ctx, url)
	if err != nil {
		logger.Fatal("scrape_failed", zap.String("url", url), zap.Error(err))
	}
	text := scrape.Format(page)
	fmt.Print(text)

	if *output != "" {
		if err := os.WriteFile(*output, []byte(text), 0o644); err != nil {
			logger.Fatal("write_output_failed", zap.String("path", *output), zap.Error(err))
		}
		logger.Info("scrape_saved", zap.String("path", *output), zap.Int("items", len(page.Items)))
	}
}
