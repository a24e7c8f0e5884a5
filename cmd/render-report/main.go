package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/joelkehle/priorart-assistant/internal/logging"
	"github.com/joelkehle/priorart-assistant/internal/operator"
)

func main() {
	inputPath := flag.String("input", "", "Markdown report to render (defaults to stdin)")
	outputPath := flag.String("output", "", "Output path (defaults to stdout)")
	format := flag.String("format", "", "html or pdf (inferred from -output extension when empty)")
	title := flag.String("title", "Prior Art Search Report", "Document title")
	webDir := flag.String("web-dir", os.Getenv("WEB_DIR"), "Directory with an optional style.css override")
	flag.Parse()

	logger := logging.New(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	defer func() { _ = logger.Sync() }()

	report, err := readInput(*inputPath)
	if err != nil {
		logger.Fatal("read_input_failed", zap.String("path", *inputPath), zap.Error(err))
	}

	kind := strings.ToLower(strings.TrimSpace(*format))
	if kind == "" {
		kind = strings.TrimPrefix(strings.ToLower(filepath.Ext(*outputPath)), ".")
	}

	var out []byte
	switch kind {
	case "pdf":
		ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
		defer cancel()
		out, err = operator.NewChromiumPDFRenderer(*webDir).Render(ctx, *title, report)
	case "html", "htm", "":
		var body string
		body, err = operator.RenderHTML(report)
		out = []byte(body)
	default:
		err = fmt.Errorf("unsupported format %q", kind)
	}
	if err != nil {
		logger.Fatal("render_failed", zap.String("format", kind), zap.Error(err))
	}

	if *outputPath == "" {
		_, err = os.Stdout.Write(out)
	} else {
		err = os.WriteFile(*outputPath, out, 0o644)
	}
	if err != nil {
		logger.Fatal("write_output_failed", zap.String("path", *outputPath), zap.Error(err))
	}
}

func readInput(path string) (string, error) {
	if path == "" {
		b, err := io.ReadAll(os.Stdin)
		return string(b), err
	}
	b, err := os.ReadFile(path)
	return string(b), err
}
