// Command runextract parses a single invoice PDF from disk and prints the
// extracted fields as JSON. Useful for tuning prompts against real invoices
// without a mailbox or database.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"

	"github.com/haulstack/invoice-ingest/internal/common"
	"github.com/haulstack/invoice-ingest/internal/config"
	"github.com/haulstack/invoice-ingest/internal/extract"
	"github.com/haulstack/invoice-ingest/internal/ocr"
)

func main() {
	textOnly := flag.Bool("text-only", false, "print the extracted text and skip AI extraction")
	flag.Parse()

	if flag.NArg() != 1 {
		os.Stderr.WriteString("usage: runextract [-text-only] <invoice.pdf>\n")
		os.Exit(2)
	}
	path := flag.Arg(0)

	cfg, err := config.Load()
	if err != nil {
		common.NewLogger("info", "text").Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := common.NewLogger(cfg.LogLevel, cfg.LogFormat)
	ctx := context.Background()

	extractor := ocr.NewExtractor(ocr.Config{
		Pdftotext: cfg.Pdftotext,
		Pdftoppm:  cfg.Pdftoppm,
		Tesseract: cfg.Tesseract,
		DPI:       cfg.OCRDPI,
	}, logger)

	text, err := extractor.ExtractText(ctx, path)
	if err != nil {
		logger.Error("text extraction failed", "path", path, "error", err)
		os.Exit(1)
	}
	if text == "" {
		logger.Error("no text could be extracted", "path", path)
		os.Exit(1)
	}
	if *textOnly {
		os.Stdout.WriteString(text + "\n")
		return
	}

	fields, err := extract.FromConfig(cfg, logger)
	if err != nil {
		logger.Error("failed to init extraction providers", "error", err)
		os.Exit(1)
	}
	res, err := fields.Extract(ctx, text)
	if err != nil {
		logger.Error("field extraction failed", "error", err)
		os.Exit(1)
	}

	out := map[string]any{
		"provider":  res.Provider,
		"fell_back": res.FellBack,
		"fields":    res.Fields,
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		logger.Error("failed to write output", "error", err)
		os.Exit(1)
	}
}
