package scanning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Source tells whether a Result carries extracted data or the fallback record
type Source string

const (
	SourceExtracted Source = "extracted"
	SourceFallback  Source = "fallback"
)

// ErrNoInvoiceNumber is the fallback reason when the text was read but no
// invoice number could be found in it
var ErrNoInvoiceNumber = errors.New("no invoice number found")

// Result is the outcome of processing one invoice image. Reason is set
// whenever Source is SourceFallback.
type Result struct {
	Extraction Extraction
	Source     Source
	Reason     error
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Pipeline loads an invoice image, cleans it up, runs text recognition and
// extracts the invoice fields. It never fails: any error along the way
// yields the fallback record.
type Pipeline struct {
	recognizer Recognizer
	timeSource TimeSource
	logger     *slog.Logger
}

// NewPipeline creates a Pipeline using the given recognizer
func NewPipeline(recognizer Recognizer, logger *slog.Logger) *Pipeline {
	return NewPipelineWithDeps(recognizer, &defaultTimeSource{}, logger)
}

// NewPipelineWithDeps creates a Pipeline with a custom time source for testing
func NewPipelineWithDeps(recognizer Recognizer, timeSrc TimeSource, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		recognizer: recognizer,
		timeSource: timeSrc,
		logger:     logger,
	}
}

// Process runs the pipeline on the image at path. A panic anywhere in the
// chain is recovered and reported as the fallback reason.
func (p *Pipeline) Process(ctx context.Context, path string) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = p.fallback(path, fmt.Errorf("processing invoice: %v", r))
		}
	}()

	text, err := p.recognize(ctx, path)
	if err != nil {
		return p.fallback(path, err)
	}

	extraction := Extract(text)
	if extraction.InvoiceNumber == nil {
		return p.fallback(path, ErrNoInvoiceNumber)
	}

	p.logger.Info("Extracted invoice",
		"path", path,
		"invoice_number", *extraction.InvoiceNumber,
		"missing", extraction.Missing(),
	)
	return Result{Extraction: extraction, Source: SourceExtracted}
}

func (p *Pipeline) recognize(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	img, err := LoadImage(path)
	if err != nil {
		return "", err
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	processed := Preprocess(img)

	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, err := p.recognizer.Recognize(ctx, processed)
	if err != nil {
		return "", fmt.Errorf("recognizing text: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	return text, nil
}

func (p *Pipeline) fallback(path string, reason error) Result {
	p.logger.Warn("Using fallback invoice data",
		"path", path,
		"reason", reason,
	)
	return Result{
		Extraction: DefaultRecord(p.timeSource.Now()),
		Source:     SourceFallback,
		Reason:     reason,
	}
}
