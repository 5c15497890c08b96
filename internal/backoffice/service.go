// Package backoffice ties OCR extraction and anomaly detection to the
// ledger and exposes them over HTTP.
package backoffice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/invoice-audit/internal/anomaly"
	"github.com/zombor/invoice-audit/internal/ledger"
	"github.com/zombor/invoice-audit/internal/scanning"
)

// ErrInvalidInput marks errors caused by the caller's input
var ErrInvalidInput = errors.New("invalid input")

// Processor turns an invoice image into extracted fields
type Processor interface {
	Process(ctx context.Context, path string) scanning.Result
}

// InvoiceChecker inspects a persisted invoice and records an anomaly when
// it looks wrong
type InvoiceChecker interface {
	Check(ctx context.Context, invoice *ledger.Invoice) (bool, error)
}

// TransactionChecker inspects a persisted transaction and records an
// anomaly when it looks wrong
type TransactionChecker interface {
	Check(ctx context.Context, transaction *ledger.Transaction) (bool, error)
}

// IDGenerator generates unique IDs for records
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service handles back-office operations
type Service struct {
	db          ledger.DB
	processor   Processor
	storage     Storage
	duplicates  InvoiceChecker
	outliers    TransactionChecker
	idGenerator IDGenerator
	timeSource  TimeSource
	logger      *slog.Logger
	ocrTimeout  time.Duration
}

// NewService creates a new Service with the standard detectors, UUIDs and
// the wall clock
func NewService(db ledger.DB, processor Processor, storage Storage, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return NewServiceWithDeps(
		db, processor, storage,
		anomaly.NewDuplicateDetector(db, logger),
		anomaly.NewOutlierDetector(db, logger),
		&uuidGenerator{}, &defaultTimeSource{}, logger,
	)
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(
	db ledger.DB,
	processor Processor,
	storage Storage,
	duplicates InvoiceChecker,
	outliers TransactionChecker,
	idGen IDGenerator,
	timeSrc TimeSource,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:          db,
		processor:   processor,
		storage:     storage,
		duplicates:  duplicates,
		outliers:    outliers,
		idGenerator: idGen,
		timeSource:  timeSrc,
		logger:      logger,
	}
}

// SetOCRTimeout bounds how long a single upload may spend in the OCR
// pipeline. Zero means no bound beyond the request's own context.
func (s *Service) SetOCRTimeout(d time.Duration) {
	s.ocrTimeout = d
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
)

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	filename = filepath.Base(filename)
	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.TrimSuffix(filename, filepath.Ext(filename))

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = repeatedSpaces.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "invoice"
	}
	if ext == "." {
		ext = ""
	}
	return base + ext
}

// UploadResult is the outcome of uploading an invoice
type UploadResult struct {
	Invoice   *ledger.Invoice
	Source    scanning.Source
	Reason    error
	Duplicate bool
}

// UploadInvoice runs OCR on an uploaded invoice file, stores the original,
// persists the invoice and checks it for duplicates
func (s *Service) UploadInvoice(ctx context.Context, filename string, data []byte, contentType string) (*UploadResult, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrInvalidInput)
	}

	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	result, err := s.extract(ctx, filename, data)
	if err != nil {
		return nil, err
	}

	savedName, err := s.storage.Save(fmt.Sprintf("%s_%s", id, sanitizeFilename(filename)), data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	invoice := newInvoice(id, result, now)
	invoice.Filename = savedName
	invoice.ContentType = contentType

	if err := s.db.SaveInvoice(invoice); err != nil {
		// Clean up file if database save fails
		if delErr := s.storage.Delete(savedName); delErr != nil {
			s.logger.Warn("Failed to delete file", "filename", savedName, "error", delErr)
		}
		return nil, fmt.Errorf("saving invoice to database: %w", err)
	}

	s.logger.Info("Invoice uploaded",
		"invoice_id", invoice.ID,
		"source", result.Source,
		"needs_review", invoice.NeedsReview,
	)

	duplicate, err := s.duplicates.Check(ctx, invoice)
	if err != nil {
		return nil, fmt.Errorf("checking for duplicates: %w", err)
	}

	return &UploadResult{
		Invoice:   invoice,
		Source:    result.Source,
		Reason:    result.Reason,
		Duplicate: duplicate,
	}, nil
}

// extract writes the upload to a temporary file for the pipeline and
// removes it afterwards
func (s *Service) extract(ctx context.Context, filename string, data []byte) (scanning.Result, error) {
	tmp, err := os.CreateTemp("", "invoice-*"+strings.ToLower(filepath.Ext(filepath.Base(filename))))
	if err != nil {
		return scanning.Result{}, fmt.Errorf("creating temp file: %w", err)
	}
	defer func() {
		if err := os.Remove(tmp.Name()); err != nil {
			s.logger.Warn("Failed to remove temp file", "path", tmp.Name(), "error", err)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return scanning.Result{}, fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return scanning.Result{}, fmt.Errorf("closing temp file: %w", err)
	}

	if s.ocrTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.ocrTimeout)
		defer cancel()
	}
	return s.processor.Process(ctx, tmp.Name()), nil
}

// newInvoice builds a pending invoice from a pipeline result
func newInvoice(id string, result scanning.Result, now time.Time) *ledger.Invoice {
	e := result.Extraction
	invoice := &ledger.Invoice{
		ID:          id,
		InvoiceDate: e.InvoiceDate,
		DueDate:     e.DueDate,
		TotalAmount: e.TotalAmount,
		TaxAmount:   e.TaxAmount,
		Status:      ledger.InvoicePending,
		Items:       make([]ledger.LineItem, 0, len(e.Items)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if e.InvoiceNumber != nil {
		invoice.InvoiceNumber = *e.InvoiceNumber
	}
	if e.Supplier != nil {
		invoice.Supplier = *e.Supplier
	}
	for _, item := range e.Items {
		invoice.Items = append(invoice.Items, ledger.LineItem{
			InvoiceID:   id,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			TotalPrice:  item.TotalPrice,
		})
	}

	switch result.Source {
	case scanning.SourceFallback:
		invoice.Source = ledger.SourceFallback
		invoice.NeedsReview = true
	default:
		invoice.Source = ledger.SourceExtracted
		invoice.MissingFields = e.Missing()
		// Text that merely looks like demo data still gets a human look
		invoice.NeedsReview = len(invoice.MissingFields) > 0 || scanning.IsFallbackNumber(invoice.InvoiceNumber)
	}
	return invoice
}

// GetInvoice retrieves an invoice by ID
func (s *Service) GetInvoice(id string) (*ledger.Invoice, error) {
	invoice, err := s.db.GetInvoice(id)
	if err != nil {
		return nil, fmt.Errorf("getting invoice: %w", err)
	}
	return invoice, nil
}

// ListInvoices returns all invoices
func (s *Service) ListInvoices() ([]*ledger.Invoice, error) {
	invoices, err := s.db.ListInvoices()
	if err != nil {
		return nil, fmt.Errorf("listing invoices: %w", err)
	}
	return invoices, nil
}

// DeleteInvoice removes an invoice and its file
func (s *Service) DeleteInvoice(id string) error {
	invoice, err := s.db.GetInvoice(id)
	if err != nil {
		return fmt.Errorf("getting invoice for deletion: %w", err)
	}

	if invoice.Filename != "" {
		if err := s.storage.Delete(invoice.Filename); err != nil {
			// Log error but continue with database deletion
			s.logger.Warn("Failed to delete file", "filename", invoice.Filename, "error", err)
		}
	}

	if err := s.db.DeleteInvoice(id); err != nil {
		return fmt.Errorf("deleting invoice from database: %w", err)
	}
	return nil
}

// GetInvoiceFile retrieves the original file of an invoice
func (s *Service) GetInvoiceFile(id string) ([]byte, string, error) {
	invoice, err := s.db.GetInvoice(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting invoice: %w", err)
	}
	if invoice.Filename == "" {
		return nil, "", fmt.Errorf("invoice %s has no file: %w", id, ledger.ErrNotFound)
	}

	data, err := s.storage.Get(invoice.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting invoice file: %w", err)
	}
	return data, invoice.ContentType, nil
}
