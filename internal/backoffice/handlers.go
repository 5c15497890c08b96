package backoffice

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/invoice-audit/internal/ledger"
)

// Maximum upload size; high-resolution phone photos and scanned PDFs can be large
const maxUploadSize = int64(50 << 20)

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Error encoding response", "error", err)
	}
}

func (s *Server) writeJSONError(w http.ResponseWriter, code int, message string) {
	setCORSHeaders(w)
	s.writeJSON(w, code, map[string]string{"error": message})
}

// writeServiceError maps service errors onto status codes
func (s *Server) writeServiceError(w http.ResponseWriter, err error, what string) {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		s.writeJSONError(w, http.StatusNotFound, what+" not found")
	case errors.Is(err, ErrInvalidInput):
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("Request failed", "resource", what, "error", err)
		s.writeJSONError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// uploadResponse is returned after an upload
type uploadResponse struct {
	Invoice   *ledger.Invoice `json:"invoice"`
	Source    string          `json:"source"`
	Reason    string          `json:"reason,omitempty"`
	Duplicate bool            `json:"duplicate"`
}

// handleUploadInvoice handles invoice upload with OCR
func (s *Server) handleUploadInvoice(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		s.logger.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			errorMsg = "File is too large. Maximum size is 50MB."
		}
		s.writeJSONError(w, http.StatusBadRequest, errorMsg)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		s.logger.Error("Error getting file from form", "error", err)
		s.writeJSONError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		s.logger.Error("Error reading file data", "error", err, "filename", header.Filename)
		s.writeJSONError(w, http.StatusInternalServerError, "Error reading file. Please try again.")
		return
	}

	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = contentTypeFromExt(header.Filename)
	}

	result, err := s.service.UploadInvoice(r.Context(), header.Filename, data, contentType)
	if err != nil {
		s.writeServiceError(w, err, "Invoice")
		return
	}

	resp := uploadResponse{
		Invoice:   result.Invoice,
		Source:    string(result.Source),
		Duplicate: result.Duplicate,
	}
	if result.Reason != nil {
		resp.Reason = result.Reason.Error()
	}
	s.writeJSON(w, http.StatusCreated, resp)
}

func contentTypeFromExt(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	case ".tif", ".tiff":
		return "image/tiff"
	default:
		return "application/octet-stream"
	}
}

// handleListInvoices returns a list of all invoices
func (s *Server) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := s.service.ListInvoices()
	if err != nil {
		s.writeServiceError(w, err, "Invoices")
		return
	}

	// Ensure we always return an array, not nil
	if invoices == nil {
		invoices = []*ledger.Invoice{}
	}
	s.writeJSON(w, http.StatusOK, invoices)
}

// handleGetInvoice returns a single invoice
func (s *Server) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	invoice, err := s.service.GetInvoice(r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err, "Invoice")
		return
	}
	s.writeJSON(w, http.StatusOK, invoice)
}

// handleGetInvoiceFile returns the original file of an invoice
func (s *Server) handleGetInvoiceFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetInvoiceFile(r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err, "Invoice file")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleDeleteInvoice deletes an invoice
func (s *Server) handleDeleteInvoice(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteInvoice(r.PathValue("id")); err != nil {
		s.writeServiceError(w, err, "Invoice")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleExportInvoices streams all invoices as CSV
func (s *Server) handleExportInvoices(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="invoices.csv"`)
	if err := s.service.ExportInvoicesCSV(w); err != nil {
		// Headers may already be sent; all we can do is log
		s.logger.Error("Error exporting invoices", "error", err)
	}
}

// transactionRequest is the body of a create transaction request
type transactionRequest struct {
	Date        string          `json:"transaction_date"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Type        string          `json:"transaction_type"`
	Status      string          `json:"status"`
	BankAccount string          `json:"bank_account"`
}

// parseDate accepts a plain date or an RFC 3339 timestamp
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(reportDateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q", ErrInvalidInput, s)
	}
	return t, nil
}

// handleCreateTransaction records a transaction
func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	in := NewTransaction{
		Amount:        req.Amount,
		Description:   req.Description,
		Type:          ledger.TransactionType(req.Type),
		Status:        ledger.TransactionStatus(req.Status),
		BankAccountID: req.BankAccount,
	}
	if req.Date != "" {
		date, err := parseDate(req.Date)
		if err != nil {
			s.writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		in.Date = date
	}

	transaction, unusual, err := s.service.CreateTransaction(r.Context(), in)
	if err != nil {
		s.writeServiceError(w, err, "Transaction")
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"transaction": transaction,
		"unusual":     unusual,
	})
}

// handleListTransactions returns transactions, optionally filtered by
// type, status and bank account
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := ledger.TransactionFilter{
		Type:          ledger.TransactionType(query.Get("type")),
		Status:        ledger.TransactionStatus(query.Get("status")),
		BankAccountID: query.Get("bank_account"),
	}
	transactions, err := s.service.ListTransactions(filter)
	if err != nil {
		s.writeServiceError(w, err, "Transactions")
		return
	}
	if transactions == nil {
		transactions = []*ledger.Transaction{}
	}
	s.writeJSON(w, http.StatusOK, transactions)
}

// bankAccountRequest is the body of a create bank account request
type bankAccountRequest struct {
	AccountName    string          `json:"account_name"`
	AccountNumber  string          `json:"account_number"`
	BankName       string          `json:"bank_name"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
}

func (s *Server) handleCreateBankAccount(w http.ResponseWriter, r *http.Request) {
	var req bankAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	account, err := s.service.CreateBankAccount(NewBankAccount(req))
	if err != nil {
		s.writeServiceError(w, err, "Bank account")
		return
	}
	s.writeJSON(w, http.StatusCreated, account)
}

func (s *Server) handleListBankAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.service.ListBankAccounts()
	if err != nil {
		s.writeServiceError(w, err, "Bank accounts")
		return
	}
	s.writeJSON(w, http.StatusOK, accounts)
}

func (s *Server) handleGetBankAccount(w http.ResponseWriter, r *http.Request) {
	account, err := s.service.GetBankAccount(r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err, "Bank account")
		return
	}
	s.writeJSON(w, http.StatusOK, account)
}

// handleGetTransaction returns a single transaction
func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	transaction, err := s.service.GetTransaction(r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err, "Transaction")
		return
	}
	s.writeJSON(w, http.StatusOK, transaction)
}

// handleReconcileTransaction links a transaction with an invoice
func (s *Server) handleReconcileTransaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TransactionID string `json:"transaction_id"`
		InvoiceID     string `json:"invoice_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := s.service.ReconcileTransaction(req.TransactionID, req.InvoiceID)
	if err != nil {
		s.writeServiceError(w, err, "Transaction or invoice")
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// handleListAnomalies returns anomalies, optionally filtered
func (s *Server) handleListAnomalies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ledger.AnomalyFilter{
		Type:                 ledger.AnomalyType(q.Get("type")),
		Status:               ledger.AnomalyStatus(q.Get("status")),
		RelatedInvoiceID:     q.Get("invoice"),
		RelatedTransactionID: q.Get("transaction"),
	}
	anomalies, err := s.service.ListAnomalies(filter)
	if err != nil {
		s.writeServiceError(w, err, "Anomalies")
		return
	}
	if anomalies == nil {
		anomalies = []*ledger.Anomaly{}
	}
	s.writeJSON(w, http.StatusOK, anomalies)
}

// handleResolveAnomaly marks an anomaly as resolved
func (s *Server) handleResolveAnomaly(w http.ResponseWriter, r *http.Request) {
	a, err := s.service.ResolveAnomaly(r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err, "Anomaly")
		return
	}
	s.writeJSON(w, http.StatusOK, a)
}

// handleMarkFalsePositive marks an anomaly as a false positive
func (s *Server) handleMarkFalsePositive(w http.ResponseWriter, r *http.Request) {
	a, err := s.service.MarkFalsePositive(r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err, "Anomaly")
		return
	}
	s.writeJSON(w, http.StatusOK, a)
}

// handleIncomeStatement generates an income statement for a date range
func (s *Server) handleIncomeStatement(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StartDate string `json:"start_date"`
		EndDate   string `json:"end_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.StartDate == "" || req.EndDate == "" {
		s.writeJSONError(w, http.StatusBadRequest, "Start date and end date are required")
		return
	}

	start, err := parseDate(req.StartDate)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	end, err := parseDate(req.EndDate)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := s.service.GenerateIncomeStatement(start, end)
	if err != nil {
		s.writeServiceError(w, err, "Report")
		return
	}
	s.writeJSON(w, http.StatusCreated, report)
}

// handleListReports returns all generated reports
func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	reports, err := s.service.ListReports()
	if err != nil {
		s.writeServiceError(w, err, "Reports")
		return
	}
	if reports == nil {
		reports = []*ledger.Report{}
	}
	s.writeJSON(w, http.StatusOK, reports)
}
