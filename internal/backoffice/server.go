package backoffice

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Server handles HTTP requests for the back office
type Server struct {
	service   *Service
	basicAuth BasicAuth
	mux       *http.ServeMux
	logger    *slog.Logger
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// NewServer creates a new Server with default mux
func NewServer(service *Service, basicAuth BasicAuth, logger *slog.Logger) *Server {
	return NewServerWithMux(service, basicAuth, http.NewServeMux(), logger)
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(service *Service, basicAuth BasicAuth, mux *http.ServeMux, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		service:   service,
		basicAuth: basicAuth,
		mux:       mux,
		logger:    logger,
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true // No auth required if not configured
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	credentials := strings.SplitN(string(decoded), ":", 2)
	if len(credentials) != 2 {
		return false
	}

	userOK := subtle.ConstantTimeCompare([]byte(credentials[0]), []byte(s.basicAuth.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(credentials[1]), []byte(s.basicAuth.Password)) == 1
	return userOK && passOK
}

// corsMiddleware adds CORS headers to responses
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Invoice Audit"`)
			corsError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// registerRoutes registers all API routes on the server's mux
func (s *Server) registerRoutes() {
	// Invoices
	s.mux.HandleFunc("POST /api/invoices/upload", s.requireAuth(s.handleUploadInvoice))
	s.mux.HandleFunc("GET /api/invoices/export", s.requireAuth(s.handleExportInvoices))
	s.mux.HandleFunc("GET /api/invoices/{id}/file", s.requireAuth(s.handleGetInvoiceFile))
	s.mux.HandleFunc("GET /api/invoices/{id}", s.requireAuth(s.handleGetInvoice))
	s.mux.HandleFunc("DELETE /api/invoices/{id}", s.requireAuth(s.handleDeleteInvoice))
	s.mux.HandleFunc("GET /api/invoices", s.requireAuth(s.handleListInvoices))

	// Transactions
	s.mux.HandleFunc("POST /api/transactions/reconcile", s.requireAuth(s.handleReconcileTransaction))
	s.mux.HandleFunc("GET /api/transactions/{id}", s.requireAuth(s.handleGetTransaction))
	s.mux.HandleFunc("GET /api/transactions", s.requireAuth(s.handleListTransactions))
	s.mux.HandleFunc("POST /api/transactions", s.requireAuth(s.handleCreateTransaction))

	// Bank accounts
	s.mux.HandleFunc("GET /api/bank-accounts/{id}", s.requireAuth(s.handleGetBankAccount))
	s.mux.HandleFunc("GET /api/bank-accounts", s.requireAuth(s.handleListBankAccounts))
	s.mux.HandleFunc("POST /api/bank-accounts", s.requireAuth(s.handleCreateBankAccount))

	// Anomalies
	s.mux.HandleFunc("POST /api/anomalies/{id}/resolve", s.requireAuth(s.handleResolveAnomaly))
	s.mux.HandleFunc("POST /api/anomalies/{id}/false-positive", s.requireAuth(s.handleMarkFalsePositive))
	s.mux.HandleFunc("GET /api/anomalies", s.requireAuth(s.handleListAnomalies))

	// Reports
	s.mux.HandleFunc("POST /api/reports/income-statement", s.requireAuth(s.handleIncomeStatement))
	s.mux.HandleFunc("GET /api/reports", s.requireAuth(s.handleListReports))

	s.mux.HandleFunc("GET /healthz", s.handleHealth)
}

// Run serves HTTP on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.corsMiddleware(s.mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.corsMiddleware(s.mux).ServeHTTP(w, r)
}
