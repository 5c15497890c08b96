package backoffice

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"regexp"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"github.com/shopspring/decimal"

	"github.com/zombor/invoice-audit/internal/ledger"
	"github.com/zombor/invoice-audit/internal/scanning"
)

var _ = Describe("Server", func() {
	var (
		db          ledger.DB
		processor   *mockProcessor
		storage     *mockStorage
		duplicates  *mockChecker
		outliers    *mockChecker
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	do := func(method, path string, body io.Reader, contentType string) *http.Response {
		req, err := http.NewRequest(method, ghttpServer.URL()+path, body)
		Expect(err).NotTo(HaveOccurred())
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		if auth.Username != "" {
			req.SetBasicAuth(auth.Username, auth.Password)
		}
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(resp.Body.Close)
		return resp
	}

	decode := func(resp *http.Response, v any) {
		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(json.Unmarshal(body, v)).To(Succeed(), string(body))
	}

	postJSON := func(path string, v any) *http.Response {
		data, err := json.Marshal(v)
		Expect(err).NotTo(HaveOccurred())
		return do(http.MethodPost, path, bytes.NewReader(data), "application/json")
	}

	BeforeEach(func() {
		db = openBolt()
		processor = &mockProcessor{}
		storage = newMockStorage()
		duplicates = &mockChecker{}
		outliers = &mockChecker{}
		auth = BasicAuth{}
	})

	JustBeforeEach(func() {
		service := NewServiceWithDeps(
			db, processor, storage,
			invoiceChecker{duplicates}, transactionChecker{outliers},
			&sequentialIDGenerator{}, &fixedTimeSource{now: time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)}, nil,
		)
		server := NewServerWithMux(service, auth, http.NewServeMux(), nil)

		ghttpServer = ghttp.NewServer()
		for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions} {
			ghttpServer.RouteToHandler(method, regexp.MustCompile(".*"), server.ServeHTTP)
		}
		DeferCleanup(ghttpServer.Close)
	})

	Describe("authentication", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "compta", Password: "secret"}
		})

		It("should accept the configured credentials", func() {
			resp := do(http.MethodGet, "/api/invoices", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("should reject missing credentials", func() {
			req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/invoices", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
		})

		It("should reject a wrong password", func() {
			req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/invoices", nil)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("compta:guess")))
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("should leave the health check open", func() {
			resp, err := http.Get(ghttpServer.URL() + "/healthz")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})

	Describe("CORS", func() {
		It("should answer preflight requests", func() {
			resp := do(http.MethodOptions, "/api/invoices", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})
	})

	Describe("POST /api/invoices/upload", func() {
		upload := func(field, filename string, data []byte) *http.Response {
			var b bytes.Buffer
			writer := multipart.NewWriter(&b)
			part, err := writer.CreateFormFile(field, filename)
			Expect(err).NotTo(HaveOccurred())
			_, err = part.Write(data)
			Expect(err).NotTo(HaveOccurred())
			Expect(writer.Close()).To(Succeed())
			return do(http.MethodPost, "/api/invoices/upload", &b, writer.FormDataContentType())
		}

		When("the pipeline falls back", func() {
			BeforeEach(func() {
				processor.result = scanning.Result{
					Source:     scanning.SourceFallback,
					Reason:     scanning.ErrNoInvoiceNumber,
					Extraction: scanning.DefaultRecord(time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)),
				}
			})

			It("should create the invoice and explain the fallback", func() {
				resp := upload("file", "scan.jpg", []byte("jpeg bytes"))
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))

				var out struct {
					Invoice   ledger.Invoice `json:"invoice"`
					Source    string         `json:"source"`
					Reason    string         `json:"reason"`
					Duplicate bool           `json:"duplicate"`
				}
				decode(resp, &out)
				Expect(out.Source).To(Equal("fallback"))
				Expect(out.Reason).To(Equal(scanning.ErrNoInvoiceNumber.Error()))
				Expect(out.Invoice.InvoiceNumber).To(Equal("INV-20240610-001"))
				Expect(out.Invoice.NeedsReview).To(BeTrue())
				Expect(out.Invoice.ContentType).To(Equal("image/jpeg"))
			})
		})

		When("no file is sent", func() {
			It("should return Bad Request", func() {
				resp := upload("document", "scan.jpg", []byte("jpeg bytes"))
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})
	})

	Describe("invoices", func() {
		BeforeEach(func() {
			Expect(db.SaveInvoice(&ledger.Invoice{
				ID: "inv-1", InvoiceNumber: "F-1", Supplier: "ACME",
				TotalAmount: money("10.00"), Status: ledger.InvoicePending,
				Filename: "inv-1_a.png", ContentType: "image/png",
			})).To(Succeed())
			storage.files["inv-1_a.png"] = []byte("png data")
		})

		It("should list invoices", func() {
			resp := do(http.MethodGet, "/api/invoices", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))
			var invoices []ledger.Invoice
			decode(resp, &invoices)
			Expect(invoices).To(HaveLen(1))
		})

		It("should get one invoice", func() {
			resp := do(http.MethodGet, "/api/invoices/inv-1", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var invoice ledger.Invoice
			decode(resp, &invoice)
			Expect(invoice.InvoiceNumber).To(Equal("F-1"))
		})

		It("should return Not Found for an unknown invoice", func() {
			resp := do(http.MethodGet, "/api/invoices/nope", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("should serve the original file", func() {
			resp := do(http.MethodGet, "/api/invoices/inv-1/file", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("image/png"))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(Equal("png data"))
		})

		It("should return Not Found when the file is gone", func() {
			delete(storage.files, "inv-1_a.png")
			resp := do(http.MethodGet, "/api/invoices/inv-1/file", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("should return Internal Server Error when storage fails", func() {
			storage.getErr = errors.New("disk unreadable")
			resp := do(http.MethodGet, "/api/invoices/inv-1/file", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
		})

		It("should export CSV", func() {
			resp := do(http.MethodGet, "/api/invoices/export", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(HavePrefix("text/csv"))
			Expect(resp.Header.Get("Content-Disposition")).To(ContainSubstring("invoices.csv"))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(HavePrefix("Numéro de facture,"))
			Expect(string(body)).To(ContainSubstring("F-1,ACME,,,10.00,,pending"))
		})

		It("should delete an invoice", func() {
			resp := do(http.MethodDelete, "/api/invoices/inv-1", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			_, err := db.GetInvoice("inv-1")
			Expect(err).To(MatchError(ledger.ErrNotFound))
		})
	})

	Describe("transactions", func() {
		It("should create a transaction and report the outlier check", func() {
			outliers.found = true
			resp := postJSON("/api/transactions", map[string]any{
				"transaction_date": "2024-06-01",
				"amount":           "15000.00",
				"description":      "Virement",
				"transaction_type": "expense",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			var out struct {
				Transaction ledger.Transaction `json:"transaction"`
				Unusual     bool               `json:"unusual"`
			}
			decode(resp, &out)
			Expect(out.Unusual).To(BeTrue())
			Expect(out.Transaction.Amount.Equal(decimal.RequireFromString("15000"))).To(BeTrue())
			Expect(out.Transaction.Date).To(Equal(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)))
		})

		It("should reject an unknown type", func() {
			resp := postJSON("/api/transactions", map[string]any{"amount": 5, "transaction_type": "gift"})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should reject a malformed date", func() {
			resp := postJSON("/api/transactions", map[string]any{
				"amount": 5, "transaction_type": "income", "transaction_date": "01/06/2024",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		When("transactions exist", func() {
			BeforeEach(func() {
				for i, t := range []ledger.TransactionType{ledger.TransactionIncome, ledger.TransactionExpense, ledger.TransactionExpense} {
					Expect(db.SaveTransaction(&ledger.Transaction{
						ID: "tx-" + string(rune('a'+i)), Date: day(2024, 6, i+1),
						Amount: decimal.NewFromInt(10), Type: t, Status: ledger.TransactionCompleted,
					})).To(Succeed())
				}
				Expect(db.SaveInvoice(&ledger.Invoice{ID: "inv-1", InvoiceNumber: "F-1", Supplier: "ACME", TotalAmount: money("10.00")})).To(Succeed())
			})

			It("should filter by type", func() {
				resp := do(http.MethodGet, "/api/transactions?type=expense", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				var list []ledger.Transaction
				decode(resp, &list)
				Expect(list).To(HaveLen(2))
			})

			It("should filter by bank account", func() {
				Expect(db.SaveBankAccount(&ledger.BankAccount{ID: "acct-1", AccountName: "Compte", AccountNumber: "1", BankName: "BNP"})).To(Succeed())
				Expect(db.SaveTransaction(&ledger.Transaction{
					ID: "tx-d", Date: day(2024, 6, 9), Amount: decimal.NewFromInt(10),
					Type: ledger.TransactionIncome, Status: ledger.TransactionPending, BankAccountID: ptr("acct-1"),
				})).To(Succeed())

				resp := do(http.MethodGet, "/api/transactions?bank_account=acct-1", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				var list []ledger.Transaction
				decode(resp, &list)
				Expect(list).To(HaveLen(1))
				Expect(list[0].ID).To(Equal("tx-d"))
			})

			It("should get one transaction", func() {
				resp := do(http.MethodGet, "/api/transactions/tx-a", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
			})

			It("should reconcile a transaction with an invoice", func() {
				resp := postJSON("/api/transactions/reconcile", map[string]string{"transaction_id": "tx-b", "invoice_id": "inv-1"})
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				var out Reconciliation
				decode(resp, &out)
				Expect(out.Reconciled).To(BeTrue())
				Expect(out.Transaction.Status).To(Equal(ledger.TransactionReconciled))
			})

			It("should return Not Found when reconciling an unknown transaction", func() {
				resp := postJSON("/api/transactions/reconcile", map[string]string{"transaction_id": "tx-z", "invoice_id": "inv-1"})
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			})
		})
	})

	Describe("bank accounts", func() {
		It("should create an account", func() {
			resp := postJSON("/api/bank-accounts", map[string]any{
				"account_name":    "Compte courant",
				"account_number":  "FR76 3000 1007",
				"bank_name":       "BNP",
				"current_balance": "1520.75",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			var account ledger.BankAccount
			decode(resp, &account)
			Expect(account.ID).To(Equal("id-1"))
			Expect(account.CurrentBalance.StringFixed(2)).To(Equal("1520.75"))
		})

		It("should reject an account without a bank", func() {
			resp := postJSON("/api/bank-accounts", map[string]any{"account_name": "Compte", "account_number": "1"})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should list and get accounts", func() {
			Expect(db.SaveBankAccount(&ledger.BankAccount{ID: "acct-1", AccountName: "Compte", AccountNumber: "1", BankName: "BNP"})).To(Succeed())

			resp := do(http.MethodGet, "/api/bank-accounts", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var accounts []ledger.BankAccount
			decode(resp, &accounts)
			Expect(accounts).To(HaveLen(1))

			resp = do(http.MethodGet, "/api/bank-accounts/acct-1", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("should return Not Found for an unknown account", func() {
			resp := do(http.MethodGet, "/api/bank-accounts/nope", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("anomalies", func() {
		BeforeEach(func() {
			Expect(db.SaveAnomaly(&ledger.Anomaly{
				ID: "an-1", Type: ledger.AnomalyUnusualTransaction, Status: ledger.AnomalyNew,
				Description: "Unusual expense amount of 10000.00. Z-score: 4.36", DetectedAt: day(2024, 6, 1),
			})).To(Succeed())
		})

		It("should list anomalies by type", func() {
			resp := do(http.MethodGet, "/api/anomalies?type=unusual_transaction", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var list []ledger.Anomaly
			decode(resp, &list)
			Expect(list).To(HaveLen(1))
		})

		It("should resolve an anomaly", func() {
			resp := do(http.MethodPost, "/api/anomalies/an-1/resolve", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var a ledger.Anomaly
			decode(resp, &a)
			Expect(a.Status).To(Equal(ledger.AnomalyResolved))
			Expect(a.ResolvedAt).NotTo(BeNil())
		})

		It("should mark an anomaly as a false positive", func() {
			resp := do(http.MethodPost, "/api/anomalies/an-1/false-positive", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var a ledger.Anomaly
			decode(resp, &a)
			Expect(a.Status).To(Equal(ledger.AnomalyFalsePositive))
		})

		It("should return Not Found for an unknown anomaly", func() {
			resp := do(http.MethodPost, "/api/anomalies/nope/resolve", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("reports", func() {
		It("should generate and list an income statement", func() {
			resp := postJSON("/api/reports/income-statement", map[string]string{"start_date": "2024-01-01", "end_date": "2024-12-31"})
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			var report ledger.Report
			decode(resp, &report)
			Expect(report.Title).To(Equal("Income Statement: 2024-01-01 to 2024-12-31"))
			Expect(report.NetProfit.IsZero()).To(BeTrue())

			resp = do(http.MethodGet, "/api/reports", nil, "")
			var reports []ledger.Report
			decode(resp, &reports)
			Expect(reports).To(HaveLen(1))
		})

		It("should require both dates", func() {
			resp := postJSON("/api/reports/income-statement", map[string]string{"start_date": "2024-01-01"})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(strings.TrimSpace(string(body))).To(ContainSubstring("Start date and end date are required"))
		})
	})
})
