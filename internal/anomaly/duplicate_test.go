package anomaly

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/invoice-audit/internal/ledger"
)

var _ = Describe("DuplicateDetector", func() {
	var (
		db        ledger.DB
		now       time.Time
		detector  *DuplicateDetector
		candidate *ledger.Invoice
		found     bool
		err       error
	)

	save := func(invoices ...*ledger.Invoice) {
		for _, inv := range invoices {
			Expect(db.SaveInvoice(inv)).To(Succeed())
		}
	}

	BeforeEach(func() {
		db = openBolt()
		now = time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
		detector = NewDuplicateDetectorWithDeps(db, &sequentialIDGenerator{}, &fixedTimeSource{now: now}, nil)
	})

	JustBeforeEach(func() {
		save(candidate)
		found, err = detector.Check(context.Background(), candidate)
	})

	anomalies := func() []*ledger.Anomaly {
		list, listErr := db.ListAnomalies(ledger.AnomalyFilter{})
		Expect(listErr).NotTo(HaveOccurred())
		return list
	}

	When("another invoice has the same number and supplier", func() {
		BeforeEach(func() {
			save(&ledger.Invoice{ID: "first", InvoiceNumber: "INV-001", Supplier: "Acme", TotalAmount: total("10.00")})
			candidate = &ledger.Invoice{ID: "second", InvoiceNumber: "INV-001", Supplier: "Acme", TotalAmount: total("5000.00")}
		})

		It("should report a duplicate", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeTrue())
		})

		It("should create exactly one duplicate anomaly", func() {
			list := anomalies()
			Expect(list).To(HaveLen(1))
			Expect(list[0].Type).To(Equal(ledger.AnomalyDuplicateInvoice))
			Expect(list[0].Status).To(Equal(ledger.AnomalyNew))
			Expect(list[0].Description).To(Equal("Potential duplicate invoice: INV-001 from Acme"))
			Expect(*list[0].RelatedInvoiceID).To(Equal("second"))
			Expect(list[0].DetectedAt).To(BeTemporally("==", now))
		})
	})

	When("the exact and near-amount matches both apply", func() {
		BeforeEach(func() {
			save(
				&ledger.Invoice{ID: "first", InvoiceNumber: "INV-001", Supplier: "Acme", TotalAmount: total("100.00")},
				&ledger.Invoice{ID: "other", InvoiceNumber: "INV-777", Supplier: "Acme", TotalAmount: total("101.00")},
			)
			candidate = &ledger.Invoice{ID: "second", InvoiceNumber: "INV-001", Supplier: "Acme", TotalAmount: total("100.00")}
		})

		It("should only record the exact duplicate", func() {
			Expect(found).To(BeTrue())
			list := anomalies()
			Expect(list).To(HaveLen(1))
			Expect(list[0].Description).To(HavePrefix("Potential duplicate invoice"))
		})
	})

	When("the same number comes from another supplier", func() {
		BeforeEach(func() {
			save(&ledger.Invoice{ID: "first", InvoiceNumber: "INV-001", Supplier: "Globex", TotalAmount: total("100.00")})
			candidate = &ledger.Invoice{ID: "second", InvoiceNumber: "INV-001", Supplier: "Acme", TotalAmount: total("100.00")}
		})

		It("should not report a duplicate", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeFalse())
			Expect(anomalies()).To(BeEmpty())
		})
	})

	When("the invoice is alone", func() {
		BeforeEach(func() {
			candidate = &ledger.Invoice{ID: "only", InvoiceNumber: "INV-001", Supplier: "Acme", TotalAmount: total("100.00")}
		})

		It("should not match itself", func() {
			Expect(found).To(BeFalse())
			Expect(anomalies()).To(BeEmpty())
		})
	})

	When("the invoice has no total", func() {
		BeforeEach(func() {
			save(&ledger.Invoice{ID: "first", InvoiceNumber: "A-1", Supplier: "Acme", TotalAmount: total("100.00")})
			candidate = &ledger.Invoice{ID: "second", InvoiceNumber: "B-1", Supplier: "Acme"}
		})

		It("should skip the near-amount check", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeFalse())
		})
	})

	When("the check runs twice on the same invoice", func() {
		BeforeEach(func() {
			save(&ledger.Invoice{ID: "first", InvoiceNumber: "INV-001", Supplier: "Acme"})
			candidate = &ledger.Invoice{ID: "second", InvoiceNumber: "INV-001", Supplier: "Acme"}
		})

		It("should create one anomaly per call", func() {
			again, againErr := detector.Check(context.Background(), candidate)
			Expect(againErr).NotTo(HaveOccurred())
			Expect(again).To(BeTrue())
			Expect(anomalies()).To(HaveLen(2))
		})
	})
})

var _ = Describe("DuplicateDetector near amounts", func() {
	var (
		db       ledger.DB
		detector *DuplicateDetector
	)

	BeforeEach(func() {
		db = openBolt()
		detector = NewDuplicateDetectorWithDeps(db, &sequentialIDGenerator{}, &fixedTimeSource{now: time.Now()}, nil)
	})

	anomalies := func() []*ledger.Anomaly {
		list, listErr := db.ListAnomalies(ledger.AnomalyFilter{})
		Expect(listErr).NotTo(HaveOccurred())
		return list
	}

	DescribeTable("invoices from the same supplier",
		func(candidateTotal string, expected bool) {
			Expect(db.SaveInvoice(&ledger.Invoice{ID: "a", InvoiceNumber: "A-1", Supplier: "Acme", TotalAmount: total("100.00")})).To(Succeed())
			inv := &ledger.Invoice{ID: "b", InvoiceNumber: "B-1", Supplier: "Acme", TotalAmount: total(candidateTotal)}
			Expect(db.SaveInvoice(inv)).To(Succeed())

			ok, checkErr := detector.Check(context.Background(), inv)
			Expect(checkErr).NotTo(HaveOccurred())
			Expect(ok).To(Equal(expected))

			list := anomalies()
			if expected {
				Expect(list).To(HaveLen(1))
				Expect(list[0].Description).To(Equal("Invoice with similar amount (" + candidateTotal + ") from Acme"))
			} else {
				Expect(list).To(BeEmpty())
			}
		},
		Entry("within 5%", "104.99", true),
		Entry("outside 5%", "106.00", false),
		Entry("slightly lower", "96.00", true),
		Entry("far lower", "90.00", false),
		Entry("equal", "100.00", true),
	)
})

var _ = Describe("DuplicateDetector with a failing store", func() {
	It("returns the error", func() {
		storeErr := errors.New("disk on fire")
		detector := NewDuplicateDetector(&failingStore{err: storeErr}, nil)

		found, err := detector.Check(context.Background(), &ledger.Invoice{ID: "x", Supplier: "Acme"})
		Expect(err).To(MatchError(storeErr))
		Expect(found).To(BeFalse())
	})
})
