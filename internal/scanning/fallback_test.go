package scanning

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("DefaultRecord", func() {
	var (
		at     time.Time
		record Extraction
	)

	BeforeEach(func() {
		at = time.Date(2024, 3, 15, 16, 45, 0, 0, time.UTC)
	})

	JustBeforeEach(func() {
		record = DefaultRecord(at)
	})

	It("should derive the invoice number from the date", func() {
		Expect(*record.InvoiceNumber).To(Equal("INV-20240315-001"))
	})

	It("should use the demo supplier", func() {
		Expect(*record.Supplier).To(Equal(FallbackSupplier))
	})

	It("should date the invoice on the given day", func() {
		Expect(*record.InvoiceDate).To(Equal(date(2024, 3, 15)))
		Expect(*record.DueDate).To(Equal(date(2024, 4, 15)))
	})

	It("should carry the fixed amounts", func() {
		Expect(record.TotalAmount.Decimal.StringFixed(2)).To(Equal("1250.50"))
		Expect(record.TaxAmount.Decimal.StringFixed(2)).To(Equal("250.10"))
	})

	It("should carry two demo line items", func() {
		Expect(record.Items).To(HaveLen(2))
		Expect(record.Items[0].Description).To(Equal("Service de consultation"))
		Expect(record.Items[1].Description).To(Equal("Frais administratifs"))
	})

	It("should be fully populated", func() {
		Expect(record.Missing()).To(BeEmpty())
	})

	It("should serialize identically for the same date", func() {
		first, err := json.Marshal(DefaultRecord(at))
		Expect(err).NotTo(HaveOccurred())
		second, err := json.Marshal(DefaultRecord(at.Add(-3 * time.Hour)))
		Expect(err).NotTo(HaveOccurred())
		Expect(first).To(Equal(second))
	})

	When("the date is in December", func() {
		BeforeEach(func() {
			at = time.Date(2024, 12, 5, 9, 0, 0, 0, time.UTC)
		})

		It("should roll the due date into January of the next year", func() {
			Expect(*record.DueDate).To(Equal(date(2025, 1, 5)))
		})
	})

	When("the date is the last day of January", func() {
		BeforeEach(func() {
			at = time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)
		})

		It("should clamp the due date to the end of February", func() {
			Expect(*record.DueDate).To(Equal(date(2025, 2, 28)))
		})
	})
})

var _ = Describe("IsFallbackNumber", func() {
	DescribeTable("recognizing fallback numbers",
		func(number string, expected bool) {
			Expect(IsFallbackNumber(number)).To(Equal(expected))
		},
		Entry("fallback record", *DefaultRecord(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)).InvoiceNumber, true),
		Entry("extracted number", "INV-2024-07", false),
		Entry("other sequence", "INV-20240102-002", false),
		Entry("empty", "", false),
	)
})
