package anomaly

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/zombor/invoice-audit/internal/ledger"
)

// ZScoreThreshold is the z-score above which a transaction is unusual
const ZScoreThreshold = 3.0

// OutlierDetector flags transactions whose amount is far from the usual
// amounts of their type
type OutlierDetector struct {
	detector
}

// NewOutlierDetector creates an OutlierDetector with default ID generator
// and time source
func NewOutlierDetector(store Store, logger *slog.Logger) *OutlierDetector {
	return NewOutlierDetectorWithDeps(store, &uuidGenerator{}, &defaultTimeSource{}, logger)
}

// NewOutlierDetectorWithDeps creates an OutlierDetector with custom
// dependencies for testing
func NewOutlierDetectorWithDeps(store Store, idGen IDGenerator, timeSrc TimeSource, logger *slog.Logger) *OutlierDetector {
	return &OutlierDetector{detector: newDetector(store, idGen, timeSrc, logger)}
}

// Check reports whether the persisted transaction is an outlier among all
// transactions of its type, itself included
func (d *OutlierDetector) Check(ctx context.Context, transaction *ledger.Transaction) (bool, error) {
	var (
		found bool
		z     float64
	)
	err := d.store.Atomically(ctx, func(tx ledger.Tx) error {
		amounts, err := tx.TransactionAmounts(transaction.Type)
		if err != nil {
			return fmt.Errorf("loading %s amounts: %w", transaction.Type, err)
		}

		mean, stddev, ok := populationStats(amounts)
		if !ok {
			return nil
		}

		z = math.Abs(transaction.Amount.InexactFloat64()-mean) / stddev
		if z <= ZScoreThreshold {
			return nil
		}

		a := d.newAnomaly(ledger.AnomalyUnusualTransaction, fmt.Sprintf(
			"Unusual %s amount of %s. Z-score: %.2f",
			transaction.Type, transaction.Amount.StringFixed(2), z,
		))
		a.RelatedTransactionID = &transaction.ID
		if err := tx.SaveAnomaly(a); err != nil {
			return fmt.Errorf("saving anomaly: %w", err)
		}
		found = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("checking transaction %s for outliers: %w", transaction.ID, err)
	}

	if found {
		d.logger.Info("Unusual transaction detected",
			"transaction_id", transaction.ID,
			"type", transaction.Type,
			"amount", transaction.Amount.String(),
			"z_score", z,
		)
	}
	return found, nil
}
