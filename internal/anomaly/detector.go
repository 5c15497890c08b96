// Package anomaly flags suspicious invoices and transactions against the
// historical population kept in the ledger.
package anomaly

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/invoice-audit/internal/ledger"
)

// Store gives the detectors a transactional view of the ledger. A
// ledger.DB satisfies it.
type Store interface {
	Atomically(ctx context.Context, fn func(tx ledger.Tx) error) error
}

// IDGenerator generates unique IDs for anomalies
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

// detector holds what both detectors share
type detector struct {
	store       Store
	idGenerator IDGenerator
	timeSource  TimeSource
	logger      *slog.Logger
}

func newDetector(store Store, idGen IDGenerator, timeSrc TimeSource, logger *slog.Logger) detector {
	if logger == nil {
		logger = slog.Default()
	}
	return detector{
		store:       store,
		idGenerator: idGen,
		timeSource:  timeSrc,
		logger:      logger,
	}
}

func (d detector) newAnomaly(t ledger.AnomalyType, description string) *ledger.Anomaly {
	return &ledger.Anomaly{
		ID:          d.idGenerator.Generate(),
		Type:        t,
		Description: description,
		Status:      ledger.AnomalyNew,
		DetectedAt:  d.timeSource.Now(),
	}
}
