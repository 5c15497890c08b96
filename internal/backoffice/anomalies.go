package backoffice

import (
	"fmt"

	"github.com/zombor/invoice-audit/internal/ledger"
)

// ListAnomalies returns the anomalies matching the filter
func (s *Service) ListAnomalies(filter ledger.AnomalyFilter) ([]*ledger.Anomaly, error) {
	anomalies, err := s.db.ListAnomalies(filter)
	if err != nil {
		return nil, fmt.Errorf("listing anomalies: %w", err)
	}
	return anomalies, nil
}

// ResolveAnomaly marks an anomaly as resolved
func (s *Service) ResolveAnomaly(id string) (*ledger.Anomaly, error) {
	return s.setAnomalyStatus(id, ledger.AnomalyResolved)
}

// MarkFalsePositive marks an anomaly as a false positive
func (s *Service) MarkFalsePositive(id string) (*ledger.Anomaly, error) {
	return s.setAnomalyStatus(id, ledger.AnomalyFalsePositive)
}

func (s *Service) setAnomalyStatus(id string, status ledger.AnomalyStatus) (*ledger.Anomaly, error) {
	a, err := s.db.GetAnomaly(id)
	if err != nil {
		return nil, fmt.Errorf("getting anomaly: %w", err)
	}

	a.Status = status
	if status == ledger.AnomalyResolved {
		now := s.timeSource.Now()
		a.ResolvedAt = &now
	}
	if err := s.db.SaveAnomaly(a); err != nil {
		return nil, fmt.Errorf("saving anomaly: %w", err)
	}
	return a, nil
}
