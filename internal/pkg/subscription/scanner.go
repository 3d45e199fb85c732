package subscription

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// DefaultScanLimit bounds one batch pass. The scan walks identities
// sequentially to stay inside billing provider rate limits.
const DefaultScanLimit = 100

const (
	OutcomeFixed      = "fixed"
	OutcomeConsistent = "consistent"
	OutcomeError      = "error"
)

// ScanDetail is the per-identity result of a batch pass.
type ScanDetail struct {
	UserID  uint   `json:"user_id"`
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
}

// ScanSummary aggregates one batch pass.
type ScanSummary struct {
	Total      int          `json:"total"`
	Fixed      int          `json:"fixed"`
	Consistent int          `json:"consistent"`
	Errors     int          `json:"errors"`
	Details    []ScanDetail `json:"details"`
}

// BatchScanner drives the single-identity pipeline across every identity
// whose primary-store status is not "none". One identity's failure never
// aborts the rest of the pass.
type BatchScanner struct {
	service *Service
	lister  ReconcilableLister
	limit   int
}

func NewBatchScanner(service *Service, lister ReconcilableLister) *BatchScanner {
	return &BatchScanner{
		service: service,
		lister:  lister,
		limit:   DefaultScanLimit,
	}
}

// Run executes one batch pass. The policy is re-run for every identity; the
// pre-state inconsistency check only decides whether the identity counts as
// fixed or consistent.
func (b *BatchScanner) Run(ctx context.Context) (ScanSummary, error) {
	ids, err := b.lister.ListReconcilable(ctx, b.limit)
	if err != nil {
		return ScanSummary{}, newError(CodePersistence, "reconcilable identity listing failed", err)
	}

	summary := ScanSummary{Details: make([]ScanDetail, 0, len(ids))}
	now := time.Now().UTC()

	for _, userID := range ids {
		summary.Total++
		detail := ScanDetail{UserID: userID}

		snaps, err := b.service.Snapshots(ctx, userID)
		if err != nil {
			detail.Outcome = OutcomeError
			detail.Error = err.Error()
			summary.Errors++
			summary.Details = append(summary.Details, detail)
			continue
		}
		wasInconsistent := Inconsistent(now, snaps)

		if _, err := b.service.ReconcileUser(ctx, userID); err != nil {
			log.Warnf("batch scan: reconcile of user %d failed: %v", userID, err)
			detail.Outcome = OutcomeError
			detail.Error = err.Error()
			summary.Errors++
			summary.Details = append(summary.Details, detail)
			continue
		}

		if wasInconsistent {
			detail.Outcome = OutcomeFixed
			summary.Fixed++
		} else {
			detail.Outcome = OutcomeConsistent
			summary.Consistent++
		}
		summary.Details = append(summary.Details, detail)
	}

	log.Infof("batch scan: total=%d fixed=%d consistent=%d errors=%d",
		summary.Total, summary.Fixed, summary.Consistent, summary.Errors)
	return summary, nil
}
