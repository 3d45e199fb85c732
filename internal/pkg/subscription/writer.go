package subscription

import (
	"context"

	"github.com/fleamarkt/fleamarkt/app/models"
)

// WriteResult reports which stores accepted the canonical record. The two
// writes are not transactional; a torn write is repaired by the next
// reconciliation run.
type WriteResult struct {
	PrimaryWritten bool
	MirrorWritten  bool
}

// Complete reports whether both stores hold the record.
func (r WriteResult) Complete() bool {
	return r.PrimaryWritten && r.MirrorWritten
}

// DualWriter writes the canonical record to the primary store first, then
// the mirror. Destructive billing cleanup must only run after a complete
// write.
type DualWriter struct {
	primary Store
	mirror  Store
}

func NewDualWriter(primary, mirror Store) *DualWriter {
	return &DualWriter{primary: primary, mirror: mirror}
}

func (w *DualWriter) Write(ctx context.Context, userID uint, rec models.SubscriptionRecord) (WriteResult, error) {
	var res WriteResult
	if err := w.primary.Put(ctx, userID, rec); err != nil {
		return res, newError(CodePersistence, "primary store write failed, nothing was stored", err)
	}
	res.PrimaryWritten = true

	if err := w.mirror.Put(ctx, userID, rec); err != nil {
		return res, newError(CodePersistenceMirror, "mirror store write failed, primary already holds the record", err)
	}
	res.MirrorWritten = true
	return res, nil
}
