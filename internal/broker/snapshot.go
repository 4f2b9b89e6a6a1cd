package broker

import (
	"context"
	"time"
)

func (b *Broker) snapshotLoop(ctx context.Context) {
	defer b.wg.Done()
	ticker := time.NewTicker(b.snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.persistLedger(ctx)
			b.refreshRosterGauges()
		}
	}
}

func (b *Broker) persistLedger(ctx context.Context) {
	st := b.ledger.Snapshot()
	if err := b.store.SaveLedger(ctx, st); err != nil {
		b.metrics.SnapshotFailed()
		b.logger.Error("failed to save ledger snapshot", "error", err)
		return
	}
	b.logger.Debug("ledger snapshot saved", "counters", st.Len())
}

// restoreLedger loads the last snapshot. A missing or unreadable snapshot
// leaves the ledger empty.
func (b *Broker) restoreLedger(ctx context.Context) {
	if b.store == nil {
		return
	}
	st, err := b.store.LoadLedger(ctx)
	if err != nil {
		b.logger.Warn("failed to load ledger snapshot", "error", err)
		return
	}
	if st == nil {
		return
	}
	if err := b.RestoreLedger(*st); err != nil {
		b.logger.Warn("discarding invalid ledger snapshot", "taken_at", st.TakenAt, "error", err)
		return
	}
	b.logger.Info("ledger restored", "taken_at", st.TakenAt, "counters", st.Len())
}
