package desk

import (
	"context"
	"time"

	"tradedesk/internal/logger"
)

// ReplayPending 重放补账日志；已落库（同一券商单号）的条目直接出队，失败的留待下次。
func (d *Desk) ReplayPending(ctx context.Context) (applied int, err error) {
	entries, err := d.journal.Pending()
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return applied, err
		}
		log := logger.With("order_id", e.BrokerOrderID, "client_id", e.ClientID)
		in, err := intentFromEntry(e)
		if err != nil {
			log.Errorf("unreadable journal entry, keeping it for manual review: %v", err)
			continue
		}
		ok, err := d.apply(ctx, in)
		if err != nil {
			log.Warnf("replay failed, will retry: %v", err)
			continue
		}
		if err := d.journal.Remove(e.BrokerOrderID); err != nil {
			log.Warnf("replayed but journal entry not removed: %v", err)
			continue
		}
		if ok {
			applied++
			log.Infof("ledger entry replayed")
		}
	}
	return applied, nil
}

// RunReconciler replays the journal once at start and then every ReplayInterval until ctx ends.
func (d *Desk) RunReconciler(ctx context.Context) error {
	ticker := time.NewTicker(d.opts.ReplayInterval)
	defer ticker.Stop()
	for {
		if _, err := d.ReplayPending(ctx); err != nil && ctx.Err() == nil {
			logger.Warnf("journal replay: %v", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
