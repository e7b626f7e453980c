package snapshot

import (
	"context"
	"fmt"

	"gridkernel/internal/core"
	"gridkernel/internal/grid"
)

// ReconcileGridOrders resolves drift between mgr's in-memory order
// book and the exchange's live open orders after a restart. The
// ExecutionLayer seam only exposes FetchOpenOrders (no fills/trade
// history), so an order mgr still believes is open but the exchange
// no longer lists is marked failed rather than guessed-filled: callers
// that need the realized fill reconcile P&L from exchange trade
// history separately before the next snapshot.
func ReconcileGridOrders(ctx context.Context, exec core.ExecutionLayer, symbol string, mgr *grid.OrderManager) error {
	live, err := exec.FetchOpenOrders(ctx, symbol)
	if err != nil {
		return fmt.Errorf("snapshot: fetching open orders for reconcile: %w", err)
	}

	liveIDs := make(map[string]bool, len(live))
	for _, o := range live {
		liveIDs[o.ID] = true
	}

	for _, st := range mgr.Orders() {
		if st.Status != core.OrderOpen {
			continue
		}
		if liveIDs[st.ExchangeOrderID] {
			continue // still resting, nothing to do
		}
		if err := mgr.MarkOrderFailed(st.ID, "not_found_on_exchange_reconcile"); err != nil {
			return fmt.Errorf("snapshot: reconciling order %s: %w", st.ID, err)
		}
	}

	return nil
}
