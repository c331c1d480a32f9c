package testsupport

import (
	"testing"

	"courier/internal/config"
	"courier/internal/deliverylog"
	"courier/internal/ledger"
	"courier/internal/logging"
)

// MustOpenLedger opens a JSON-backed ledger store for tests.
func MustOpenLedger(t testing.TB, cfg *config.Config) *ledger.Store {
	t.Helper()

	logger := logging.NewNop()
	store, err := ledger.Open(ledger.NewJSONFile(cfg.HistoryPath(), logger), logger)
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	return store
}

// MustOpenDeliveryLog opens a delivery log store for tests and registers cleanup.
func MustOpenDeliveryLog(t testing.TB, cfg *config.Config) *deliverylog.Store {
	t.Helper()

	store, err := deliverylog.Open(cfg.DeliveryLogPath())
	if err != nil {
		t.Fatalf("deliverylog.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
