package sdk

import (
	"log/slog"
	"os"

	"github.com/celerix-dev/celerix-ledger/internal/engine"
	"github.com/celerix-dev/celerix-ledger/pkg/schema"
)

// New initializes the ledger based on the environment.
// It returns the Interface, so the caller doesn't care if it's local or remote.
func New(dataDir string, format engine.Format, entities []schema.Entity) (Ledger, error) {
	// 1. Check if a Remote Store is defined in Environment Variables
	if remoteAddr := os.Getenv("LEDGER_STORE_ADDR"); remoteAddr != "" {
		client, err := Connect(remoteAddr)
		if err == nil {
			return client, nil
		}
		slog.Warn("remote ledger unreachable, using embedded mode", "addr", remoteAddr, "err", err)
	}

	// 2. Fallback to Embedded Mode
	// This uses the same engine the daemon uses, but inside the caller's process.
	p, err := engine.NewPersistence(dataDir, format)
	if err != nil {
		return nil, err
	}
	if entities == nil {
		entities = schema.Defaults()
	}
	r, err := engine.NewRegistry(p, entities, slog.Default())
	if err != nil {
		return nil, err
	}
	return NewLocal(r), nil
}
