package bus

import (
	"fmt"

	"github.com/DeBrosOfficial/stream-relay/pkg/config"
	"github.com/DeBrosOfficial/stream-relay/pkg/logging"
)

// Open builds the connector selected by cfg.Bus.Backend.
func Open(cfg *config.Config, logger *logging.ColoredLogger) (Connector, error) {
	b := cfg.Bus
	switch b.Backend {
	case config.BackendStan:
		return NewStanConnector(b.ClusterID, b.URL, b.ConnectWait, logger), nil
	case config.BackendRQLite:
		return NewRQLiteConnector(b.RQLiteDSN, b.RQLiteTable, b.PollInterval, logger), nil
	case config.BackendMemory:
		return NewMemoryBus(), nil
	default:
		return nil, fmt.Errorf("unknown bus backend %q", b.Backend)
	}
}
