package interfaces

import "context"

// -----------------------------------------------------------------------------
// IDataExchanger is the viewer-facing push server.
// -----------------------------------------------------------------------------

type IDataExchanger interface {

	// -----------------------------------------------------------------------------
	// Start serves connections until Shutdown is called.
	Start() error

	// -----------------------------------------------------------------------------
	// Shutdown stops accepting connections and closes the listener gracefully.
	Shutdown(ctx context.Context) error

	// -----------------------------------------------------------------------------
	// Connections returns the number of currently open viewer channels.
	Connections() int64
}
