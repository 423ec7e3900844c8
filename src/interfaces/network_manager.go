package interfaces

import "context"

// -----------------------------------------------------------------------------
// INetworkManager defines the contract for bounded upstream HTTP requests.
// -----------------------------------------------------------------------------

type INetworkManager interface {

	// -----------------------------------------------------------------------------

	// Get performs a GET request to the specified URL with query parameters.
	// Returns the response body on a 2xx status or an error otherwise.
	Get(ctx context.Context, url string, params map[string]string) ([]byte, error)
}
