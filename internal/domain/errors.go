package domain

import "fmt"

// ConnectionError reports that a provider could not be connected: spawn or
// dial failure, handshake rejection, or handshake timeout. It always names
// the provider so aggregated logs stay attributable.
type ConnectionError struct {
	Provider string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect provider %q: %v", e.Provider, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// DiscoveryError reports that a connected provider failed while its catalog
// was being fetched or registered.
type DiscoveryError struct {
	Provider string
	Err      error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discover provider %q: %v", e.Provider, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// TeardownError reports a failed disconnect. It is constructed for logging
// only and never crosses the client or manager API.
type TeardownError struct {
	Provider string
	Err      error
}

func (e *TeardownError) Error() string {
	return fmt.Sprintf("disconnect provider %q: %v", e.Provider, e.Err)
}

func (e *TeardownError) Unwrap() error { return e.Err }
