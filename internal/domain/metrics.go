package domain

import "time"

// Metrics receives discovery and connection measurements. Implementations
// must be safe for concurrent use.
type Metrics interface {
	ObserveConnect(provider string, duration time.Duration, err error)
	ObserveDiscovery(provider string, duration time.Duration, err error)
	ObserveCycle(duration time.Duration, ready, failed int)
	SetActiveClients(count int)
	SetRegisteredDefinitions(provider, kind string, count int)
}
