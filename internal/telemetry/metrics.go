package telemetry

import (
	"time"

	"toolhub/internal/domain"
)

type NoopMetrics struct{}

func NewNoopMetrics() *NoopMetrics {
	return &NoopMetrics{}
}

func (n *NoopMetrics) ObserveConnect(_ string, _ time.Duration, _ error) {}

func (n *NoopMetrics) ObserveDiscovery(_ string, _ time.Duration, _ error) {}

func (n *NoopMetrics) ObserveCycle(_ time.Duration, _ int, _ int) {}

func (n *NoopMetrics) SetActiveClients(_ int) {}

func (n *NoopMetrics) SetRegisteredDefinitions(_ string, _ string, _ int) {}

var _ domain.Metrics = (*NoopMetrics)(nil)
