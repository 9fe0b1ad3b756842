package telemetry

import (
	"time"

	"go.uber.org/zap"
)

const (
	FieldEvent      = "event"
	FieldProvider   = "provider"
	FieldState      = "state"
	FieldCycleID    = "cycle_id"
	FieldDurationMs = "duration_ms"
	FieldCount      = "count"
	FieldTransport  = "transport"
	FieldMethod     = "method"
	FieldLogStream  = "stream"
)

const (
	EventConnectAttempt    = "connect_attempt"
	EventConnectSuccess    = "connect_success"
	EventConnectFailure    = "connect_failure"
	EventDiscoverSuccess   = "discover_success"
	EventDiscoverFailure   = "discover_failure"
	EventTeardownFailure   = "teardown_failure"
	EventCycleStart        = "discovery_cycle_start"
	EventCycleComplete     = "discovery_cycle_complete"
	EventCycleSkipped      = "discovery_cycle_skipped"
	EventConfigReload      = "config_reload"
	EventFallbackLocal     = "fallback_local"
	EventRemoteTranslation = "remote_error_translated"
)

func EventField(event string) zap.Field {
	return zap.String(FieldEvent, event)
}

func ProviderField(provider string) zap.Field {
	return zap.String(FieldProvider, provider)
}

func StateField(state string) zap.Field {
	return zap.String(FieldState, state)
}

func CycleIDField(id string) zap.Field {
	return zap.String(FieldCycleID, id)
}

func DurationField(duration time.Duration) zap.Field {
	return zap.Int64(FieldDurationMs, duration.Milliseconds())
}

func CountField(count int) zap.Field {
	return zap.Int(FieldCount, count)
}

func TransportField(kind string) zap.Field {
	return zap.String(FieldTransport, kind)
}

func MethodField(method string) zap.Field {
	return zap.String(FieldMethod, method)
}
