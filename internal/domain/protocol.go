package domain

import "strings"

const DefaultProtocolVersion = "2025-06-18"

// SupportedProtocolVersions are the handshake revisions this host accepts
// from a provider, newest first.
var SupportedProtocolVersions = []string{
	"2025-06-18",
	"2025-03-26",
	"2024-11-05",
}

// NormalizeTransport folds config spellings onto the canonical kinds.
// Empty means stdio, the historical default.
func NormalizeTransport(kind TransportKind) TransportKind {
	trimmed := strings.ToLower(strings.TrimSpace(string(kind)))
	switch trimmed {
	case "":
		return TransportStdio
	case "stdio":
		return TransportStdio
	case "http", "streamable_http", "streamable-http":
		return TransportStreamableHTTP
	case "embedded", "sdk":
		return TransportEmbedded
	default:
		return TransportKind(trimmed)
	}
}

// IsSupportedProtocolVersion reports whether a handshake response version
// is one this host can speak. A per-spec override widens the set to exactly
// that version.
func IsSupportedProtocolVersion(version, override string) bool {
	if override != "" && version == override {
		return true
	}
	for _, candidate := range SupportedProtocolVersions {
		if version == candidate {
			return true
		}
	}
	return false
}
