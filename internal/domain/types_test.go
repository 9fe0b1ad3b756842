package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNormalizeTransport(t *testing.T) {
	cases := []struct {
		in   TransportKind
		want TransportKind
	}{
		{"", TransportStdio},
		{"stdio", TransportStdio},
		{"STDIO", TransportStdio},
		{"http", TransportStreamableHTTP},
		{"streamable_http", TransportStreamableHTTP},
		{"streamable-http", TransportStreamableHTTP},
		{"embedded", TransportEmbedded},
		{"sdk", TransportEmbedded},
		{"carrier-pigeon", TransportKind("carrier-pigeon")},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, NormalizeTransport(tc.in), "input %q", tc.in)
	}
}

func TestIsSupportedProtocolVersion(t *testing.T) {
	require.True(t, IsSupportedProtocolVersion(DefaultProtocolVersion, ""))
	require.True(t, IsSupportedProtocolVersion("2024-11-05", ""))
	require.False(t, IsSupportedProtocolVersion("1999-01-01", ""))
	require.True(t, IsSupportedProtocolVersion("1999-01-01", "1999-01-01"))
	require.False(t, IsSupportedProtocolVersion("2000-01-01", "1999-01-01"))
}

func TestProviderSpecDiscoveryTimeout(t *testing.T) {
	require.Equal(t, 5*time.Second, ProviderSpec{TimeoutSeconds: 5}.DiscoveryTimeout(time.Minute))
	require.Equal(t, time.Minute, ProviderSpec{}.DiscoveryTimeout(time.Minute))
	require.Equal(t, DefaultDiscoveryTimeout, ProviderSpec{}.DiscoveryTimeout(0))
}

func TestCapabilitySetNames(t *testing.T) {
	require.Empty(t, CapabilitySet{}.Names())

	caps := CapabilitySet{Tools: true, Prompts: true, ReadTextFile: true}
	require.Equal(t, []string{"tools", "prompts", "fs.readTextFile"}, caps.Names())
}

func TestProtocolErrorHelpers(t *testing.T) {
	notFound := &ProtocolError{Code: CodeResourceNotFound, Message: "no such resource"}
	wrapped := fmt.Errorf("call tools/list: %w", notFound)

	perr, ok := AsProtocolError(wrapped)
	require.True(t, ok)
	require.EqualValues(t, CodeResourceNotFound, perr.Code)
	require.True(t, IsResourceNotFound(wrapped))

	require.False(t, IsResourceNotFound(errors.New("plain")))
	require.False(t, IsResourceNotFound(&ProtocolError{Code: CodeInternalError}))
}

func TestLifecycleErrorsUnwrap(t *testing.T) {
	cause := errors.New("boom")

	connErr := &ConnectionError{Provider: "files", Err: cause}
	require.ErrorIs(t, connErr, cause)
	require.Contains(t, connErr.Error(), `"files"`)

	discErr := &DiscoveryError{Provider: "files", Err: cause}
	require.ErrorIs(t, discErr, cause)

	tdErr := &TeardownError{Provider: "files", Err: cause}
	require.ErrorIs(t, tdErr, cause)
}

func TestClientStateTerminal(t *testing.T) {
	require.True(t, StateFailed.Terminal())
	require.True(t, StateDisconnected.Terminal())
	require.False(t, StateReady.Terminal())
	require.False(t, StateConnecting.Terminal())
}
