package transport

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAuthMethodsRequiresConfiguredCredential(t *testing.T) {
	tr := NewTransport(ConnectionParameters{
		Endpoint:   Endpoint{Hostname: "h"},
		Credential: CredentialPassword,
	}, zap.NewNop())

	_, err := tr.authMethods()
	require.Error(t, err)
}

func TestAuthMethodsPasswordVariant(t *testing.T) {
	tr := NewTransport(ConnectionParameters{
		Endpoint:   Endpoint{Hostname: "h"},
		Credential: CredentialPassword,
		Password:   "secret",
	}, zap.NewNop())

	methods, err := tr.authMethods()
	require.NoError(t, err)
	require.Len(t, methods, 1)
}

func TestAuthMethodsProbeOrderSkipsUnconfiguredSources(t *testing.T) {
	tr := NewTransport(ConnectionParameters{
		Endpoint:   Endpoint{Hostname: "h"},
		Credential: CredentialProbeOrder,
		Password:   "secret",
	}, zap.NewNop())

	methods, err := tr.authMethods()
	require.NoError(t, err)
	require.Len(t, methods, 1)
}

func TestAuthMethodsProbeOrderWithNothingConfiguredErrors(t *testing.T) {
	tr := NewTransport(ConnectionParameters{Endpoint: Endpoint{Hostname: "h"}}, zap.NewNop())
	_, err := tr.authMethods()
	require.Error(t, err)
}

func TestIsAuthFailureMatchesKnownMessages(t *testing.T) {
	require.True(t, isAuthFailure(errString("ssh: handshake failed: ssh: unable to authenticate, attempted methods [none password], no supported methods remain")))
	require.False(t, isAuthFailure(errString("dial tcp: connection refused")))
}

func TestCommandsPreDisabledLatchesOnConstruction(t *testing.T) {
	tr := NewTransport(ConnectionParameters{
		Endpoint: Endpoint{Hostname: "box.your-storagebox.de"},
	}, zap.NewNop())
	require.False(t, tr.SupportsCommands())
	require.True(t, tr.commandsDisabled.Load())
}

type errString string

func (e errString) Error() string { return string(e) }
