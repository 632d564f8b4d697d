package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWithDefaultsFillsZeroFields(t *testing.T) {
	p := ConnectionParameters{Endpoint: Endpoint{Hostname: "example.com"}}
	p = p.WithDefaults()

	require.Equal(t, defaultTimeout, p.Timeout)
	require.Equal(t, defaultMaxRetries, p.MaxRetries)
	require.Equal(t, defaultInitialRetryDelay, p.InitialRetryDelay)
	require.NotNil(t, p.KeepaliveInterval)
	require.Equal(t, defaultKeepalive, *p.KeepaliveInterval)
	require.EqualValues(t, defaultChunkSize, p.ChunkSizeBytes)
	require.Equal(t, defaultMaxConcurrent, p.MaxConcurrentUploads)
	require.Equal(t, defaultPoolCapacity, p.SFTPPoolCapacity)
	require.Equal(t, 22, p.Endpoint.Port)
	require.Equal(t, defaultCommandProbe, p.CommandProbe)
	require.NotEmpty(t, p.HostPolicies)
}

func TestWithDefaultsPreservesExplicitValues(t *testing.T) {
	p := ConnectionParameters{
		Endpoint:   Endpoint{Hostname: "h", Port: 2222},
		MaxRetries: 7,
	}.WithDefaults()

	require.Equal(t, 2222, p.Endpoint.Port)
	require.Equal(t, 7, p.MaxRetries)
}

func TestWithDefaultsLeavesExplicitZeroKeepaliveDisabled(t *testing.T) {
	zero := time.Duration(0)
	p := ConnectionParameters{
		Endpoint:          Endpoint{Hostname: "h"},
		KeepaliveInterval: &zero,
	}.WithDefaults()

	require.NotNil(t, p.KeepaliveInterval)
	require.Zero(t, *p.KeepaliveInterval)
}

func TestCommandsPreDisabledMatchesHostSuffixCaseInsensitively(t *testing.T) {
	p := ConnectionParameters{Endpoint: Endpoint{Hostname: "Backup42.Your-StorageBox.de"}}.WithDefaults()
	require.True(t, p.commandsPreDisabled())

	p2 := ConnectionParameters{Endpoint: Endpoint{Hostname: "example.com"}}.WithDefaults()
	require.False(t, p2.commandsPreDisabled())
}

func TestEndpointKey(t *testing.T) {
	e := Endpoint{Principal: "alice", Hostname: "db.internal", Port: 2200}
	require.Equal(t, "alice@db.internal:2200", e.Key())
}

func TestResolveAlgorithmsStrictExcludesNIST(t *testing.T) {
	_, hostKey := resolveAlgorithms(true)
	for _, alg := range hostKey {
		require.NotContains(t, alg, "nistp")
	}
	kex, _ := resolveAlgorithms(true)
	for _, alg := range kex {
		require.NotContains(t, alg, "nistp")
	}
}
