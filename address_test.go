package sshvfs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAddressSlashStyleStripsLeadingSlashForHomeRelativePath(t *testing.T) {
	addr, err := ParseAddress("sshfs://alice@db.internal:2200/var/log/app.log")
	require.NoError(t, err)
	require.Equal(t, "sshfs", addr.Scheme)
	require.Equal(t, "alice", addr.Principal)
	require.Equal(t, "db.internal", addr.Hostname)
	require.Equal(t, 2200, addr.Port)
	require.False(t, addr.PathIsAbsolute)
	require.Equal(t, "var/log/app.log", addr.Path)
}

func TestParseAddressSCPStyleRelativePath(t *testing.T) {
	addr, err := ParseAddress("sftp://bob@host.example:data/export.csv")
	require.NoError(t, err)
	require.False(t, addr.PathIsAbsolute)
	require.Equal(t, "data/export.csv", addr.Path)
	require.Equal(t, 0, addr.Port)
}

func TestParseAddressSCPStyleAbsolutePathKeepsLeadingSlash(t *testing.T) {
	addr, err := ParseAddress("ssh://host.example:/var/log/app.log")
	require.NoError(t, err)
	require.True(t, addr.PathIsAbsolute)
	require.Equal(t, "/var/log/app.log", addr.Path)
}

func TestParseAddressWithoutPrincipalOrPort(t *testing.T) {
	addr, err := ParseAddress("ssh://host.example/data.bin")
	require.NoError(t, err)
	require.Empty(t, addr.Principal)
	require.Equal(t, 0, addr.Port)
	require.False(t, addr.PathIsAbsolute)
	require.Equal(t, "data.bin", addr.Path)
}

func TestParseAddressRejectsUnknownScheme(t *testing.T) {
	_, err := ParseAddress("ftp://host/path")
	require.Error(t, err)
	require.True(t, IsKind(err, KindAddressFormat))
}

func TestParseAddressRejectsMissingPath(t *testing.T) {
	_, err := ParseAddress("ssh://host")
	require.Error(t, err)
}

func TestParseAddressRejectsInvalidPort(t *testing.T) {
	_, err := ParseAddress("ssh://host:999999/path")
	require.Error(t, err)
}

func TestAddressEndpointAppliesDefaultPort(t *testing.T) {
	addr, err := ParseAddress("ssh://user@host/path")
	require.NoError(t, err)
	ep := addr.Endpoint(22)
	require.Equal(t, 22, ep.Port)
	require.Equal(t, "user", ep.Principal)

	addr2, err := ParseAddress("ssh://user@host:2022/path")
	require.NoError(t, err)
	require.Equal(t, 2022, addr2.Endpoint(22).Port)
}
