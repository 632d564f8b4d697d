// Package sshvfs adapts an SSH/SFTP endpoint into a streaming virtual
// filesystem: byte-range reads, chunked ordered writes, and the directory
// operations a host query engine needs, all behind one connection per
// endpoint shared across every open file handle.
package sshvfs

import (
	"github.com/sshvfs/sshvfs/internal/transport"
	"github.com/sshvfs/sshvfs/pkg/sferr"
)

// Endpoint identifies one SSH destination (principal, hostname, port).
type Endpoint = transport.Endpoint

// ConnectionParameters configures how a FileSystem dials and authenticates
// an Endpoint, and tunes the session pool and write/read pipelines built
// on top of it.
type ConnectionParameters = transport.ConnectionParameters

// CredentialVariant selects how ConnectionParameters authenticates.
type CredentialVariant = transport.CredentialVariant

const (
	CredentialProbeOrder = transport.CredentialProbeOrder
	CredentialPassword   = transport.CredentialPassword
	CredentialKeyFile    = transport.CredentialKeyFile
	CredentialAgent      = transport.CredentialAgent
)

// HostPolicy lets a hostname suffix pre-disable command-exec.
type HostPolicy = transport.HostPolicy

// DefaultHostPolicies returns the built-in host policy table.
func DefaultHostPolicies() []HostPolicy { return transport.DefaultHostPolicies() }

// Error is the error type returned across the sshvfs public surface.
type Error = sferr.Error

// ErrorKind classifies an Error.
type ErrorKind = sferr.Kind

const (
	KindAddressFormat     = sferr.KindAddressFormat
	KindConfiguration     = sferr.KindConfiguration
	KindDNS               = sferr.KindDNS
	KindNetwork           = sferr.KindNetwork
	KindHandshake         = sferr.KindHandshake
	KindAuthentication    = sferr.KindAuthentication
	KindResourceExhausted = sferr.KindResourceExhausted
	KindRemoteIO          = sferr.KindRemoteIO
	KindCommandExecution  = sferr.KindCommandExecution
	KindStalledWrite      = sferr.KindStalledWrite
	KindUploadAggregated  = sferr.KindUploadAggregated
)

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool { return sferr.Is(err, kind) }
