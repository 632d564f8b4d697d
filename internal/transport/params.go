// Package transport implements the SSH connection, SFTP session pool and
// process-wide registry (spec components A-D): dialing and authenticating
// a single SSH connection per endpoint, pooling bounded SFTP sub-sessions
// over it, probing command-exec capability once, and sharing the result
// across callers keyed by endpoint.
package transport

import (
	"fmt"
	"strings"
	"time"
)

// Endpoint identifies one SSH destination. Two ConnectionParameters with
// equal Endpoint values share a Transport.
type Endpoint struct {
	Principal string
	Hostname  string
	Port      int
}

// Key returns the Transport Registry lookup key for the endpoint.
func (e Endpoint) Key() string {
	return fmt.Sprintf("%s@%s:%d", e.Principal, e.Hostname, e.Port)
}

func (e Endpoint) String() string { return e.Key() }

// CredentialVariant selects how ConnectionParameters authenticates.
type CredentialVariant string

const (
	// CredentialProbeOrder uses only the first configured of password, key
	// file, then agent, in that order; it never falls through to a later one.
	CredentialProbeOrder CredentialVariant = "probe_order"
	CredentialPassword   CredentialVariant = "password"
	CredentialKeyFile    CredentialVariant = "key_file"
	CredentialAgent      CredentialVariant = "agent"
)

// HostPolicy lets a hostname suffix pre-disable command-exec, generalizing
// the single Hetzner Storage Box check in the original implementation.
type HostPolicy struct {
	Suffix           string
	CommandsDisabled bool
}

// DefaultHostPolicies returns the built-in policy table.
func DefaultHostPolicies() []HostPolicy {
	return []HostPolicy{
		{Suffix: "storagebox.de", CommandsDisabled: true},
		{Suffix: "your-storagebox.de", CommandsDisabled: true},
	}
}

// ConnectionParameters configures a Transport. Zero-value numeric fields
// are filled with the defaults documented on each field when passed to
// NewTransport.
type ConnectionParameters struct {
	Endpoint Endpoint

	Credential     CredentialVariant
	Password       string
	PrivateKeyPath string
	Passphrase     string
	UseAgent       bool

	// Timeout bounds the TCP dial, SSH handshake, and any single blocking
	// network operation. Default 300s.
	Timeout time.Duration
	// MaxRetries is the number of additional connect attempts after the
	// first, for non-authentication failures only. Default 3.
	MaxRetries int
	// InitialRetryDelay seeds the exponential backoff between attempts:
	// delay(k) = InitialRetryDelay * 2^(k-1). Default 1s.
	InitialRetryDelay time.Duration
	// KeepaliveInterval is the period between keepalive global requests.
	// Nil selects the 60s default; a non-nil zero explicitly disables
	// keepalives (a plain zero time.Duration can't carry that distinction,
	// since it's also WithDefaults' "unset" sentinel).
	KeepaliveInterval *time.Duration

	// ChunkSizeBytes is the write pipeline's per-part buffer size.
	// Default 50 MiB.
	ChunkSizeBytes int64
	// MaxConcurrentUploads bounds how many parts may be queued ahead of
	// the uploader at once (backpressure width W). Default 2.
	MaxConcurrentUploads int

	// SFTPPoolCapacity bounds how many simultaneous SFTP sub-sessions this
	// Transport maintains. Default 1.
	SFTPPoolCapacity int

	// StrictCrypto restricts key exchange and host key algorithms to the
	// non-NIST subset.
	StrictCrypto bool

	// HostPolicies overrides the default host-policy table. Nil selects
	// DefaultHostPolicies().
	HostPolicies []HostPolicy

	// CommandProbe is the command run once after authentication to detect
	// command-exec support. Default "pwd".
	CommandProbe string
}

const (
	defaultTimeout           = 300 * time.Second
	defaultMaxRetries        = 3
	defaultInitialRetryDelay = time.Second
	defaultKeepalive         = 60 * time.Second
	defaultChunkSize         = 50 * 1024 * 1024
	defaultMaxConcurrent     = 2
	defaultPoolCapacity      = 1
	defaultCommandProbe      = "pwd"
)

// WithDefaults returns a copy of p with every zero-value tunable field
// filled in.
func (p ConnectionParameters) WithDefaults() ConnectionParameters {
	if p.Timeout == 0 {
		p.Timeout = defaultTimeout
	}
	if p.MaxRetries == 0 {
		p.MaxRetries = defaultMaxRetries
	}
	if p.InitialRetryDelay == 0 {
		p.InitialRetryDelay = defaultInitialRetryDelay
	}
	if p.KeepaliveInterval == nil {
		d := defaultKeepalive
		p.KeepaliveInterval = &d
	}
	if p.ChunkSizeBytes == 0 {
		p.ChunkSizeBytes = defaultChunkSize
	}
	if p.MaxConcurrentUploads == 0 {
		p.MaxConcurrentUploads = defaultMaxConcurrent
	}
	if p.SFTPPoolCapacity == 0 {
		p.SFTPPoolCapacity = defaultPoolCapacity
	}
	if p.Endpoint.Port == 0 {
		p.Endpoint.Port = 22
	}
	if p.HostPolicies == nil {
		p.HostPolicies = DefaultHostPolicies()
	}
	if p.CommandProbe == "" {
		p.CommandProbe = defaultCommandProbe
	}
	return p
}

// commandsPreDisabled reports whether a host policy pre-disables
// command-exec for this endpoint, bypassing the post-auth probe.
func (p ConnectionParameters) commandsPreDisabled() bool {
	host := p.Endpoint.Hostname
	for _, policy := range p.HostPolicies {
		if policy.CommandsDisabled && hasSuffixFold(host, policy.Suffix) {
			return true
		}
	}
	return false
}

func hasSuffixFold(s, suffix string) bool {
	if len(suffix) > len(s) {
		return false
	}
	return strings.EqualFold(s[len(s)-len(suffix):], suffix)
}
