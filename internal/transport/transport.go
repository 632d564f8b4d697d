package transport

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"github.com/sshvfs/sshvfs/internal/sftpio"
	"github.com/sshvfs/sshvfs/pkg/sferr"
	"github.com/sshvfs/sshvfs/pkg/sfmetrics"
)

// Transport owns one SSH connection to an endpoint plus the SFTP session
// pool and command-exec capability derived from it. One Transport is
// shared, via the Registry, by every FileHandle addressing the same
// endpoint.
type Transport struct {
	params ConnectionParameters
	connID string
	logger *zap.Logger

	mu     sync.Mutex
	conn   *ssh.Client
	closed bool

	pool *Pool

	supportsCommands atomic.Bool
	commandsDisabled atomic.Bool

	readMu   sync.Mutex
	keepDone chan struct{}
	keepWG   sync.WaitGroup
}

// NewTransport constructs a Transport. It does not dial; call Connect.
func NewTransport(params ConnectionParameters, logger *zap.Logger) *Transport {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := params.WithDefaults()
	connID := uuid.NewString()
	t := &Transport{
		params: p,
		connID: connID,
		logger: logger.With(zap.String("endpoint", p.Endpoint.Key()), zap.String("conn_id", connID)),
	}
	if p.commandsPreDisabled() {
		t.commandsDisabled.Store(true)
	}
	return t
}

func (t *Transport) Endpoint() Endpoint { return t.params.Endpoint }

// ConnectionID returns the identifier assigned to this Transport instance
// at construction time, used to correlate log lines across reconnects of
// the same endpoint.
func (t *Transport) ConnectionID() string { return t.connID }

// IsConnected reports whether the underlying SSH connection is live.
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil && !t.closed
}

// Connect dials and authenticates, retrying non-authentication failures up
// to params.MaxRetries times with exponential backoff. Authentication
// failures are returned immediately without retry.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.conn != nil && !t.closed {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	cfg, err := t.buildClientConfig()
	if err != nil {
		return err
	}

	var lastErr error
	attempts := t.params.MaxRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		conn, err := t.dialAndHandshake(ctx, cfg)
		if err == nil {
			t.mu.Lock()
			t.conn = conn
			t.closed = false
			t.pool = NewPool(t.params.SFTPPoolCapacity, sftpio.NewSessionFactory(conn, 1<<15), t.logger)
			t.mu.Unlock()

			t.detectCapabilities()
			t.startKeepalive()
			sfmetrics.ConnectAttempts.WithLabelValues(t.params.Endpoint.Key(), "success").Inc()
			return nil
		}

		lastErr = err
		sfmetrics.ConnectAttempts.WithLabelValues(t.params.Endpoint.Key(), "failure").Inc()

		if sferr.Is(err, sferr.KindAuthentication) {
			return err
		}
		if attempt == attempts {
			break
		}

		delay := t.params.InitialRetryDelay * time.Duration(1<<(attempt-1))
		t.logger.Warn("connect attempt failed, retrying",
			zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return sferr.Wrap(sferr.KindNetwork, "connect canceled", ctx.Err())
		}
	}
	return lastErr
}

func (t *Transport) dialAndHandshake(ctx context.Context, cfg *ssh.ClientConfig) (*ssh.Client, error) {
	addr := net.JoinHostPort(t.params.Endpoint.Hostname, fmt.Sprintf("%d", t.params.Endpoint.Port))

	dialer := net.Dialer{Timeout: t.params.Timeout}
	raw, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, sferr.Wrap(sferr.KindNetwork, "tcp dial failed", err).WithEndpoint(t.params.Endpoint.Key())
	}

	_ = raw.SetDeadline(time.Now().Add(t.params.Timeout))
	sshConn, chans, reqs, err := ssh.NewClientConn(raw, addr, cfg)
	if err != nil {
		raw.Close()
		if isAuthFailure(err) {
			return nil, sferr.Wrap(sferr.KindAuthentication, "ssh authentication failed", err).WithEndpoint(t.params.Endpoint.Key())
		}
		return nil, sferr.Wrap(sferr.KindHandshake, "ssh handshake failed", err).WithEndpoint(t.params.Endpoint.Key())
	}
	_ = raw.SetDeadline(time.Time{})

	return ssh.NewClient(sshConn, chans, reqs), nil
}

// isAuthFailure reports whether err is a failed-authentication outcome.
// golang.org/x/crypto/ssh has no typed error for this; it returns a plain
// error whose text names the exhausted auth methods.
func isAuthFailure(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "unable to authenticate") || strings.Contains(msg, "no supported methods remain")
}

func (t *Transport) buildClientConfig() (*ssh.ClientConfig, error) {
	methods, err := t.authMethods()
	if err != nil {
		return nil, err
	}
	kex, hostKey := resolveAlgorithms(t.params.StrictCrypto)
	cfg := &ssh.ClientConfig{
		User:              t.params.Endpoint.Principal,
		Auth:              methods,
		HostKeyCallback:   ssh.InsecureIgnoreHostKey(),
		HostKeyAlgorithms: hostKey,
		Timeout:           t.params.Timeout,
		Config:            ssh.Config{KeyExchanges: kex},
	}
	return cfg, nil
}

// authMethods builds the auth method list per the spec's strict ordering:
// password, then private key file, then agent, each tried only if
// explicitly configured and never falling through to the next on failure.
func (t *Transport) authMethods() ([]ssh.AuthMethod, error) {
	switch t.params.Credential {
	case CredentialPassword:
		if t.params.Password == "" {
			return nil, sferr.New(sferr.KindConfiguration, "password credential selected but no password configured")
		}
		return []ssh.AuthMethod{ssh.Password(t.params.Password)}, nil

	case CredentialKeyFile:
		signer, err := loadPrivateKey(t.params.PrivateKeyPath, t.params.Passphrase)
		if err != nil {
			return nil, sferr.Wrap(sferr.KindConfiguration, "failed to load private key", err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil

	case CredentialAgent:
		am, err := agentAuthMethod()
		if err != nil {
			return nil, err
		}
		return []ssh.AuthMethod{am}, nil

	case CredentialProbeOrder, "":
		if t.params.Password != "" {
			return []ssh.AuthMethod{ssh.Password(t.params.Password)}, nil
		}
		if t.params.PrivateKeyPath != "" {
			signer, err := loadPrivateKey(t.params.PrivateKeyPath, t.params.Passphrase)
			if err != nil {
				return nil, sferr.Wrap(sferr.KindConfiguration, "failed to load private key", err)
			}
			return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
		}
		if t.params.UseAgent || os.Getenv("SSH_AUTH_SOCK") != "" {
			if am, err := agentAuthMethod(); err == nil {
				return []ssh.AuthMethod{am}, nil
			}
		}
		return nil, sferr.New(sferr.KindConfiguration, "no usable credential configured")

	default:
		return nil, sferr.Newf(sferr.KindConfiguration, "unknown credential variant %q", t.params.Credential)
	}
}

func loadPrivateKey(path, passphrase string) (ssh.Signer, error) {
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if passphrase != "" {
		return ssh.ParsePrivateKeyWithPassphrase(key, []byte(passphrase))
	}
	return ssh.ParsePrivateKey(key)
}

func agentAuthMethod() (ssh.AuthMethod, error) {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, sferr.New(sferr.KindConfiguration, "agent credential selected but SSH_AUTH_SOCK is not set")
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, sferr.Wrap(sferr.KindConfiguration, "failed to connect to ssh-agent", err)
	}
	client := agent.NewClient(conn)
	return ssh.PublicKeysCallback(client.Signers), nil
}

// Disconnect tears down the session pool and the underlying SSH connection.
func (t *Transport) Disconnect() error {
	t.stopKeepalive()

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true

	var err error
	if t.pool != nil {
		err = t.pool.Close()
	}
	if t.conn != nil {
		err = multierr.Append(err, t.conn.Close())
	}
	return err
}

// ValidateConnection sends a lightweight keepalive request and reports
// whether the connection is still live.
func (t *Transport) ValidateConnection() bool {
	t.mu.Lock()
	conn := t.conn
	closed := t.closed
	t.mu.Unlock()
	if conn == nil || closed {
		return false
	}
	_, _, err := conn.SendRequest("keepalive@sshvfs", true, nil)
	return err == nil
}

func (t *Transport) startKeepalive() {
	if t.params.KeepaliveInterval == nil || *t.params.KeepaliveInterval <= 0 {
		return
	}
	t.keepDone = make(chan struct{})
	t.keepWG.Add(1)
	go func() {
		defer t.keepWG.Done()
		ticker := time.NewTicker(*t.params.KeepaliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if !t.ValidateConnection() {
					t.logger.Warn("keepalive detected dead connection")
					return
				}
			case <-t.keepDone:
				return
			}
		}
	}()
}

func (t *Transport) stopKeepalive() {
	if t.keepDone != nil {
		close(t.keepDone)
		t.keepWG.Wait()
		t.keepDone = nil
	}
}

// Pool returns the Transport's SFTP session pool.
func (t *Transport) Pool() *Pool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pool
}

// SupportsCommands reports whether the command-exec fast path may be used:
// the capability flag set once after authentication, unless commands were
// disabled by a host policy or by DisableCommands.
func (t *Transport) SupportsCommands() bool {
	return t.supportsCommands.Load() && !t.commandsDisabled.Load()
}

// DisableCommands permanently disables the command-exec fast path for this
// Transport, used on the first exec failure encountered during reads.
func (t *Transport) DisableCommands() {
	t.commandsDisabled.Store(true)
}

// ExecuteCommand runs cmd on the remote host and returns its stdout.
// Non-zero exit status is reported as a KindCommandExecution error.
func (t *Transport) ExecuteCommand(ctx context.Context, cmd string) ([]byte, error) {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return nil, sferr.New(sferr.KindNetwork, "transport is not connected")
	}

	session, err := conn.NewSession()
	if err != nil {
		return nil, sferr.Wrap(sferr.KindResourceExhausted, "failed to open command channel", err)
	}
	defer session.Close()

	out, err := session.Output(cmd)
	if err != nil {
		if exitErr, ok := err.(*ssh.ExitError); ok {
			return nil, sferr.Newf(sferr.KindCommandExecution, "command exited with status %d", exitErr.ExitStatus()).WithInternal(err)
		}
		return nil, sferr.Wrap(sferr.KindCommandExecution, "command execution failed", err)
	}
	return out, nil
}

// WithReadLock serializes a block of SFTP or command-exec read activity,
// since one SFTP session (and, for command-exec, one transport) is not
// safe for concurrent use.
func (t *Transport) WithReadLock(fn func() error) error {
	t.readMu.Lock()
	defer t.readMu.Unlock()
	return fn()
}
