package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sshvfs/sshvfs"
	"github.com/sshvfs/sshvfs/pkg/sfconfig"
	"github.com/sshvfs/sshvfs/pkg/sflog"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sshvfs-bench", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var (
		configDir  string
		address    string
		principal  string
		password   string
		keyPath    string
		writeBytes int
	)
	fs.StringVar(&configDir, "config", "", "Directory to search for sshvfs.yaml")
	fs.StringVar(&address, "addr", "", "Target address, e.g. sshfs://user@host/path/to/file")
	fs.StringVar(&principal, "user", "", "Username, overrides the address's principal")
	fs.StringVar(&password, "password", "", "Password credential")
	fs.StringVar(&keyPath, "identity", "", "Private key path credential")
	fs.IntVar(&writeBytes, "write-bytes", 0, "If set, write this many bytes instead of reading")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if address == "" {
		return fmt.Errorf("-addr is required")
	}

	cfg, err := loadRuntimeConfig(configDir)
	if err != nil {
		return err
	}
	if err := sflog.Init(cfg.Log.Level); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer sflog.Sync()
	log := sflog.Named("bench")

	keepalive := cfg.Defaults.KeepaliveInterval
	params := sshvfs.ConnectionParameters{
		Timeout:              cfg.Defaults.Timeout,
		MaxRetries:           cfg.Defaults.MaxRetries,
		InitialRetryDelay:    cfg.Defaults.InitialRetryDelay,
		KeepaliveInterval:    &keepalive,
		ChunkSizeBytes:       cfg.Defaults.ChunkSizeBytes,
		MaxConcurrentUploads: cfg.Defaults.MaxConcurrentUploads,
		SFTPPoolCapacity:     cfg.Defaults.SFTPPoolCapacity,
		StrictCrypto:         cfg.Defaults.StrictCrypto,
		HostPolicies:         cfg.Defaults.ToHostPolicies(),
	}
	switch {
	case password != "":
		params.Credential = sshvfs.CredentialPassword
		params.Password = password
	case keyPath != "":
		params.Credential = sshvfs.CredentialKeyFile
		params.PrivateKeyPath = keyPath
	default:
		params.Credential = sshvfs.CredentialProbeOrder
	}

	if principal != "" {
		address = withPrincipal(address, principal)
	}
	if _, err := sshvfs.ParseAddress(address); err != nil {
		return fmt.Errorf("parse address: %w", err)
	}

	filesystem := sshvfs.NewFileSystem(sshvfs.WithLogger(sflog.Logger()))

	start := time.Now()
	if writeBytes > 0 {
		if err := benchWrite(ctx, filesystem, address, params, writeBytes); err != nil {
			return err
		}
		log.Info("write complete", zap.Int("bytes", writeBytes), zap.Duration("elapsed", time.Since(start)))
		return nil
	}

	n, err := benchRead(ctx, filesystem, address, params)
	if err != nil {
		return err
	}
	log.Info("read complete", zap.Int("bytes", n), zap.Duration("elapsed", time.Since(start)))
	return nil
}

func benchWrite(ctx context.Context, fs *sshvfs.FileSystem, address string, params sshvfs.ConnectionParameters, n int) error {
	h, err := fs.Open(ctx, address, params, sshvfs.OpenWrite)
	if err != nil {
		return fmt.Errorf("open for write: %w", err)
	}
	payload := make([]byte, 64*1024)
	for i := range payload {
		payload[i] = byte(i)
	}
	remaining := n
	for remaining > 0 {
		chunk := len(payload)
		if chunk > remaining {
			chunk = remaining
		}
		if _, err := h.Write(payload[:chunk]); err != nil {
			_ = h.Close()
			return fmt.Errorf("write: %w", err)
		}
		remaining -= chunk
	}
	return h.Close()
}

func benchRead(ctx context.Context, fs *sshvfs.FileSystem, address string, params sshvfs.ConnectionParameters) (int, error) {
	h, err := fs.Open(ctx, address, params, sshvfs.OpenRead)
	if err != nil {
		return 0, fmt.Errorf("open for read: %w", err)
	}
	defer h.Close()

	buf := make([]byte, 64*1024)
	total := 0
	for {
		n, err := h.Read(buf)
		total += n
		if err != nil {
			if errors.Is(err, io.EOF) {
				return total, nil
			}
			return total, fmt.Errorf("read: %w", err)
		}
	}
}

// withPrincipal rewrites an address's principal, inserting one if absent.
func withPrincipal(address, principal string) string {
	schemeEnd := strings.Index(address, "://")
	if schemeEnd < 0 {
		return address
	}
	rest := address[schemeEnd+3:]
	if at := strings.Index(rest, "@"); at >= 0 {
		return address[:schemeEnd+3] + principal + rest[at:]
	}
	return address[:schemeEnd+3] + principal + "@" + rest
}

func loadRuntimeConfig(dir string) (*sfconfig.Config, error) {
	if dir == "" {
		return sfconfig.Load(".")
	}
	return sfconfig.Load(dir)
}
