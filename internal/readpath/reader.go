// Package readpath implements the byte-range read path (spec component
// F): an optional server-side command-exec fast path with automatic,
// permanent fallback to SFTP, both serialized by the Transport's read
// mutex since a session is not safe for concurrent use. Grounded on
// sshfs_file_handle.cpp's Read()/ReadBytesSFTP and the dd-based fast path
// in ssh_client.cpp.
package readpath

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/sshvfs/sshvfs/internal/transport"
	"github.com/sshvfs/sshvfs/pkg/sferr"
	"github.com/sshvfs/sshvfs/pkg/sfmetrics"
)

const (
	sftpReadChunk    = 32 * 1024
	commandReadChunk = 64 * 1024
)

// transportProvider is the slice of *transport.Transport the read path
// needs. Defining it locally lets tests substitute a fake backed by an
// in-memory session pool and a canned ExecuteCommand instead of a live SSH
// connection.
type transportProvider interface {
	Pool() *transport.Pool
	Endpoint() transport.Endpoint
	SupportsCommands() bool
	DisableCommands()
	ExecuteCommand(ctx context.Context, cmd string) ([]byte, error)
	WithReadLock(fn func() error) error
}

// Reader reads byte ranges of one remote file through a Transport.
type Reader struct {
	tr         transportProvider
	remotePath string
	logger     *zap.Logger
}

func New(tr transportProvider, remotePath string, logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{tr: tr, remotePath: remotePath, logger: logger}
}

// ReadAt fills buf with up to len(buf) bytes starting at offset, looping
// until buf is full or the remote file is exhausted. A short read is only
// ever returned at EOF.
func (r *Reader) ReadAt(ctx context.Context, offset int64, buf []byte) (int, error) {
	var total int
	err := r.tr.WithReadLock(func() error {
		for total < len(buf) {
			n, eof, err := r.readOnce(ctx, offset+int64(total), buf[total:])
			total += n
			if err != nil {
				return err
			}
			if eof {
				return nil
			}
			if n == 0 {
				return sferr.New(sferr.KindRemoteIO, "remote read made no progress").WithPath(r.remotePath)
			}
		}
		return nil
	})
	return total, err
}

// readOnce performs a single bounded read attempt, preferring the
// command-exec fast path when the Transport supports it.
func (r *Reader) readOnce(ctx context.Context, offset int64, buf []byte) (n int, eof bool, err error) {
	want := len(buf)
	if r.tr.SupportsCommands() {
		if want > commandReadChunk {
			want = commandReadChunk
		}
		n, eof, err = r.readViaCommand(ctx, offset, buf[:want])
		if err == nil {
			return n, eof, nil
		}
		r.logger.Warn("command-exec read failed, falling back to sftp permanently", zap.Error(err))
		r.tr.DisableCommands()
		sfmetrics.CommandFallbacks.WithLabelValues(r.tr.Endpoint().Key()).Inc()
	}

	want = len(buf)
	if want > sftpReadChunk {
		want = sftpReadChunk
	}
	return r.readViaSFTP(ctx, offset, buf[:want])
}

func (r *Reader) readViaSFTP(ctx context.Context, offset int64, buf []byte) (int, bool, error) {
	pool := r.tr.Pool()
	if pool == nil {
		return 0, false, sferr.New(sferr.KindNetwork, "transport has no active session pool")
	}
	session, err := pool.Borrow(ctx)
	if err != nil {
		return 0, false, err
	}
	defer pool.Return(session)

	f, err := session.Open(r.remotePath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, sferr.Wrap(sferr.KindRemoteIO, "remote file not found", err).WithPath(r.remotePath)
		}
		return 0, false, sferr.Wrap(sferr.KindRemoteIO, "failed to open remote file for read", err).WithPath(r.remotePath)
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return 0, false, sferr.Wrap(sferr.KindRemoteIO, "seek failed", err).WithPath(r.remotePath)
	}

	n, err := f.Read(buf)
	sfmetrics.BytesRead.WithLabelValues(r.tr.Endpoint().Key(), "sftp").Add(float64(n))
	if err == io.EOF {
		return n, true, nil
	}
	if err != nil {
		return n, false, sferr.Wrap(sferr.KindRemoteIO, "read failed", err).WithPath(r.remotePath)
	}
	return n, false, nil
}

// readViaCommand extracts len(buf) bytes starting at offset using a single
// server-side command, the dd-equivalent fast path. The remote path is
// shell-quoted since it is the one place a remote path flows into a
// command line the shell parses.
func (r *Reader) readViaCommand(ctx context.Context, offset int64, buf []byte) (int, bool, error) {
	cmd := fmt.Sprintf(
		"dd if=%s bs=1 skip=%d count=%d status=none 2>/dev/null",
		shellQuote(r.remotePath), offset, len(buf))

	out, err := r.tr.ExecuteCommand(ctx, cmd)
	if err != nil {
		return 0, false, err
	}
	n := copy(buf, out)
	sfmetrics.BytesRead.WithLabelValues(r.tr.Endpoint().Key(), "command").Add(float64(n))
	// A command-exec read can only tell EOF apart from a genuinely short
	// middle-of-file result by getting fewer bytes than requested: the
	// fast path has no separate EOF signal, so any short result is
	// treated as EOF, same as the SFTP path.
	return n, n < len(buf), nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
