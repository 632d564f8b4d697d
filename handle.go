package sshvfs

import (
	"context"
	"io"
	"time"

	"github.com/sshvfs/sshvfs/internal/readpath"
	"github.com/sshvfs/sshvfs/internal/transport"
	"github.com/sshvfs/sshvfs/internal/writepipe"
	"github.com/sshvfs/sshvfs/pkg/sferr"
)

// FileHandle is one open remote file, bound for its lifetime to a single
// OpenMode. Seeking and writing are never mixed: a write handle streams
// strictly-ordered appends and does not support Seek.
type FileHandle struct {
	tr   *transport.Transport
	path string
	mode OpenMode

	reader   *readpath.Reader
	pipeline *writepipe.Pipeline

	position int64
}

// Read fills p starting at the handle's current position and advances it
// by the number of bytes read. It implements io.Reader.
func (h *FileHandle) Read(p []byte) (int, error) {
	if h.mode != OpenRead {
		return 0, sferr.New(sferr.KindConfiguration, "handle was not opened for reading").WithPath(h.path)
	}
	if len(p) == 0 {
		return 0, nil
	}
	n, err := h.reader.ReadAt(context.Background(), h.position, p)
	h.position += int64(n)
	if err != nil {
		return n, err
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Write appends p to the streaming write pipeline. It implements
// io.Writer.
func (h *FileHandle) Write(p []byte) (int, error) {
	if h.mode != OpenWrite {
		return 0, sferr.New(sferr.KindConfiguration, "handle was not opened for writing").WithPath(h.path)
	}
	return h.pipeline.Write(p)
}

// Seek repositions a read handle. Write handles do not support seeking:
// the pipeline commits parts in strictly increasing order as they are
// produced.
func (h *FileHandle) Seek(offset int64, whence int) (int64, error) {
	if h.mode != OpenRead {
		return 0, sferr.New(sferr.KindConfiguration, "seek is not supported on a write handle").WithPath(h.path)
	}
	switch whence {
	case io.SeekStart:
		h.position = offset
	case io.SeekCurrent:
		h.position += offset
	case io.SeekEnd:
		size, err := h.remoteSize()
		if err != nil {
			return h.position, err
		}
		h.position = size + offset
	default:
		return h.position, sferr.Newf(sferr.KindConfiguration, "unsupported whence %d", whence)
	}
	if h.position < 0 {
		h.position = 0
	}
	return h.position, nil
}

// Reset rewinds a read handle's cursor to the start of the file. It is not
// supported on a write handle, for the same reason Seek is not.
func (h *FileHandle) Reset() error {
	_, err := h.Seek(0, io.SeekStart)
	return err
}

// Position reports the handle's current cursor: the read position for a
// read handle, or bytes committed plus buffered for a write handle.
func (h *FileHandle) Position() int64 {
	return h.Progress()
}

// CanSeek reports whether this implementation supports seeking at all.
// It is a constant property of the handle type, not a runtime check of
// mode: the command-exec fast path makes arbitrary-offset reads possible,
// so the capability is always present even though Seek itself still
// rejects a write handle at call time.
func (h *FileHandle) CanSeek() bool { return true }

// OnDisk reports whether the handle is backed by a local file. It is
// always false: every FileHandle streams against a remote SFTP endpoint.
func (h *FileHandle) OnDisk() bool { return false }

// LastModifiedTime returns the remote file's modification time. If the
// stat fails, it falls back to the current time rather than surfacing the
// error, matching FileSystem.LastModifiedTime's behavior for files that
// may not exist yet (e.g. mid-write).
func (h *FileHandle) LastModifiedTime() (time.Time, error) {
	pool := h.tr.Pool()
	if pool == nil {
		return time.Now(), sferr.New(sferr.KindNetwork, "transport has no active session pool")
	}
	session, err := pool.Borrow(context.Background())
	if err != nil {
		return time.Now(), err
	}
	defer pool.Return(session)
	if fi, statErr := session.Stat(h.path); statErr == nil {
		return fi.ModTime(), nil
	}
	return time.Now(), nil
}

func (h *FileHandle) remoteSize() (int64, error) {
	pool := h.tr.Pool()
	if pool == nil {
		return 0, sferr.New(sferr.KindNetwork, "transport has no active session pool")
	}
	session, err := pool.Borrow(context.Background())
	if err != nil {
		return 0, err
	}
	defer pool.Return(session)
	fi, err := session.Stat(h.path)
	if err != nil {
		return 0, sferr.Wrap(sferr.KindRemoteIO, "stat failed", err).WithPath(h.path)
	}
	return fi.Size(), nil
}

// Truncate resizes the remote file outside the streaming write pipeline;
// it is meaningful only when no write pipeline is concurrently appending
// to the same path.
func (h *FileHandle) Truncate(size int64) error {
	pool := h.tr.Pool()
	if pool == nil {
		return sferr.New(sferr.KindNetwork, "transport has no active session pool")
	}
	session, err := pool.Borrow(context.Background())
	if err != nil {
		return err
	}
	defer pool.Return(session)
	if err := session.Truncate(h.path, size); err != nil {
		return sferr.Wrap(sferr.KindRemoteIO, "truncate failed", err).WithPath(h.path)
	}
	return nil
}

// Sync flushes any partially filled chunk in a write handle's pipeline
// without closing it. It is a no-op on a read handle.
func (h *FileHandle) Sync() error {
	if h.mode != OpenWrite {
		return nil
	}
	return h.pipeline.Flush()
}

// Progress reports bytes durably committed plus bytes buffered for a
// write handle, or the current read position for a read handle.
func (h *FileHandle) Progress() int64 {
	if h.mode == OpenWrite {
		return h.pipeline.Progress()
	}
	return h.position
}

// Close releases the handle. For a write handle this drains the pipeline,
// waits for every dispatched part to commit, and returns the failed part's
// error if one part failed or an aggregated error if several did; for a
// read handle it is a no-op since reads
// never hold a standing remote session between calls.
func (h *FileHandle) Close() error {
	if h.mode == OpenWrite {
		return h.pipeline.Close()
	}
	return nil
}
