package sshvfs

import (
	"context"
	"path"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/sshvfs/sshvfs/internal/readpath"
	"github.com/sshvfs/sshvfs/internal/sftpio"
	"github.com/sshvfs/sshvfs/internal/transport"
	"github.com/sshvfs/sshvfs/internal/writepipe"
	"github.com/sshvfs/sshvfs/pkg/sferr"
)

// OpenMode selects the access pattern a FileHandle supports.
type OpenMode int

const (
	// OpenRead serves byte-range reads through readpath.Reader.
	OpenRead OpenMode = iota
	// OpenWrite streams ordered, chunked appends through writepipe.Pipeline.
	// The remote file is created and truncated when the first part is
	// committed; opening alone does not touch it.
	OpenWrite
)

// FileSystem is the facade over the transport registry: it resolves
// addresses to Transports, dials them on demand, and hands back
// FileHandle values for the byte-range read path or the streaming write
// pipeline. One FileSystem is meant to be shared process-wide, the way the
// original facade shared one client pool across every opened file.
type FileSystem struct {
	registry    *transport.Registry
	logger      *zap.Logger
	defaultPort int
}

// Option configures a FileSystem.
type Option func(*FileSystem)

func WithLogger(l *zap.Logger) Option {
	return func(fs *FileSystem) { fs.logger = l }
}

func WithDefaultPort(port int) Option {
	return func(fs *FileSystem) { fs.defaultPort = port }
}

func NewFileSystem(opts ...Option) *FileSystem {
	fs := &FileSystem{defaultPort: 22, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(fs)
	}
	fs.registry = transport.NewRegistry(fs.logger)
	return fs
}

// resolve parses rawAddress, fills in params.Endpoint, and returns a
// connected Transport for it.
func (fs *FileSystem) resolve(ctx context.Context, rawAddress string, params ConnectionParameters) (*transport.Transport, Address, error) {
	addr, err := ParseAddress(rawAddress)
	if err != nil {
		return nil, Address{}, err
	}
	params.Endpoint = addr.Endpoint(fs.defaultPort)

	tr := fs.registry.GetOrCreate(params)
	if !tr.IsConnected() {
		if err := tr.Connect(ctx); err != nil {
			return nil, Address{}, err
		}
	}
	return tr, addr, nil
}

// Open resolves rawAddress and returns a FileHandle for it in the given
// mode.
func (fs *FileSystem) Open(ctx context.Context, rawAddress string, params ConnectionParameters, mode OpenMode) (*FileHandle, error) {
	tr, addr, err := fs.resolve(ctx, rawAddress, params)
	if err != nil {
		return nil, err
	}

	h := &FileHandle{tr: tr, path: addr.Path, mode: mode}
	switch mode {
	case OpenRead:
		h.reader = readpath.New(tr, addr.Path, fs.logger)
	case OpenWrite:
		p := params.WithDefaults()
		h.pipeline = writepipe.New(tr, addr.Path, p.ChunkSizeBytes, p.MaxConcurrentUploads, fs.logger)
	default:
		return nil, sferr.Newf(sferr.KindConfiguration, "unknown open mode %d", mode)
	}
	return h, nil
}

// sessionProvider is the slice of *transport.Transport the operations below
// need: a session pool to borrow an sftpio.Client from. Narrowing to this
// interface lets each operation be exercised against a fake pool in tests
// without a live SSH connection, the same seam internal/writepipe and
// internal/readpath use for their transportProvider.
type sessionProvider interface {
	Pool() *transport.Pool
}

func (fs *FileSystem) withSession(ctx context.Context, tr sessionProvider, fn func(sftpio.Client) error) error {
	pool := tr.Pool()
	if pool == nil {
		return sferr.New(sferr.KindNetwork, "transport has no active session pool")
	}
	session, err := pool.Borrow(ctx)
	if err != nil {
		return err
	}
	defer pool.Return(session)
	return fn(session)
}

// Exists reports whether rawAddress names an existing remote file or
// directory.
func (fs *FileSystem) Exists(ctx context.Context, rawAddress string, params ConnectionParameters) (bool, error) {
	tr, addr, err := fs.resolve(ctx, rawAddress, params)
	if err != nil {
		return false, err
	}
	return fs.existsAt(ctx, tr, addr.Path)
}

// existsAt reports whether statting remotePath succeeds. Any stat error,
// not just "not found", classifies as "does not exist" at this layer.
func (fs *FileSystem) existsAt(ctx context.Context, tr sessionProvider, remotePath string) (bool, error) {
	var found bool
	err := fs.withSession(ctx, tr, func(c sftpio.Client) error {
		_, statErr := c.Stat(remotePath)
		found = statErr == nil
		return nil
	})
	return found, err
}

// DirectoryExists reports whether rawAddress names an existing remote
// directory, additionally verifying the stat result's permission bits
// indicate a directory rather than merely treating any successful stat as
// a match. Any stat error, like Exists, classifies as "does not exist".
func (fs *FileSystem) DirectoryExists(ctx context.Context, rawAddress string, params ConnectionParameters) (bool, error) {
	tr, addr, err := fs.resolve(ctx, rawAddress, params)
	if err != nil {
		return false, err
	}
	return fs.directoryExistsAt(ctx, tr, addr.Path)
}

func (fs *FileSystem) directoryExistsAt(ctx context.Context, tr sessionProvider, remotePath string) (bool, error) {
	var isDir bool
	err := fs.withSession(ctx, tr, func(c sftpio.Client) error {
		fi, statErr := c.Stat(remotePath)
		isDir = statErr == nil && fi.IsDir()
		return nil
	})
	return isDir, err
}

// LastModifiedTime returns the remote modification time for rawAddress. If
// the stat fails, it falls back to the current time rather than surfacing
// the error, matching the original facade's behavior for files that may
// not exist yet (e.g. mid-write).
func (fs *FileSystem) LastModifiedTime(ctx context.Context, rawAddress string, params ConnectionParameters) (time.Time, error) {
	tr, addr, err := fs.resolve(ctx, rawAddress, params)
	if err != nil {
		return time.Time{}, err
	}
	return fs.lastModifiedTimeAt(ctx, tr, addr.Path)
}

func (fs *FileSystem) lastModifiedTimeAt(ctx context.Context, tr sessionProvider, remotePath string) (time.Time, error) {
	result := time.Now()
	err := fs.withSession(ctx, tr, func(c sftpio.Client) error {
		if fi, statErr := c.Stat(remotePath); statErr == nil {
			result = fi.ModTime()
		}
		return nil
	})
	return result, err
}

// FileSize returns the remote file size for rawAddress, or 0 if the stat
// fails (the size attribute may be unset while a write is in progress).
func (fs *FileSystem) FileSize(ctx context.Context, rawAddress string, params ConnectionParameters) (int64, error) {
	tr, addr, err := fs.resolve(ctx, rawAddress, params)
	if err != nil {
		return 0, err
	}
	return fs.fileSizeAt(ctx, tr, addr.Path)
}

func (fs *FileSystem) fileSizeAt(ctx context.Context, tr sessionProvider, remotePath string) (int64, error) {
	var size int64
	err := fs.withSession(ctx, tr, func(c sftpio.Client) error {
		if fi, statErr := c.Stat(remotePath); statErr == nil {
			size = fi.Size()
		}
		return nil
	})
	return size, err
}

// FileInfo reports name, size, directory-ness and modification time for a
// remote path; permission bits are not carried.
type FileInfo struct {
	Name    string
	Size    int64
	IsDir   bool
	ModTime int64 // unix seconds
}

// Stat returns metadata for rawAddress.
func (fs *FileSystem) Stat(ctx context.Context, rawAddress string, params ConnectionParameters) (FileInfo, error) {
	tr, addr, err := fs.resolve(ctx, rawAddress, params)
	if err != nil {
		return FileInfo{}, err
	}
	return fs.statAt(ctx, tr, addr.Path)
}

func (fs *FileSystem) statAt(ctx context.Context, tr sessionProvider, remotePath string) (FileInfo, error) {
	var info FileInfo
	err := fs.withSession(ctx, tr, func(c sftpio.Client) error {
		fi, statErr := c.Stat(remotePath)
		if statErr != nil {
			return sferr.Wrap(sferr.KindRemoteIO, "stat failed", statErr).WithPath(remotePath)
		}
		info = FileInfo{Name: fi.Name(), Size: fi.Size(), IsDir: fi.IsDir(), ModTime: fi.ModTime().Unix()}
		return nil
	})
	return info, err
}

// Remove deletes a remote file.
func (fs *FileSystem) Remove(ctx context.Context, rawAddress string, params ConnectionParameters) error {
	tr, addr, err := fs.resolve(ctx, rawAddress, params)
	if err != nil {
		return err
	}
	return fs.removeAt(ctx, tr, addr.Path)
}

func (fs *FileSystem) removeAt(ctx context.Context, tr sessionProvider, remotePath string) error {
	return fs.withSession(ctx, tr, func(c sftpio.Client) error {
		if err := c.Remove(remotePath); err != nil {
			return sferr.Wrap(sferr.KindRemoteIO, "remove failed", err).WithPath(remotePath)
		}
		return nil
	})
}

// Rename moves a remote file, using the posix-rename extension for atomic
// overwrite semantics when the server supports it.
func (fs *FileSystem) Rename(ctx context.Context, fromAddress, toAddress string, params ConnectionParameters) error {
	tr, fromAddr, err := fs.resolve(ctx, fromAddress, params)
	if err != nil {
		return err
	}
	toAddr, err := ParseAddress(toAddress)
	if err != nil {
		return err
	}
	return fs.renameAt(ctx, tr, fromAddr.Path, toAddr.Path)
}

func (fs *FileSystem) renameAt(ctx context.Context, tr sessionProvider, fromPath, toPath string) error {
	return fs.withSession(ctx, tr, func(c sftpio.Client) error {
		if err := c.PosixRename(fromPath, toPath); err != nil {
			return sferr.Wrap(sferr.KindRemoteIO, "rename failed", err).WithPath(fromPath)
		}
		return nil
	})
}

// Mkdir creates a remote directory and any missing parents.
func (fs *FileSystem) Mkdir(ctx context.Context, rawAddress string, params ConnectionParameters) error {
	tr, addr, err := fs.resolve(ctx, rawAddress, params)
	if err != nil {
		return err
	}
	return fs.mkdirAt(ctx, tr, addr.Path)
}

func (fs *FileSystem) mkdirAt(ctx context.Context, tr sessionProvider, remotePath string) error {
	return fs.withSession(ctx, tr, func(c sftpio.Client) error {
		if err := c.MkdirAll(remotePath); err != nil {
			return sferr.Wrap(sferr.KindRemoteIO, "mkdir failed", err).WithPath(remotePath)
		}
		return nil
	})
}

// Rmdir removes an empty remote directory.
func (fs *FileSystem) Rmdir(ctx context.Context, rawAddress string, params ConnectionParameters) error {
	tr, addr, err := fs.resolve(ctx, rawAddress, params)
	if err != nil {
		return err
	}
	return fs.rmdirAt(ctx, tr, addr.Path)
}

func (fs *FileSystem) rmdirAt(ctx context.Context, tr sessionProvider, remotePath string) error {
	return fs.withSession(ctx, tr, func(c sftpio.Client) error {
		if err := c.RemoveDirectory(remotePath); err != nil {
			return sferr.Wrap(sferr.KindRemoteIO, "rmdir failed", err).WithPath(remotePath)
		}
		return nil
	})
}

// ReadDir lists the immediate entries of a remote directory, sorted by
// name.
func (fs *FileSystem) ReadDir(ctx context.Context, rawAddress string, params ConnectionParameters) ([]FileInfo, error) {
	tr, addr, err := fs.resolve(ctx, rawAddress, params)
	if err != nil {
		return nil, err
	}
	return fs.readDirAt(ctx, tr, addr.Path)
}

func (fs *FileSystem) readDirAt(ctx context.Context, tr sessionProvider, remotePath string) ([]FileInfo, error) {
	var entries []FileInfo
	err := fs.withSession(ctx, tr, func(c sftpio.Client) error {
		infos, err := c.ReadDir(remotePath)
		if err != nil {
			return sferr.Wrap(sferr.KindRemoteIO, "readdir failed", err).WithPath(remotePath)
		}
		for _, fi := range infos {
			entries = append(entries, FileInfo{Name: fi.Name(), Size: fi.Size(), IsDir: fi.IsDir(), ModTime: fi.ModTime().Unix()})
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
		return nil
	})
	return entries, err
}

// Glob lists entries of the directory containing rawAddress whose base
// name matches the shell pattern embedded in rawAddress's final path
// component (e.g. "sshfs://host/var/log/*.log").
func (fs *FileSystem) Glob(ctx context.Context, rawAddress string, params ConnectionParameters) ([]string, error) {
	tr, addr, err := fs.resolve(ctx, rawAddress, params)
	if err != nil {
		return nil, err
	}
	dir := path.Dir(addr.Path)
	pattern := path.Base(addr.Path)
	return fs.globAt(ctx, tr, dir, pattern)
}

func (fs *FileSystem) globAt(ctx context.Context, tr sessionProvider, dir, pattern string) ([]string, error) {
	var matches []string
	err := fs.withSession(ctx, tr, func(c sftpio.Client) error {
		infos, err := c.ReadDir(dir)
		if err != nil {
			return sferr.Wrap(sferr.KindRemoteIO, "glob readdir failed", err).WithPath(dir)
		}
		for _, fi := range infos {
			ok, matchErr := path.Match(pattern, fi.Name())
			if matchErr != nil {
				return sferr.Wrap(sferr.KindAddressFormat, "invalid glob pattern", matchErr)
			}
			if ok {
				matches = append(matches, path.Join(dir, fi.Name()))
			}
		}
		sort.Strings(matches)
		return nil
	})
	return matches, err
}
