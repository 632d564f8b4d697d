package sshvfs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sshvfs/sshvfs/internal/sftpio"
	"github.com/sshvfs/sshvfs/internal/sftpio/sftpiotest"
	"github.com/sshvfs/sshvfs/internal/transport"
)

// fakeTransport satisfies sessionProvider with a pool backed by an
// in-memory filesystem, letting the facade operations below be exercised
// without a live SSH connection.
type fakeTransport struct {
	pool *transport.Pool
}

func newFakeTransport(fs *sftpiotest.FS, capacity int) *fakeTransport {
	factory := func() (sftpio.Client, error) { return sftpiotest.New(fs), nil }
	return &fakeTransport{pool: transport.NewPool(capacity, factory, nil)}
}

func (f *fakeTransport) Pool() *transport.Pool { return f.pool }

func TestFileSystemOpenRejectsMalformedAddressBeforeConnecting(t *testing.T) {
	fs := NewFileSystem()
	_, err := fs.Open(context.Background(), "not-an-address", ConnectionParameters{}, OpenRead)
	require.Error(t, err)
	require.True(t, IsKind(err, KindAddressFormat))
}

func TestFileSystemOptionsApply(t *testing.T) {
	fs := NewFileSystem(WithDefaultPort(2222))
	require.Equal(t, 2222, fs.defaultPort)
}

func TestExistsAtReturnsTrueForStattableFile(t *testing.T) {
	backing := sftpiotest.NewFS()
	backing.Put("/var/log/app.log", []byte("hello"))
	tr := newFakeTransport(backing, 1)

	fs := NewFileSystem()
	ok, err := fs.existsAt(context.Background(), tr, "/var/log/app.log")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestExistsAtTreatsAnyStatErrorAsNotFound(t *testing.T) {
	backing := sftpiotest.NewFS()
	tr := newFakeTransport(backing, 1)

	fs := NewFileSystem()
	// No file and no directory at this path: Stat returns a not-exist
	// PathError, which must classify as (false, nil), not a hard error,
	// regardless of the underlying error's specific kind.
	ok, err := fs.existsAt(context.Background(), tr, "/no/such/path")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDirectoryExistsAtChecksPermissionBitsNotJustStatSuccess(t *testing.T) {
	backing := sftpiotest.NewFS()
	backing.Put("/var/log/app.log", []byte("hello"))
	tr := newFakeTransport(backing, 1)
	fs := NewFileSystem()

	isDir, err := fs.directoryExistsAt(context.Background(), tr, "/")
	require.NoError(t, err)
	require.True(t, isDir)

	// A plain file stats successfully but is not a directory.
	isDir, err = fs.directoryExistsAt(context.Background(), tr, "/var/log/app.log")
	require.NoError(t, err)
	require.False(t, isDir)
}

func TestLastModifiedTimeAtFallsBackToNowOnStatFailure(t *testing.T) {
	backing := sftpiotest.NewFS()
	tr := newFakeTransport(backing, 1)
	fs := NewFileSystem()

	mtime, err := fs.lastModifiedTimeAt(context.Background(), tr, "/missing")
	require.NoError(t, err)
	require.False(t, mtime.IsZero())
}

func TestFileSizeAtReturnsZeroOnStatFailure(t *testing.T) {
	backing := sftpiotest.NewFS()
	tr := newFakeTransport(backing, 1)
	fs := NewFileSystem()

	size, err := fs.fileSizeAt(context.Background(), tr, "/missing")
	require.NoError(t, err)
	require.Zero(t, size)
}

func TestFileSizeAtReturnsStatSize(t *testing.T) {
	backing := sftpiotest.NewFS()
	backing.Put("/data.bin", []byte("0123456789"))
	tr := newFakeTransport(backing, 1)
	fs := NewFileSystem()

	size, err := fs.fileSizeAt(context.Background(), tr, "/data.bin")
	require.NoError(t, err)
	require.EqualValues(t, 10, size)
}

func TestStatAtReturnsFileInfo(t *testing.T) {
	backing := sftpiotest.NewFS()
	backing.Put("/data.bin", []byte("abc"))
	tr := newFakeTransport(backing, 1)
	fs := NewFileSystem()

	info, err := fs.statAt(context.Background(), tr, "/data.bin")
	require.NoError(t, err)
	require.EqualValues(t, 3, info.Size)
	require.False(t, info.IsDir)
}

func TestStatAtWrapsMissingFileAsRemoteIO(t *testing.T) {
	backing := sftpiotest.NewFS()
	tr := newFakeTransport(backing, 1)
	fs := NewFileSystem()

	_, err := fs.statAt(context.Background(), tr, "/missing")
	require.Error(t, err)
	require.True(t, IsKind(err, KindRemoteIO))
}

func TestRemoveAtDeletesFile(t *testing.T) {
	backing := sftpiotest.NewFS()
	backing.Put("/data.bin", []byte("abc"))
	tr := newFakeTransport(backing, 1)
	fs := NewFileSystem()

	require.NoError(t, fs.removeAt(context.Background(), tr, "/data.bin"))
	_, ok := backing.Get("/data.bin")
	require.False(t, ok)
}

func TestRemoveAtMissingFileIsRemoteIOError(t *testing.T) {
	backing := sftpiotest.NewFS()
	tr := newFakeTransport(backing, 1)
	fs := NewFileSystem()

	err := fs.removeAt(context.Background(), tr, "/missing")
	require.Error(t, err)
	require.True(t, IsKind(err, KindRemoteIO))
}

func TestRenameAtMovesFile(t *testing.T) {
	backing := sftpiotest.NewFS()
	backing.Put("/old.bin", []byte("payload"))
	tr := newFakeTransport(backing, 1)
	fs := NewFileSystem()

	require.NoError(t, fs.renameAt(context.Background(), tr, "/old.bin", "/new.bin"))
	data, ok := backing.Get("/new.bin")
	require.True(t, ok)
	require.Equal(t, "payload", string(data))
	_, ok = backing.Get("/old.bin")
	require.False(t, ok)
}

func TestMkdirAtCreatesNestedDirectories(t *testing.T) {
	backing := sftpiotest.NewFS()
	tr := newFakeTransport(backing, 1)
	fs := NewFileSystem()

	require.NoError(t, fs.mkdirAt(context.Background(), tr, "/a/b/c"))
	isDir, err := fs.directoryExistsAt(context.Background(), tr, "/a/b/c")
	require.NoError(t, err)
	require.True(t, isDir)
}

func TestRmdirAtRemovesEmptyDirectory(t *testing.T) {
	backing := sftpiotest.NewFS()
	tr := newFakeTransport(backing, 1)
	fs := NewFileSystem()
	require.NoError(t, fs.mkdirAt(context.Background(), tr, "/empty"))

	require.NoError(t, fs.rmdirAt(context.Background(), tr, "/empty"))
	isDir, err := fs.directoryExistsAt(context.Background(), tr, "/empty")
	require.NoError(t, err)
	require.False(t, isDir)
}

func TestRmdirAtMissingDirectoryIsRemoteIOError(t *testing.T) {
	backing := sftpiotest.NewFS()
	tr := newFakeTransport(backing, 1)
	fs := NewFileSystem()

	err := fs.rmdirAt(context.Background(), tr, "/missing")
	require.Error(t, err)
	require.True(t, IsKind(err, KindRemoteIO))
}

func TestReadDirAtListsEntriesSortedByName(t *testing.T) {
	backing := sftpiotest.NewFS()
	backing.Put("/logs/b.log", []byte("b"))
	backing.Put("/logs/a.log", []byte("aa"))
	tr := newFakeTransport(backing, 1)
	fs := NewFileSystem()
	require.NoError(t, fs.mkdirAt(context.Background(), tr, "/logs"))

	entries, err := fs.readDirAt(context.Background(), tr, "/logs")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "a.log", entries[0].Name)
	require.Equal(t, "b.log", entries[1].Name)
}

func TestGlobAtMatchesPattern(t *testing.T) {
	backing := sftpiotest.NewFS()
	backing.Put("/logs/app.log", []byte("x"))
	backing.Put("/logs/app.txt", []byte("y"))
	tr := newFakeTransport(backing, 1)
	fs := NewFileSystem()
	require.NoError(t, fs.mkdirAt(context.Background(), tr, "/logs"))

	matches, err := fs.globAt(context.Background(), tr, "/logs", "*.log")
	require.NoError(t, err)
	require.Equal(t, []string{"/logs/app.log"}, matches)
}
