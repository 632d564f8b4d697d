// Package sftpiotest provides an in-memory fake of sftpio.Client, modeled
// on the stub SFTP client used by shellcn's channel service tests. It lets
// the pool, write pipeline and read path be exercised deterministically
// without a live SSH server.
package sftpiotest

import (
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sshvfs/sshvfs/internal/sftpio"
)

// ErrNotExist mirrors the not-found condition a real SFTP server reports.
var ErrNotExist = os.ErrNotExist

// FS is a shared in-memory remote filesystem. Multiple FakeClient values
// backed by the same FS simulate independent pool members touching the
// same remote host, the way independent *sftp.Client sub-sessions share
// one server-side filesystem.
type FS struct {
	mu    sync.Mutex
	files map[string][]byte
	dirs  map[string]bool

	// FailOpen, when set, is returned by OpenFile/Open for any path.
	FailOpen error
	// WriteHook is invoked before every Write, letting tests inject
	// latency or errors on specific calls (used to exercise stalled
	// writes and partial writes).
	WriteHook func(path string, p []byte) (int, error)
}

func NewFS() *FS {
	return &FS{files: make(map[string][]byte), dirs: map[string]bool{"/": true}}
}

func (fs *FS) Get(path string) ([]byte, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	b, ok := fs.files[path]
	return append([]byte(nil), b...), ok
}

func (fs *FS) Put(path string, data []byte) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.files[path] = append([]byte(nil), data...)
}

func dirOf(path string) string {
	i := strings.LastIndex(path, "/")
	if i <= 0 {
		return "/"
	}
	return path[:i]
}

// FakeClient is a Client backed by an FS.
type FakeClient struct {
	FS     *FS
	closed bool

	// StatDelay simulates slow remote calls for pool contention tests.
	StatDelay time.Duration
}

func New(fs *FS) *FakeClient { return &FakeClient{FS: fs} }

func (c *FakeClient) Open(path string) (sftpio.File, error) {
	return c.OpenFile(path, os.O_RDONLY)
}

func (c *FakeClient) OpenFile(path string, flag int) (sftpio.File, error) {
	if c.FS.FailOpen != nil {
		return nil, c.FS.FailOpen
	}
	c.FS.mu.Lock()
	defer c.FS.mu.Unlock()

	if flag&os.O_CREATE != 0 {
		if !c.FS.dirs[dirOf(path)] {
			return nil, &os.PathError{Op: "open", Path: path, Err: errors.New("no such directory")}
		}
		if flag&os.O_TRUNC != 0 {
			c.FS.files[path] = nil
		}
	}
	if flag&os.O_RDONLY == os.O_RDONLY || flag == os.O_RDONLY {
		if _, ok := c.FS.files[path]; !ok {
			return nil, &os.PathError{Op: "open", Path: path, Err: ErrNotExist}
		}
	}
	return &fakeFile{client: c, path: path, appendMode: flag&os.O_APPEND != 0}, nil
}

func (c *FakeClient) Stat(path string) (os.FileInfo, error) {
	if c.StatDelay > 0 {
		time.Sleep(c.StatDelay)
	}
	c.FS.mu.Lock()
	defer c.FS.mu.Unlock()
	if b, ok := c.FS.files[path]; ok {
		return fakeInfo{name: path, size: int64(len(b))}, nil
	}
	if c.FS.dirs[path] {
		return fakeInfo{name: path, isDir: true}, nil
	}
	return nil, &os.PathError{Op: "stat", Path: path, Err: ErrNotExist}
}

func (c *FakeClient) ReadDir(dir string) ([]os.FileInfo, error) {
	c.FS.mu.Lock()
	defer c.FS.mu.Unlock()
	if !c.FS.dirs[dir] {
		return nil, &os.PathError{Op: "readdir", Path: dir, Err: ErrNotExist}
	}
	prefix := dir
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	seen := map[string]bool{}
	var infos []os.FileInfo
	for p, b := range c.FS.files {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := p[len(prefix):]
		if strings.Contains(rest, "/") {
			continue
		}
		if seen[rest] {
			continue
		}
		seen[rest] = true
		infos = append(infos, fakeInfo{name: rest, size: int64(len(b))})
	}
	for p := range c.FS.dirs {
		if p == dir || !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := p[len(prefix):]
		if strings.Contains(rest, "/") {
			continue
		}
		if seen[rest] {
			continue
		}
		seen[rest] = true
		infos = append(infos, fakeInfo{name: rest, isDir: true})
	}
	return infos, nil
}

func (c *FakeClient) MkdirAll(path string) error {
	c.FS.mu.Lock()
	defer c.FS.mu.Unlock()
	for p := "/"; ; {
		idx := strings.Index(strings.TrimPrefix(path[len(p):], "/"), "/")
		if p != "/" {
			c.FS.dirs[p] = true
		}
		if idx < 0 {
			c.FS.dirs[path] = true
			return nil
		}
		p = path[:len(p)+idx+1]
	}
}

func (c *FakeClient) Remove(path string) error {
	c.FS.mu.Lock()
	defer c.FS.mu.Unlock()
	if _, ok := c.FS.files[path]; !ok {
		return &os.PathError{Op: "remove", Path: path, Err: ErrNotExist}
	}
	delete(c.FS.files, path)
	return nil
}

func (c *FakeClient) RemoveDirectory(path string) error {
	c.FS.mu.Lock()
	defer c.FS.mu.Unlock()
	if !c.FS.dirs[path] {
		return &os.PathError{Op: "rmdir", Path: path, Err: ErrNotExist}
	}
	delete(c.FS.dirs, path)
	return nil
}

func (c *FakeClient) Rename(oldpath, newpath string) error {
	c.FS.mu.Lock()
	defer c.FS.mu.Unlock()
	if _, ok := c.FS.files[newpath]; ok {
		return errors.New("destination exists")
	}
	b, ok := c.FS.files[oldpath]
	if !ok {
		return &os.PathError{Op: "rename", Path: oldpath, Err: ErrNotExist}
	}
	c.FS.files[newpath] = b
	delete(c.FS.files, oldpath)
	return nil
}

func (c *FakeClient) PosixRename(oldpath, newpath string) error {
	c.FS.mu.Lock()
	defer c.FS.mu.Unlock()
	b, ok := c.FS.files[oldpath]
	if !ok {
		return &os.PathError{Op: "rename", Path: oldpath, Err: ErrNotExist}
	}
	c.FS.files[newpath] = b
	delete(c.FS.files, oldpath)
	return nil
}

func (c *FakeClient) Truncate(path string, size int64) error {
	c.FS.mu.Lock()
	defer c.FS.mu.Unlock()
	b, ok := c.FS.files[path]
	if !ok {
		return &os.PathError{Op: "truncate", Path: path, Err: ErrNotExist}
	}
	if int64(len(b)) >= size {
		c.FS.files[path] = b[:size]
	} else {
		c.FS.files[path] = append(b, make([]byte, size-int64(len(b)))...)
	}
	return nil
}

func (c *FakeClient) RealPath(path string) (string, error) { return path, nil }

func (c *FakeClient) Close() error {
	c.closed = true
	return nil
}

type fakeFile struct {
	client     *FakeClient
	path       string
	pos        int64
	appendMode bool
}

func (f *fakeFile) Read(p []byte) (int, error) {
	f.client.FS.mu.Lock()
	b := f.client.FS.files[f.path]
	f.client.FS.mu.Unlock()
	if f.pos >= int64(len(b)) {
		return 0, io.EOF
	}
	n := copy(p, b[f.pos:])
	f.pos += int64(n)
	return n, nil
}

func (f *fakeFile) Write(p []byte) (int, error) {
	if f.client.FS.WriteHook != nil {
		if n, err := f.client.FS.WriteHook(f.path, p); err != nil || n != len(p) {
			return n, err
		}
	}
	return f.WriteAt(p, -1)
}

func (f *fakeFile) WriteAt(p []byte, off int64) (int, error) {
	f.client.FS.mu.Lock()
	defer f.client.FS.mu.Unlock()
	b := f.client.FS.files[f.path]
	target := off
	if off < 0 {
		if f.appendMode {
			target = int64(len(b))
		} else {
			target = f.pos
		}
	}
	if target > int64(len(b)) {
		b = append(b, make([]byte, target-int64(len(b)))...)
	}
	end := target + int64(len(p))
	if end > int64(len(b)) {
		b = append(b, make([]byte, end-int64(len(b)))...)
	}
	copy(b[target:end], p)
	f.client.FS.files[f.path] = b
	if off < 0 {
		f.pos = end
	}
	return len(p), nil
}

func (f *fakeFile) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		f.pos = offset
	case io.SeekCurrent:
		f.pos += offset
	case io.SeekEnd:
		f.client.FS.mu.Lock()
		f.pos = int64(len(f.client.FS.files[f.path])) + offset
		f.client.FS.mu.Unlock()
	}
	return f.pos, nil
}

func (f *fakeFile) Close() error { return nil }

type fakeInfo struct {
	name  string
	size  int64
	isDir bool
}

func (i fakeInfo) Name() string       { return i.name }
func (i fakeInfo) Size() int64        { return i.size }
func (i fakeInfo) Mode() os.FileMode  { return 0 }
func (i fakeInfo) ModTime() time.Time { return time.Time{} }
func (i fakeInfo) IsDir() bool        { return i.isDir }
func (i fakeInfo) Sys() any           { return nil }
