package sftpio

import (
	"os"

	pkgsftp "github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// clientWrapper adapts *sftp.Client to Client.
type clientWrapper struct {
	client *pkgsftp.Client
}

// NewSessionFactory returns a factory that opens a fresh SFTP sub-session
// over conn each time it is called. The pool calls it once per member at
// init time; each member owns an independent *sftp.Client and therefore an
// independent SSH channel, so members can service concurrent borrowers.
func NewSessionFactory(conn *ssh.Client, maxPacket int) func() (Client, error) {
	return func() (Client, error) {
		c, err := pkgsftp.NewClient(conn, pkgsftp.MaxPacket(maxPacket))
		if err != nil {
			return nil, err
		}
		return &clientWrapper{client: c}, nil
	}
}

func (w *clientWrapper) Open(path string) (File, error) {
	f, err := w.client.Open(path)
	if err != nil {
		return nil, err
	}
	return &fileAdapter{file: f}, nil
}

func (w *clientWrapper) OpenFile(path string, flag int) (File, error) {
	f, err := w.client.OpenFile(path, flag)
	if err != nil {
		return nil, err
	}
	return &fileAdapter{file: f}, nil
}

func (w *clientWrapper) Stat(path string) (os.FileInfo, error) { return w.client.Stat(path) }
func (w *clientWrapper) ReadDir(path string) ([]os.FileInfo, error) {
	return w.client.ReadDir(path)
}
func (w *clientWrapper) MkdirAll(path string) error             { return w.client.MkdirAll(path) }
func (w *clientWrapper) Remove(path string) error               { return w.client.Remove(path) }
func (w *clientWrapper) RemoveDirectory(path string) error      { return w.client.RemoveDirectory(path) }
func (w *clientWrapper) Rename(oldpath, newpath string) error   { return w.client.Rename(oldpath, newpath) }
func (w *clientWrapper) Truncate(path string, size int64) error { return w.client.Truncate(path, size) }
func (w *clientWrapper) RealPath(path string) (string, error)   { return w.client.RealPath(path) }
func (w *clientWrapper) Close() error                           { return w.client.Close() }

// PosixRename uses the posix-rename@openssh.com extension for atomic
// overwrite semantics, falling back to plain Rename when the server does
// not advertise the extension.
func (w *clientWrapper) PosixRename(oldpath, newpath string) error {
	if err := w.client.PosixRename(oldpath, newpath); err != nil {
		if err == pkgsftp.ErrSSHFxOpUnsupported {
			return w.client.Rename(oldpath, newpath)
		}
		return err
	}
	return nil
}

// fileAdapter adapts *sftp.File to File.
type fileAdapter struct {
	file *pkgsftp.File
}

func (f *fileAdapter) Read(p []byte) (int, error)              { return f.file.Read(p) }
func (f *fileAdapter) Write(p []byte) (int, error)             { return f.file.Write(p) }
func (f *fileAdapter) WriteAt(p []byte, off int64) (int, error) { return f.file.WriteAt(p, off) }
func (f *fileAdapter) Seek(offset int64, whence int) (int64, error) {
	return f.file.Seek(offset, whence)
}
func (f *fileAdapter) Close() error { return f.file.Close() }
