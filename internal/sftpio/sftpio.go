// Package sftpio defines the narrow SFTP surface the rest of sshvfs depends
// on. Production code satisfies it with a thin wrapper around
// github.com/pkg/sftp; tests satisfy it with an in-memory fake so the
// session pool, write pipeline and read path can be exercised without a
// live SSH server.
package sftpio

import (
	"io"
	"os"
)

// File is the subset of *sftp.File that the rest of the module needs.
type File interface {
	io.Reader
	io.Writer
	io.Closer
	io.Seeker
	io.WriterAt
}

// Client is the subset of *sftp.Client the transport and write/read
// pipelines drive. A pool member is one Client, backed by one SFTP
// sub-session on a shared SSH connection.
type Client interface {
	Open(path string) (File, error)
	OpenFile(path string, flag int) (File, error)
	Stat(path string) (os.FileInfo, error)
	ReadDir(path string) ([]os.FileInfo, error)
	MkdirAll(path string) error
	Remove(path string) error
	RemoveDirectory(path string) error
	Rename(oldpath, newpath string) error
	PosixRename(oldpath, newpath string) error
	Truncate(path string, size int64) error
	RealPath(path string) (string, error)
	Close() error
}
