package writepipe

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sshvfs/sshvfs/internal/sftpio"
	"github.com/sshvfs/sshvfs/internal/sftpio/sftpiotest"
	"github.com/sshvfs/sshvfs/internal/transport"
	"github.com/sshvfs/sshvfs/pkg/sferr"
)

// fakeTransport satisfies transportProvider with a pool backed by an
// in-memory filesystem, letting the pipeline be exercised without a live
// SSH connection.
type fakeTransport struct {
	pool     *transport.Pool
	endpoint transport.Endpoint
}

func newFakeTransport(fs *sftpiotest.FS, capacity int) *fakeTransport {
	factory := func() (sftpio.Client, error) { return sftpiotest.New(fs), nil }
	return &fakeTransport{
		pool:     transport.NewPool(capacity, factory, nil),
		endpoint: transport.Endpoint{Hostname: "fake"},
	}
}

func (f *fakeTransport) Pool() *transport.Pool        { return f.pool }
func (f *fakeTransport) Endpoint() transport.Endpoint { return f.endpoint }

func TestPipelineWritesSinglePartBelowChunkSize(t *testing.T) {
	fs := sftpiotest.NewFS()
	tr := newFakeTransport(fs, 1)
	p := New(tr, "/remote/out.bin", 1024, 2, nil)

	n, err := p.Write([]byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, 11, n)
	require.NoError(t, p.Close())

	data, ok := fs.Get("/remote/out.bin")
	require.True(t, ok)
	require.Equal(t, "hello world", string(data))
}

func TestPipelineSplitsAcrossChunksInOrder(t *testing.T) {
	fs := sftpiotest.NewFS()
	tr := newFakeTransport(fs, 2)
	p := New(tr, "/remote/out.bin", 4, 2, nil)

	payload := []byte("abcdefghij") // 10 bytes, chunk size 4 -> parts of 4,4,2
	_, err := p.Write(payload)
	require.NoError(t, err)
	require.NoError(t, p.Close())

	data, ok := fs.Get("/remote/out.bin")
	require.True(t, ok)
	require.Equal(t, string(payload), string(data))
}

func TestPipelineCreatesParentDirectory(t *testing.T) {
	fs := sftpiotest.NewFS()
	tr := newFakeTransport(fs, 1)
	p := New(tr, "/a/b/c/out.bin", 1024, 1, nil)

	_, err := p.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, p.Close())

	data, ok := fs.Get("/a/b/c/out.bin")
	require.True(t, ok)
	require.Equal(t, "x", string(data))
}

func TestPipelineSingleFailedPartSurfacesDirectlyAsRemoteIO(t *testing.T) {
	fs := sftpiotest.NewFS()
	calls := 0
	fs.WriteHook = func(path string, p []byte) (int, error) {
		calls++
		if calls == 1 {
			return 0, sferr.New(sferr.KindRemoteIO, "injected failure")
		}
		return len(p), nil
	}
	tr := newFakeTransport(fs, 1)
	p := New(tr, "/remote/out.bin", 4, 1, nil)

	_, _ = p.Write([]byte("aaaa"))
	err := p.Close()
	require.Error(t, err)
	require.True(t, sferr.Is(err, sferr.KindRemoteIO))
	require.False(t, sferr.Is(err, sferr.KindUploadAggregated))
	require.Contains(t, err.Error(), "part 0")
}

func TestPipelineMultipleFailedPartsAggregate(t *testing.T) {
	fs := sftpiotest.NewFS()
	calls := 0
	fs.WriteHook = func(path string, p []byte) (int, error) {
		calls++
		if calls == 1 || calls == 2 {
			return 0, sferr.New(sferr.KindRemoteIO, "injected failure")
		}
		return len(p), nil
	}
	tr := newFakeTransport(fs, 1)
	// maxInFlight 2 lets both failing parts dispatch before the producer
	// observes the first failure, so both land in allErrs.
	p := New(tr, "/remote/out.bin", 4, 2, nil)

	_, _ = p.Write([]byte("aaaabbbbcccc"))
	err := p.Close()
	require.Error(t, err)
	require.True(t, sferr.Is(err, sferr.KindUploadAggregated))
}

func TestPipelineProgressReflectsUploadedPlusBuffered(t *testing.T) {
	fs := sftpiotest.NewFS()
	tr := newFakeTransport(fs, 1)
	p := New(tr, "/remote/out.bin", 8, 1, nil)

	_, err := p.Write([]byte("abcdefgh")) // exactly one chunk, dispatched
	require.NoError(t, err)
	_, err = p.Write([]byte("xyz")) // buffered, not yet dispatched
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.EqualValues(t, 11, p.Progress())
}

func TestPipelineWithOneInFlightPartCommitsAllPartsInOrder(t *testing.T) {
	fs := sftpiotest.NewFS()
	tr := newFakeTransport(fs, 1) // pool capacity 1 forces serialized commits
	p := New(tr, "/remote/out.bin", 2, 1, nil)

	_, err := p.Write([]byte("aabbccdd"))
	require.NoError(t, err)
	require.NoError(t, p.Close())

	data, _ := fs.Get("/remote/out.bin")
	require.Equal(t, "aabbccdd", string(data))
}
