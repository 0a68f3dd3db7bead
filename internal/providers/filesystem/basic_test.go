package filesystem

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qiuzhanghua/fs-proxy/internal/shared/fserr"
	"github.com/qiuzhanghua/fs-proxy/internal/shared/paths"
	"github.com/qiuzhanghua/fs-proxy/internal/shared/types"
)

func newTestExecutor(t *testing.T, opts Options) (*Executor, string) {
	t.Helper()
	sb, root := newTestSandbox(t)
	return NewExecutor(sb, opts, nil), root
}

func resolve(t *testing.T, e *Executor, rel string) ResolvedPath {
	t.Helper()
	p, err := e.Sandbox().Resolve(rel)
	require.NoError(t, err)
	return p
}

func readAll(t *testing.T, e *Executor, rel string, rng *types.ByteRange) (string, *FileReader) {
	t.Helper()
	r, err := e.Read(context.Background(), resolve(t, e, rel), rng)
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(data), r
}

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()
	err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		assert.False(t, paths.IsTempName(d.Name()), "leftover temp file %s", p)
		return nil
	})
	require.NoError(t, err)
}

func TestWriteReadRoundTrip(t *testing.T) {
	e, root := newTestExecutor(t, Options{})
	ctx := context.Background()

	res, err := e.Write(ctx, resolve(t, e, "notes/a.txt"), strings.NewReader("hello"), types.CreateOrTruncate)
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.Bytes)
	assert.True(t, res.Created)

	data, r := readAll(t, e, "notes/a.txt", nil)
	assert.Equal(t, "hello", data)
	assert.Equal(t, int64(5), r.Size)
	assert.False(t, r.Partial)
	assert.True(t, strings.HasPrefix(r.ContentType, "text/plain"))

	res, err = e.Write(ctx, resolve(t, e, "notes/a.txt"), strings.NewReader("hi"), types.CreateOrTruncate)
	require.NoError(t, err)
	assert.False(t, res.Created)

	data, _ = readAll(t, e, "notes/a.txt", nil)
	assert.Equal(t, "hi", data)
	assertNoTempFiles(t, root)
}

func TestWriteEmptyBody(t *testing.T) {
	e, root := newTestExecutor(t, Options{})

	res, err := e.Write(context.Background(), resolve(t, e, "empty"), strings.NewReader(""), types.CreateOrTruncate)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Bytes)

	info, err := os.Stat(filepath.Join(root, "empty"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Size())
}

func TestWriteCreateOnly(t *testing.T) {
	e, root := newTestExecutor(t, Options{})
	ctx := context.Background()
	p := resolve(t, e, "once.txt")

	res, err := e.Write(ctx, p, strings.NewReader("first"), types.CreateOnly)
	require.NoError(t, err)
	assert.True(t, res.Created)

	_, err = e.Write(ctx, p, strings.NewReader("second"), types.CreateOnly)
	assert.True(t, errors.Is(err, fserr.ErrAlreadyExists), "got %v", err)

	data, _ := readAll(t, e, "once.txt", nil)
	assert.Equal(t, "first", data)
	assertNoTempFiles(t, root)
}

func TestWriteErrors(t *testing.T) {
	e, root := newTestExecutor(t, Options{})
	ctx := context.Background()
	require.NoError(t, os.Mkdir(filepath.Join(root, "dir"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "file"), []byte("x"), 0o644))

	_, err := e.Write(ctx, resolve(t, e, "dir"), strings.NewReader("x"), types.CreateOrTruncate)
	assert.True(t, errors.Is(err, fserr.ErrIsADirectory), "got %v", err)

	_, err = e.Write(ctx, resolve(t, e, "."), strings.NewReader("x"), types.CreateOrTruncate)
	assert.True(t, errors.Is(err, fserr.ErrIsADirectory), "got %v", err)

	_, err = e.Write(ctx, resolve(t, e, "file/child"), strings.NewReader("x"), types.CreateOrTruncate)
	assert.Error(t, err)

	for _, rel := range []string{"file/", "new.txt/"} {
		_, err = e.Write(ctx, resolve(t, e, rel), strings.NewReader("x"), types.CreateOrTruncate)
		assert.True(t, errors.Is(err, fserr.ErrIsADirectory), "%s: got %v", rel, err)
	}
	assert.NoFileExists(t, filepath.Join(root, "new.txt"))

	data, err := os.ReadFile(filepath.Join(root, "file"))
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}

func TestWriteTooLarge(t *testing.T) {
	e, root := newTestExecutor(t, Options{MaxWriteBytes: 4, BufferSize: 2})

	_, err := e.Write(context.Background(), resolve(t, e, "big"), strings.NewReader("0123456789"), types.CreateOrTruncate)
	assert.True(t, errors.Is(err, fserr.ErrTooLarge), "got %v", err)

	_, err = os.Stat(filepath.Join(root, "big"))
	assert.True(t, os.IsNotExist(err))
	assertNoTempFiles(t, root)
}

type failingReader struct {
	data []byte
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestWriteBodyFailureLeavesTargetUntouched(t *testing.T) {
	e, root := newTestExecutor(t, Options{})
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("original"), 0o644))

	body := &failingReader{data: []byte("partial"), err: io.ErrUnexpectedEOF}
	_, err := e.Write(context.Background(), resolve(t, e, "a.txt"), body, types.CreateOrTruncate)
	assert.True(t, errors.Is(err, fserr.ErrCanceled), "got %v", err)

	data, _ := readAll(t, e, "a.txt", nil)
	assert.Equal(t, "original", data)
	assertNoTempFiles(t, root)
}

// cancelingReader cancels the write context after the first chunk
type cancelingReader struct {
	cancel context.CancelFunc
	sent   bool
}

func (r *cancelingReader) Read(p []byte) (int, error) {
	if r.sent {
		return copy(p, "more"), nil
	}
	r.sent = true
	r.cancel()
	return copy(p, "first"), nil
}

func TestWriteCanceled(t *testing.T) {
	e, root := newTestExecutor(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := e.Write(ctx, resolve(t, e, "c.txt"), &cancelingReader{cancel: cancel}, types.CreateOrTruncate)
	assert.True(t, errors.Is(err, fserr.ErrCanceled), "got %v", err)

	_, err = os.Stat(filepath.Join(root, "c.txt"))
	assert.True(t, os.IsNotExist(err))
	assertNoTempFiles(t, root)
}

func TestReadErrors(t *testing.T) {
	e, root := newTestExecutor(t, Options{})
	ctx := context.Background()
	require.NoError(t, os.Mkdir(filepath.Join(root, "dir"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "real.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Symlink(filepath.Join(root, "real.txt"), filepath.Join(root, "link.txt")))

	_, err := e.Read(ctx, resolve(t, e, "missing.txt"), nil)
	assert.True(t, errors.Is(err, fserr.ErrNotFound), "got %v", err)

	_, err = e.Read(ctx, resolve(t, e, "dir"), nil)
	assert.True(t, errors.Is(err, fserr.ErrIsADirectory), "got %v", err)

	// nothing can exist below a regular file
	_, err = e.Read(ctx, resolve(t, e, "real.txt/child"), nil)
	assert.True(t, errors.Is(err, fserr.ErrNotFound), "got %v", err)

	_, err = e.Read(ctx, resolve(t, e, "real.txt/"), nil)
	assert.True(t, errors.Is(err, fserr.ErrNotFound), "got %v", err)

	// a symlink planted after resolution is still refused
	_, err = e.Read(ctx, ResolvedPath{Rel: "link.txt", Abs: filepath.Join(root, "link.txt")}, nil)
	assert.True(t, errors.Is(err, fserr.ErrPathTraversal), "got %v", err)
}

func TestReadRange(t *testing.T) {
	e, root := newTestExecutor(t, Options{})
	require.NoError(t, os.WriteFile(filepath.Join(root, "abc"), []byte("abcdefghij"), 0o644))

	tests := []struct {
		name   string
		rng    types.ByteRange
		want   string
		offset int64
	}{
		{"closed", types.ByteRange{Start: 2, End: 4}, "cde", 2},
		{"open ended", types.ByteRange{Start: 7, End: -1}, "hij", 7},
		{"end past eof", types.ByteRange{Start: 8, End: 100}, "ij", 8},
		{"suffix", types.ByteRange{Start: -1, End: 3}, "hij", 7},
		{"suffix larger than file", types.ByteRange{Start: -1, End: 50}, "abcdefghij", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rng := tt.rng
			data, r := readAll(t, e, "abc", &rng)
			assert.Equal(t, tt.want, data)
			assert.True(t, r.Partial)
			assert.Equal(t, tt.offset, r.Offset)
			assert.Equal(t, int64(len(tt.want)), r.Length)
			assert.Equal(t, int64(10), r.Size)
		})
	}

	for _, rng := range []types.ByteRange{{Start: 10, End: -1}, {Start: 5, End: 3}, {Start: -1, End: 0}} {
		_, err := e.Read(context.Background(), resolve(t, e, "abc"), &rng)
		assert.True(t, errors.Is(err, fserr.ErrInvalidRange), "range %+v: got %v", rng, err)
	}
}

func TestConcurrentWritesAreAtomic(t *testing.T) {
	e, root := newTestExecutor(t, Options{BufferSize: 512})
	ctx := context.Background()
	p := resolve(t, e, "shared.bin")

	payloads := make([][]byte, 8)
	for i := range payloads {
		payloads[i] = bytes.Repeat([]byte{byte('a' + i)}, 64*1024)
	}

	var wg sync.WaitGroup
	for _, payload := range payloads {
		wg.Add(1)
		go func(b []byte) {
			defer wg.Done()
			_, err := e.Write(ctx, p, bytes.NewReader(b), types.CreateOrTruncate)
			assert.NoError(t, err)
		}(payload)
	}

	// readers only ever see a complete payload
	for i := 0; i < 20; i++ {
		r, err := e.Read(ctx, p, nil)
		if errors.Is(err, fserr.ErrNotFound) {
			continue
		}
		require.NoError(t, err)
		data, err := io.ReadAll(r)
		r.Close()
		require.NoError(t, err)
		assert.Contains(t, payloads, data)
	}
	wg.Wait()

	data, err := os.ReadFile(filepath.Join(root, "shared.bin"))
	require.NoError(t, err)
	assert.Contains(t, payloads, data)
	assertNoTempFiles(t, root)
}

func TestStat(t *testing.T) {
	e, root := newTestExecutor(t, Options{})
	ctx := context.Background()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "d"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "d", "f"), []byte("12345"), 0o644))

	info, err := e.Stat(ctx, resolve(t, e, "d/f"))
	require.NoError(t, err)
	assert.Equal(t, "f", info.Name)
	assert.Equal(t, "d/f", info.Path)
	assert.Equal(t, int64(5), info.Size)
	assert.False(t, info.IsDir)

	info, err = e.Stat(ctx, resolve(t, e, "d"))
	require.NoError(t, err)
	assert.True(t, info.IsDir)

	info, err = e.Stat(ctx, resolve(t, e, "d/"))
	require.NoError(t, err)
	assert.True(t, info.IsDir)

	for _, rel := range []string{"nope", "d/f/x", "d/f/"} {
		_, err = e.Stat(ctx, resolve(t, e, rel))
		assert.True(t, errors.Is(err, fserr.ErrNotFound), "%s: got %v", rel, err)
	}
}

func TestPoolRespectsContext(t *testing.T) {
	pool := NewPool(1)
	assert.Equal(t, 1, pool.Size())
	assert.Equal(t, DefaultIOWorkers, NewPool(0).Size())

	release := make(chan struct{})
	started := make(chan struct{})
	go pool.Do(context.Background(), func() error {
		close(started)
		<-release
		return nil
	})
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := pool.Do(ctx, func() error { return nil })
	assert.True(t, errors.Is(err, fserr.ErrCanceled), "got %v", err)

	close(release)
}
