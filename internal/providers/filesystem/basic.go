package filesystem

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"syscall"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/qiuzhanghua/fs-proxy/internal/shared/fserr"
	"github.com/qiuzhanghua/fs-proxy/internal/shared/paths"
	"github.com/qiuzhanghua/fs-proxy/internal/shared/types"
)

// sniffLen is how much of a file is inspected for its content type
const sniffLen = 3072

// Read opens a file for streaming. The caller must Close the reader.
func (e *Executor) Read(ctx context.Context, p ResolvedPath, rng *types.ByteRange) (*FileReader, error) {
	const op = "read"

	var (
		f    *os.File
		info fs.FileInfo
	)
	err := e.pool.Do(ctx, func() error {
		var err error
		f, info, err = e.openVerified(p.Rel)
		return err
	})
	if err != nil {
		return nil, lookupError(op, p.Rel, err)
	}

	if p.Dir && !info.IsDir() {
		f.Close()
		return nil, fserr.Newf(fserr.KindNotFound, op, p.Rel, "not a directory")
	}
	if info.IsDir() {
		f.Close()
		return nil, fserr.Newf(fserr.KindIsADirectory, op, p.Rel, "path is a directory")
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, fserr.Newf(fserr.KindIOError, op, p.Rel, "not a regular file")
	}

	offset, length, partial, err := resolveRange(rng, info.Size())
	if err != nil {
		f.Close()
		return nil, fserr.New(fserr.KindInvalidRange, op, p.Rel, err)
	}

	contentType := "application/octet-stream"
	_ = e.pool.Do(ctx, func() error {
		contentType = sniff(f, info.Size())
		return nil
	})

	return &FileReader{
		Reader:      &pooledReader{ctx: ctx, pool: e.pool, r: io.NewSectionReader(f, offset, length)},
		closer:      f,
		Size:        info.Size(),
		Offset:      offset,
		Length:      length,
		Partial:     partial,
		ModTime:     info.ModTime(),
		ContentType: contentType,
	}, nil
}

// Stat returns information about a file or directory. Regular files also
// get a sniffed content type.
func (e *Executor) Stat(ctx context.Context, p ResolvedPath) (FileInfo, error) {
	const op = "stat"

	var info fs.FileInfo
	err := e.pool.Do(ctx, func() error {
		var err error
		info, err = e.sandbox.fsys.Lstat(p.Rel)
		return err
	})
	if err != nil {
		return FileInfo{}, lookupError(op, p.Rel, err)
	}
	if info.Mode()&fs.ModeSymlink != 0 {
		return FileInfo{}, fserr.Newf(fserr.KindPathTraversal, op, p.Rel, "symbolic link")
	}
	if p.Dir && !info.IsDir() {
		return FileInfo{}, fserr.Newf(fserr.KindNotFound, op, p.Rel, "not a directory")
	}

	fi := FileInfo{
		Name:     p.Base(),
		Path:     p.Rel,
		Size:     info.Size(),
		IsDir:    info.IsDir(),
		Modified: info.ModTime(),
	}
	if info.Mode().IsRegular() {
		fi.ContentType = "application/octet-stream"
		_ = e.pool.Do(ctx, func() error {
			f, vinfo, err := e.openVerified(p.Rel)
			if err != nil {
				return err
			}
			defer f.Close()
			fi.ContentType = sniff(f, vinfo.Size())
			return nil
		})
	}
	return fi, nil
}

// Write streams body into a temporary sibling of p and commits it atomically.
// Readers of p never observe a partially written file. Missing parent
// directories are created.
func (e *Executor) Write(ctx context.Context, p ResolvedPath, body io.Reader, mode types.WriteMode) (WriteResult, error) {
	const op = "write"

	if p.IsRoot() {
		return WriteResult{}, fserr.Newf(fserr.KindIsADirectory, op, p.Rel, "cannot write to the sandbox root")
	}
	if p.Dir {
		return WriteResult{}, fserr.Newf(fserr.KindIsADirectory, op, p.Rel, "path with trailing slash names a directory")
	}

	root := e.sandbox.fsys
	var created bool
	err := e.pool.Do(ctx, func() error {
		if parent := p.Parent(); parent != RootRel {
			if err := root.MkdirAll(parent, 0o755); err != nil {
				return err
			}
		}

		info, err := root.Lstat(p.Rel)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			created = true
			return nil
		case err != nil:
			return err
		case info.Mode()&fs.ModeSymlink != 0:
			return fserr.Newf(fserr.KindPathTraversal, op, p.Rel, "symbolic link")
		case info.IsDir():
			return fserr.Newf(fserr.KindIsADirectory, op, p.Rel, "path is a directory")
		case mode == types.CreateOnly:
			return fserr.Newf(fserr.KindAlreadyExists, op, p.Rel, "target exists")
		}
		return nil
	})
	if err != nil {
		return WriteResult{}, fserr.FromOS(op, p.Rel, err)
	}

	tmp, err := e.createTemp(ctx, p)
	if err != nil {
		return WriteResult{}, fserr.FromOS(op, p.Rel, err)
	}
	defer tmp.cleanup(e.logger)

	n, err := e.copyIn(ctx, tmp.f, body, p.Rel)
	if err != nil {
		return WriteResult{Bytes: n}, err
	}

	if err := e.pool.Do(ctx, func() error { return e.commit(tmp, p, mode) }); err != nil {
		return WriteResult{Bytes: n}, fserr.FromOS(op, p.Rel, err)
	}

	e.syncDir(ctx, p.Parent())
	return WriteResult{Bytes: n, Created: created}, nil
}

// lookupError classifies a failed lookup. A path that runs through a regular
// file cannot exist, so ENOTDIR is reported as not found.
func lookupError(op, rel string, err error) error {
	if errors.Is(err, syscall.ENOTDIR) && fserr.KindOf(err) != fserr.KindPathTraversal {
		return fserr.New(fserr.KindNotFound, op, rel, err)
	}
	return fserr.FromOS(op, rel, err)
}

// openVerified opens rel through the root and confirms that the opened file is
// still the object at rel and that no symlink is involved.
func (e *Executor) openVerified(rel string) (*os.File, fs.FileInfo, error) {
	f, err := e.sandbox.fsys.Open(rel)
	if err != nil {
		return nil, nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}

	linfo, err := e.sandbox.fsys.Lstat(rel)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	if linfo.Mode()&fs.ModeSymlink != 0 || !os.SameFile(info, linfo) {
		f.Close()
		return nil, nil, fserr.Newf(fserr.KindPathTraversal, "open", rel, "path changed during open")
	}
	if err := e.sandbox.checkParentChain(rel); err != nil {
		f.Close()
		return nil, nil, fserr.New(fserr.KindPathTraversal, "open", rel, err)
	}

	return f, info, nil
}

// tempFile is an upload in progress. cleanup removes it unless committed.
type tempFile struct {
	root      *os.Root
	name      string
	f         *os.File
	closed    bool
	committed bool
}

func (e *Executor) createTemp(ctx context.Context, p ResolvedPath) (*tempFile, error) {
	name := path.Join(p.Parent(), paths.TempPrefix+uuid.NewString())

	var f *os.File
	err := e.pool.Do(ctx, func() error {
		var err error
		f, err = e.sandbox.fsys.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &tempFile{root: e.sandbox.fsys, name: name, f: f}, nil
}

func (t *tempFile) close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	return t.f.Close()
}

func (t *tempFile) cleanup(logger *zap.Logger) {
	t.close()
	if t.committed {
		return
	}
	if err := t.root.Remove(t.name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("Failed to remove temporary upload", zap.String("path", t.name), zap.Error(err))
	}
}

// copyIn streams src into dst chunk by chunk, checking ctx between chunks
func (e *Executor) copyIn(ctx context.Context, dst *os.File, src io.Reader, rel string) (int64, error) {
	const op = "write"

	buf := make([]byte, e.bufSize)
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, fserr.New(fserr.KindCanceled, op, rel, err)
		}

		n, rerr := src.Read(buf)
		if n > 0 {
			if e.maxWrite > 0 && total+int64(n) > e.maxWrite {
				return total, fserr.Newf(fserr.KindTooLarge, op, rel, "upload exceeds %d bytes", e.maxWrite)
			}
			chunk := buf[:n]
			werr := e.pool.Do(ctx, func() error {
				_, err := dst.Write(chunk)
				return err
			})
			if werr != nil {
				return total, fserr.FromOS(op, rel, werr)
			}
			total += int64(n)
		}

		if rerr == io.EOF {
			return total, nil
		}
		if rerr != nil {
			// The body is the client's side of the connection
			return total, fserr.New(fserr.KindCanceled, op, rel, rerr)
		}
	}
}

// commit makes the temp file visible at p. Must run inside a pool slot.
func (e *Executor) commit(tmp *tempFile, p ResolvedPath, mode types.WriteMode) error {
	if err := tmp.f.Sync(); err != nil {
		return err
	}
	if err := tmp.close(); err != nil {
		return err
	}
	if err := e.sandbox.checkParentChain(p.Rel); err != nil {
		return fserr.New(fserr.KindPathTraversal, "write", p.Rel, err)
	}

	switch mode {
	case types.CreateOnly:
		// Link fails if the target appeared meanwhile; rename would clobber it
		if err := tmp.root.Link(tmp.name, p.Rel); err != nil {
			return err
		}
		if err := tmp.root.Remove(tmp.name); err != nil {
			e.logger.Warn("Failed to remove linked upload", zap.String("path", tmp.name), zap.Error(err))
		}
	default:
		if err := tmp.root.Rename(tmp.name, p.Rel); err != nil {
			return err
		}
	}

	tmp.committed = true
	return nil
}

// syncDir flushes a directory entry update; failures are only logged
func (e *Executor) syncDir(ctx context.Context, rel string) {
	_ = e.pool.Do(ctx, func() error {
		d, err := e.sandbox.fsys.Open(rel)
		if err != nil {
			return err
		}
		defer d.Close()
		if err := d.Sync(); err != nil {
			e.logger.Debug("Directory sync failed", zap.String("path", rel), zap.Error(err))
		}
		return nil
	})
}

// resolveRange converts an optional range into offset and length
func resolveRange(rng *types.ByteRange, size int64) (offset, length int64, partial bool, err error) {
	if rng == nil {
		return 0, size, false, nil
	}

	if rng.Start < 0 {
		// suffix range: last End bytes
		n := rng.End
		if n <= 0 || size == 0 {
			return 0, 0, false, errors.New("empty suffix range")
		}
		if n > size {
			n = size
		}
		return size - n, n, true, nil
	}

	if rng.Start >= size {
		return 0, 0, false, errors.New("range start beyond end of file")
	}
	end := rng.End
	if end < 0 || end >= size {
		end = size - 1
	}
	if end < rng.Start {
		return 0, 0, false, errors.New("range end before start")
	}
	return rng.Start, end - rng.Start + 1, true, nil
}

// sniff detects the content type from the head of the file
func sniff(f *os.File, size int64) string {
	n := int64(sniffLen)
	if size < n {
		n = size
	}
	mt, err := mimetype.DetectReader(io.NewSectionReader(f, 0, n))
	if err != nil {
		return "application/octet-stream"
	}
	return mt.String()
}

// pooledReader performs each underlying read inside a pool slot
type pooledReader struct {
	ctx  context.Context
	pool *Pool
	r    io.Reader
}

func (r *pooledReader) Read(p []byte) (n int, err error) {
	if perr := r.pool.Do(r.ctx, func() error {
		n, err = r.r.Read(p)
		return nil
	}); perr != nil {
		return 0, perr
	}
	return n, err
}
