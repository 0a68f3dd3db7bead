package filesystem

import (
	"context"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
	"go.uber.org/zap"

	"github.com/qiuzhanghua/fs-proxy/internal/shared/fserr"
	"github.com/qiuzhanghua/fs-proxy/internal/shared/paths"
	"github.com/qiuzhanghua/fs-proxy/internal/shared/types"
)

// List returns the entries of a directory sorted by name. Upload temp files
// and symbolic links are never listed. Directory sizes are reported as 0.
//
// With opts.Recursive the whole subtree is returned and names are
// slash-separated paths relative to p. opts.Pattern is a doublestar glob
// matched against those names.
func (e *Executor) List(ctx context.Context, p ResolvedPath, opts ListOptions) ([]types.Entry, error) {
	const op = "list"

	if opts.Pattern != "" && !doublestar.ValidatePattern(opts.Pattern) {
		return nil, fserr.Newf(fserr.KindInvalidArg, op, p.Rel, "invalid pattern %q", opts.Pattern)
	}

	var entries []types.Entry
	err := e.pool.Do(ctx, func() error {
		dir, info, err := e.openVerified(p.Rel)
		if err != nil {
			return err
		}
		defer dir.Close()

		if !info.IsDir() {
			return fserr.Newf(fserr.KindNotADirectory, op, p.Rel, "path is not a directory")
		}

		if opts.Recursive {
			entries, err = e.walk(ctx, p)
			return err
		}

		des, err := dir.ReadDir(-1)
		if err != nil {
			return err
		}
		entries = make([]types.Entry, 0, len(des))
		for _, de := range des {
			if entry, ok := toEntry(de.Name(), de); ok {
				entries = append(entries, entry)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fserr.FromOS(op, p.Rel, err)
	}

	if opts.Pattern != "" {
		entries = slices.DeleteFunc(entries, func(en types.Entry) bool {
			ok, _ := doublestar.Match(opts.Pattern, en.Name)
			return !ok
		})
	}

	slices.SortFunc(entries, func(a, b types.Entry) int {
		return strings.Compare(a.Name, b.Name)
	})
	if entries == nil {
		entries = []types.Entry{}
	}
	return entries, nil
}

// walk collects the subtree below p. The callback runs concurrently.
func (e *Executor) walk(ctx context.Context, p ResolvedPath) ([]types.Entry, error) {
	var (
		mu      sync.Mutex
		entries []types.Entry
	)

	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, p.Abs, func(full string, de fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			e.logger.Debug("Skipping unreadable entry", zap.String("path", full), zap.Error(err))
			return nil
		}
		if full == p.Abs {
			return nil
		}

		rel, err := filepath.Rel(p.Abs, full)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if paths.IsTempName(de.Name()) {
			return nil
		}
		entry, ok := toEntry(rel, de)
		if !ok {
			return nil
		}

		mu.Lock()
		entries = append(entries, entry)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// toEntry converts a directory entry; symlinks and temp files are skipped
func toEntry(name string, de fs.DirEntry) (types.Entry, bool) {
	if paths.IsTempName(de.Name()) || de.Type()&fs.ModeSymlink != 0 {
		return types.Entry{}, false
	}
	if de.IsDir() {
		return types.Entry{Name: name, IsDirectory: true}, true
	}

	info, err := de.Info()
	if err != nil {
		// removed while listing
		return types.Entry{}, false
	}
	return types.Entry{Name: name, Size: info.Size()}, true
}
