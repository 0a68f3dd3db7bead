package filesystem

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qiuzhanghua/fs-proxy/internal/shared/fserr"
	"github.com/qiuzhanghua/fs-proxy/internal/shared/types"
)

func buildTree(t *testing.T, root string) {
	t.Helper()
	files := map[string]string{
		"b.txt":          "bb",
		"a.txt":          "a",
		"sub/c.txt":      "ccc",
		"sub/deep/d.log": "dddd",
		".fsproxy-tmp-x": "in flight",
	}
	for name, content := range files {
		full := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	require.NoError(t, os.Symlink(filepath.Join(root, "a.txt"), filepath.Join(root, "link")))
}

func names(entries []types.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}

func TestListShallow(t *testing.T) {
	e, root := newTestExecutor(t, Options{})
	buildTree(t, root)

	entries, err := e.List(context.Background(), resolve(t, e, "."), ListOptions{})
	require.NoError(t, err)

	assert.Equal(t, []types.Entry{
		{Name: "a.txt", Size: 1},
		{Name: "b.txt", Size: 2},
		{Name: "sub", IsDirectory: true},
	}, entries)
}

func TestListRecursive(t *testing.T) {
	e, root := newTestExecutor(t, Options{})
	buildTree(t, root)

	entries, err := e.List(context.Background(), resolve(t, e, "sub"), ListOptions{Recursive: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"c.txt", "deep", "deep/d.log"}, names(entries))

	entries, err = e.List(context.Background(), resolve(t, e, ""), ListOptions{Recursive: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt", "sub", "sub/c.txt", "sub/deep", "sub/deep/d.log"}, names(entries))
}

func TestListPattern(t *testing.T) {
	e, root := newTestExecutor(t, Options{})
	buildTree(t, root)
	ctx := context.Background()

	entries, err := e.List(ctx, resolve(t, e, "."), ListOptions{Pattern: "*.txt"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt"}, names(entries))

	entries, err = e.List(ctx, resolve(t, e, "."), ListOptions{Recursive: true, Pattern: "sub/**/*.log"})
	require.NoError(t, err)
	assert.Equal(t, []string{"sub/deep/d.log"}, names(entries))

	_, err = e.List(ctx, resolve(t, e, "."), ListOptions{Pattern: "[unclosed"})
	assert.True(t, errors.Is(err, fserr.ErrInvalidArg), "got %v", err)
}

func TestListEmptyDirectory(t *testing.T) {
	e, root := newTestExecutor(t, Options{})
	require.NoError(t, os.Mkdir(filepath.Join(root, "empty"), 0o755))

	entries, err := e.List(context.Background(), resolve(t, e, "empty"), ListOptions{})
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestListErrors(t *testing.T) {
	e, root := newTestExecutor(t, Options{})
	require.NoError(t, os.WriteFile(filepath.Join(root, "file"), []byte("x"), 0o644))
	ctx := context.Background()

	_, err := e.List(ctx, resolve(t, e, "file"), ListOptions{})
	assert.True(t, errors.Is(err, fserr.ErrNotADirectory), "got %v", err)

	_, err = e.List(ctx, resolve(t, e, "missing"), ListOptions{})
	assert.True(t, errors.Is(err, fserr.ErrNotFound), "got %v", err)
}
