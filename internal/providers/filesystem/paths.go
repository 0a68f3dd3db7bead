package filesystem

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/qiuzhanghua/fs-proxy/internal/shared/fserr"
	"github.com/qiuzhanghua/fs-proxy/internal/shared/paths"
)

// RootRel is the relative form of the sandbox root itself
const RootRel = "."

// ResolvedPath is a canonical, sandbox-confined path
type ResolvedPath struct {
	// Rel is slash-separated and relative to the sandbox root ("." for the root)
	Rel string
	// Abs is the absolute host path
	Abs string
	// Dir is set when the client path ended in "/" and so must name a directory
	Dir bool
}

// IsRoot reports whether the path is the sandbox root
func (p ResolvedPath) IsRoot() bool {
	return p.Rel == RootRel
}

// Parent returns the relative path of the parent directory
func (p ResolvedPath) Parent() string {
	return path.Dir(p.Rel)
}

// Base returns the final path element
func (p ResolvedPath) Base() string {
	return path.Base(p.Rel)
}

// Sandbox confines all filesystem access to a single root directory.
// The root is fixed for the lifetime of the value.
type Sandbox struct {
	root string
	fsys *os.Root
}

// NewSandbox opens dir as the sandbox root. The directory must exist; the
// stored root is absolute with all symlinks in it resolved.
func NewSandbox(dir string) (*Sandbox, error) {
	if dir == "" {
		return nil, errors.New("sandbox root is not configured")
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve sandbox root %s: %w", dir, err)
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("sandbox root %s: %w", dir, err)
	}

	info, err := os.Stat(canonical)
	if err != nil {
		return nil, fmt.Errorf("sandbox root %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("sandbox root %s is not a directory", dir)
	}

	fsys, err := os.OpenRoot(canonical)
	if err != nil {
		return nil, fmt.Errorf("failed to open sandbox root %s: %w", dir, err)
	}

	return &Sandbox{root: canonical, fsys: fsys}, nil
}

// Root returns the absolute sandbox root
func (s *Sandbox) Root() string {
	return s.root
}

// FS returns the os.Root handle all operations go through
func (s *Sandbox) FS() *os.Root {
	return s.fsys
}

// Close releases the root handle
func (s *Sandbox) Close() error {
	return s.fsys.Close()
}

// Resolve converts a client-supplied relative path into a ResolvedPath.
//
// Rejected with PathTraversal: absolute or drive-prefixed input, NUL bytes,
// empty segments, segments using the upload temp prefix, ".." escaping the
// root, and any existing symlink along the path (inside or outside the root).
// Resolve only inspects the filesystem with Lstat.
func (s *Sandbox) Resolve(rel string) (ResolvedPath, error) {
	clean, err := normalize(rel)
	if err != nil {
		return ResolvedPath{}, fserr.New(fserr.KindPathTraversal, "resolve", rel, err)
	}

	abs := filepath.Join(s.root, filepath.FromSlash(clean))
	if !s.contains(abs) {
		return ResolvedPath{}, fserr.Newf(fserr.KindPathTraversal, "resolve", rel, "path escapes sandbox root")
	}

	if err := s.checkNoSymlinks(clean); err != nil {
		return ResolvedPath{}, fserr.New(fserr.KindPathTraversal, "resolve", rel, err)
	}

	return ResolvedPath{Rel: clean, Abs: abs, Dir: strings.HasSuffix(rel, "/")}, nil
}

// normalize collapses "." and ".." lexically and validates every segment
func normalize(rel string) (string, error) {
	if strings.ContainsRune(rel, 0) {
		return "", errors.New("path contains NUL byte")
	}
	if strings.HasPrefix(rel, "/") || strings.HasPrefix(rel, `\`) {
		return "", errors.New("absolute paths are not allowed")
	}
	if hasDrivePrefix(rel) || filepath.VolumeName(rel) != "" {
		return "", errors.New("drive-prefixed paths are not allowed")
	}

	rel = strings.TrimSuffix(rel, "/")
	if rel == "" {
		return RootRel, nil
	}

	var stack []string
	for _, seg := range strings.Split(rel, "/") {
		switch seg {
		case "":
			return "", errors.New("path contains an empty segment")
		case ".":
			continue
		case "..":
			if len(stack) == 0 {
				return "", errors.New("path escapes sandbox root")
			}
			stack = stack[:len(stack)-1]
		default:
			if paths.IsTempName(seg) {
				return "", fmt.Errorf("segment %q uses a reserved name", seg)
			}
			stack = append(stack, seg)
		}
	}

	if len(stack) == 0 {
		return RootRel, nil
	}
	return strings.Join(stack, "/"), nil
}

// hasDrivePrefix matches "C:" style prefixes regardless of host OS
func hasDrivePrefix(p string) bool {
	if len(p) < 2 || p[1] != ':' {
		return false
	}
	c := p[0]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func (s *Sandbox) contains(abs string) bool {
	r, err := filepath.Rel(s.root, abs)
	if err != nil {
		return false
	}
	return r == "." || (r != ".." && !strings.HasPrefix(r, ".."+string(filepath.Separator)))
}

// checkNoSymlinks walks the existing prefix of rel and fails on the first
// symlink. Checking stops at the first missing component or non-directory.
func (s *Sandbox) checkNoSymlinks(rel string) error {
	if rel == RootRel {
		return nil
	}

	segs := strings.Split(rel, "/")
	for i := range segs {
		prefix := strings.Join(segs[:i+1], "/")
		info, err := s.fsys.Lstat(prefix)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrInvalid) || isNotDir(err) {
				return nil
			}
			return err
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			return fmt.Errorf("symbolic link at %q", prefix)
		}
		if !info.IsDir() {
			return nil
		}
	}
	return nil
}

// checkParentChain re-verifies that every existing directory above rel is a
// real directory. Used right before commits.
func (s *Sandbox) checkParentChain(rel string) error {
	parent := path.Dir(rel)
	if parent == RootRel {
		return nil
	}
	return s.checkNoSymlinks(parent)
}
