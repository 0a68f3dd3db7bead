// Package paths provides the process-level file locations used by the proxy.
//
// Runtime files live next to the executable so that `fs-proxy stop` finds the
// PID file written by `fs-proxy serve` regardless of the working directory.
package paths

import (
	"os"
	"path/filepath"
	"strings"
)

// Runtime file names
const (
	PIDFileName = "fs-proxy.pid"
	EnvFileName = ".env"
)

// TempPrefix marks in-flight upload files inside the sandbox. The resolver
// refuses client paths using it and listings never show such entries.
const TempPrefix = ".fsproxy-tmp-"

// ExecutableDir returns the directory containing the running executable,
// with symlinks resolved. It falls back to "." when the path is unknown.
func ExecutableDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe)
}

// PIDFile returns the PID file location
func PIDFile() string {
	return filepath.Join(ExecutableDir(), PIDFileName)
}

// EnvFiles returns the .env candidates in load order: working directory
// first, then the executable directory.
func EnvFiles() []string {
	files := []string{EnvFileName}
	exeEnv := filepath.Join(ExecutableDir(), EnvFileName)
	if abs, err := filepath.Abs(EnvFileName); err != nil || abs != exeEnv {
		files = append(files, exeEnv)
	}
	return files
}

// IsTempName reports whether a base name belongs to an in-flight upload
func IsTempName(name string) bool {
	return strings.HasPrefix(name, TempPrefix)
}
