package paths

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ErrNoPIDFile is returned when no server has written a PID file
var ErrNoPIDFile = errors.New("pid file not found")

// WritePID records the current process id in path
func WritePID(path string) error {
	data := strconv.Itoa(os.Getpid()) + "\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		return fmt.Errorf("failed to write pid file: %w", err)
	}
	return nil
}

// ReadPID returns the process id stored in path
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, ErrNoPIDFile
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read pid file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid file %s: %q", path, strings.TrimSpace(string(data)))
	}
	return pid, nil
}

// RemovePID deletes path if it still names the current process
func RemovePID(path string) error {
	pid, err := ReadPID(path)
	if err != nil || pid != os.Getpid() {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove pid file: %w", err)
	}
	return nil
}
