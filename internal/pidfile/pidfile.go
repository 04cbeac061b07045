// Package pidfile guards against running two coordinator instances
// against the same state directory.
package pidfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// Pidfile records the owning process ID on disk.
type Pidfile struct {
	path string
}

func New(path string) *Pidfile {
	return &Pidfile{path: path}
}

// Acquire writes the current PID. It fails when the file already names a
// live process; a stale file from a crashed instance is taken over.
func (p *Pidfile) Acquire() error {
	if pid, err := p.read(); err == nil && processAlive(pid) {
		return fmt.Errorf("another instance is running (pid %d, %s)", pid, p.path)
	}

	if err := os.MkdirAll(filepath.Dir(p.path), 0755); err != nil {
		return fmt.Errorf("create pidfile directory: %w", err)
	}
	if err := os.WriteFile(p.path, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		return fmt.Errorf("write pidfile: %w", err)
	}
	return nil
}

// Release removes the file. Missing files are not an error.
func (p *Pidfile) Release() error {
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove pidfile: %w", err)
	}
	return nil
}

func (p *Pidfile) read() (int, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

// processAlive probes the PID with signal 0.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
