package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// workerProcess describes a running `worker start` process. Each one
// writes a record into the worker directory next to the database and
// removes it on exit; `status` and `worker stop` read them.
type workerProcess struct {
	PID         int       `json:"pid"`
	Workers     int       `json:"workers"`
	MetricsAddr string    `json:"metrics_addr,omitempty"`
	StartedAt   time.Time `json:"started_at"`
}

func workerDir(dbPath string) string {
	return dbPath + ".workers"
}

// registerWorkerProcess writes the record for the current process and
// returns a function that removes it.
func registerWorkerProcess(dir string, p workerProcess) (func(), error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create worker directory: %w", err)
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, fmt.Sprintf("%d.json", p.PID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("write worker record: %w", err)
	}
	return func() { _ = os.Remove(path) }, nil
}

// liveWorkerProcesses returns the records of worker processes that are
// still alive. Records left behind by processes that died are removed.
func liveWorkerProcesses(dir string) ([]workerProcess, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read worker directory: %w", err)
	}

	var procs []workerProcess
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var p workerProcess
		if err := json.Unmarshal(data, &p); err != nil || !processAlive(p.PID) {
			_ = os.Remove(path)
			continue
		}
		procs = append(procs, p)
	}
	return procs, nil
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

// signalStop asks a worker process to shut down gracefully.
func signalStop(p workerProcess) error {
	proc, err := os.FindProcess(p.PID)
	if err != nil {
		return err
	}
	return proc.Signal(syscall.SIGTERM)
}
