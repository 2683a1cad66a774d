// Package updater replaces the running transmind binary with the latest
// GitHub release and keeps one backup for rollback.
package updater

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bulutsoft-dev/Transmind-PI/internal/version"
)

const (
	backupFilename     = "transmind.backup"
	backupInfoFilename = "backup.json"
)

var errNoBackup = errors.New("no backup available")

type backupInfo struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	ExecPath  string    `json:"exec_path"`
}

type backupManager struct {
	mu        sync.RWMutex
	backupDir string
	info      *backupInfo
	logger    *slog.Logger
}

func defaultBackupDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".cache", "transmind", "backup"), nil
}

func newBackupManager(dir string, logger *slog.Logger) (*backupManager, error) {
	if dir == "" {
		var err error
		if dir, err = defaultBackupDir(); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	mgr := &backupManager{
		backupDir: dir,
		logger:    logger,
	}
	mgr.loadBackupInfo()
	return mgr, nil
}

func (m *backupManager) backupPath() string {
	return filepath.Join(m.backupDir, backupFilename)
}

func (m *backupManager) loadBackupInfo() {
	data, err := os.ReadFile(filepath.Join(m.backupDir, backupInfoFilename))
	if err != nil {
		return
	}

	var info backupInfo
	if err := json.Unmarshal(data, &info); err != nil {
		m.logger.Warn("Failed to parse backup info", "error", err)
		return
	}
	if _, err := os.Stat(m.backupPath()); err != nil {
		m.logger.Warn("Backup file missing", "path", m.backupPath())
		return
	}

	m.mu.Lock()
	m.info = &info
	m.mu.Unlock()

	m.logger.Info("Loaded backup info", "version", info.Version)
}

// createBackup copies execPath into the backup directory and records the
// running version next to it.
func (m *backupManager) createBackup(execPath string) error {
	if err := copyFile(execPath, m.backupPath()); err != nil {
		return fmt.Errorf("failed to copy executable: %w", err)
	}

	info := backupInfo{
		Version:   version.Version,
		CreatedAt: time.Now(),
		ExecPath:  execPath,
	}
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal backup info: %w", err)
	}
	if err := os.WriteFile(filepath.Join(m.backupDir, backupInfoFilename), data, 0o644); err != nil {
		return fmt.Errorf("failed to write backup info: %w", err)
	}

	m.mu.Lock()
	m.info = &info
	m.mu.Unlock()

	m.logger.Info("Backup created", "version", info.Version, "path", m.backupPath())
	return nil
}

func (m *backupManager) restore() error {
	m.mu.RLock()
	info := m.info
	m.mu.RUnlock()

	if info == nil {
		return errNoBackup
	}
	if err := copyFile(m.backupPath(), info.ExecPath); err != nil {
		return fmt.Errorf("failed to restore backup: %w", err)
	}

	m.logger.Info("Backup restored", "version", info.Version)
	return nil
}

func (m *backupManager) hasBackup() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.info != nil
}

func (m *backupManager) backupVersion() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.info == nil {
		return ""
	}
	return m.info.Version
}

// copyFile writes src to a temporary file beside dst and renames it into
// place, so a running binary is never truncated in place.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".transmind-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o755); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
