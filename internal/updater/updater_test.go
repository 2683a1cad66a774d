package updater

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bulutsoft-dev/Transmind-PI/internal/logging"
)

func TestBackupCreateAndRestore(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, "transmind")
	if err := os.WriteFile(exe, []byte("v1"), 0o755); err != nil {
		t.Fatal(err)
	}

	m, err := newBackupManager(filepath.Join(dir, "backup"), logging.GetLogger("updater"))
	if err != nil {
		t.Fatalf("newBackupManager: %v", err)
	}
	if m.hasBackup() {
		t.Fatal("fresh directory should have no backup")
	}
	if err := m.restore(); !errors.Is(err, errNoBackup) {
		t.Errorf("restore without backup = %v", err)
	}

	if err := m.createBackup(exe); err != nil {
		t.Fatalf("createBackup: %v", err)
	}
	if !m.hasBackup() || m.backupVersion() == "" {
		t.Error("backup not recorded")
	}

	if err := os.WriteFile(exe, []byte("v2"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := m.restore(); err != nil {
		t.Fatalf("restore: %v", err)
	}
	data, err := os.ReadFile(exe)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "v1" {
		t.Errorf("restored binary = %q, want v1", data)
	}

	// A second manager over the same directory picks the backup up.
	again, err := newBackupManager(filepath.Join(dir, "backup"), logging.GetLogger("updater"))
	if err != nil {
		t.Fatal(err)
	}
	if !again.hasBackup() {
		t.Error("backup info not reloaded")
	}
}

func TestDisabledService(t *testing.T) {
	s := &service{
		state:          StateIdle,
		disabledReason: "read-only filesystem",
		logger:         logging.GetLogger("updater"),
	}
	ctx := context.Background()

	if _, err := s.CheckForUpdate(ctx); Code(err) != ErrCodeDisabled {
		t.Errorf("CheckForUpdate = %v, want DISABLED", err)
	}
	if err := s.ApplyUpdate(ctx); Code(err) != ErrCodeDisabled {
		t.Errorf("ApplyUpdate = %v, want DISABLED", err)
	}
	if err := s.Rollback(ctx); Code(err) != ErrCodeDisabled {
		t.Errorf("Rollback = %v, want DISABLED", err)
	}
	if st := s.GetStatus(ctx); st.State != StateIdle || st.BackupAvailable {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestRollbackWithoutBackup(t *testing.T) {
	s := &service{enabled: true, state: StateIdle, logger: logging.GetLogger("updater")}
	if err := s.Rollback(context.Background()); Code(err) != ErrCodeNoBackup {
		t.Errorf("Rollback = %v, want NO_BACKUP", err)
	}
}

func TestRestartIsScheduled(t *testing.T) {
	done := make(chan struct{})
	s := &service{
		restart:      func() { close(done) },
		restartDelay: time.Millisecond,
		logger:       logging.GetLogger("updater"),
	}
	if err := s.Restart(context.Background()); err != nil {
		t.Fatal(err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("restart was not triggered")
	}
}

func TestTransitionGuards(t *testing.T) {
	s := &service{state: StateApplying, logger: logging.GetLogger("updater")}
	if s.transitionTo(StateChecking, StateIdle, StateAvailable) {
		t.Error("transition from applying should be refused")
	}
	s.setError(errors.New("boom"))
	if s.getState() != StateError {
		t.Errorf("state = %s, want error", s.getState())
	}
	if !s.transitionTo(StateChecking, StateError) {
		t.Error("error state should allow a new check")
	}
	if s.GetStatus(context.Background()).Error != "" {
		t.Error("transition should clear the last error")
	}
}

func TestCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", newError(ErrCodeNoUpdate, "no update available", nil))
	if Code(err) != ErrCodeNoUpdate {
		t.Errorf("Code = %q", Code(err))
	}
	if Code(errors.New("plain")) != "" {
		t.Error("plain errors have no code")
	}
}
