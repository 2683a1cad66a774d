package updater

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/creativeprojects/go-selfupdate"

	"github.com/bulutsoft-dev/Transmind-PI/internal/logging"
	"github.com/bulutsoft-dev/Transmind-PI/internal/version"
)

const defaultRestartDelay = 500 * time.Millisecond

type service struct {
	repository    selfupdate.Repository
	updater       *selfupdate.Updater
	backupManager *backupManager
	restart       func()
	restartDelay  time.Duration

	mu            sync.RWMutex
	state         State
	latestRelease *selfupdate.Release
	lastChecked   *time.Time
	lastError     error

	enabled        bool
	disabledReason string

	logger *slog.Logger
}

// NewService creates the updater. When the binary's directory is not
// writable the returned service is disabled rather than nil.
func NewService(opts Options) (Service, error) {
	logger := logging.GetLogger("updater")

	s := &service{
		state:        StateIdle,
		restart:      opts.Restart,
		restartDelay: opts.RestartDelay,
		logger:       logger,
	}
	if s.restart == nil {
		s.restart = s.signalSelf
	}
	if s.restartDelay <= 0 {
		s.restartDelay = defaultRestartDelay
	}

	if canWrite, reason := checkWritePermission(); !canWrite {
		logger.Warn("Update service disabled", "reason", reason)
		s.disabledReason = reason
		return s, nil
	}

	source, err := selfupdate.NewGitHubSource(selfupdate.GitHubConfig{})
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub source: %w", err)
	}
	updater, err := selfupdate.NewUpdater(selfupdate.Config{
		Source:     source,
		Prerelease: opts.Prerelease,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create updater: %w", err)
	}

	repo := opts.Repository
	if repo == "" {
		repo = DefaultRepository
	}
	s.repository = selfupdate.ParseSlug(repo)
	s.updater = updater
	s.enabled = true

	if s.backupManager, err = newBackupManager(opts.BackupDir, logger); err != nil {
		logger.Warn("Failed to create backup manager", "error", err)
	}
	return s, nil
}

func checkWritePermission() (bool, string) {
	exe, err := selfupdate.ExecutablePath()
	if err != nil {
		return false, fmt.Sprintf("failed to get executable path: %v", err)
	}
	if exe, err = filepath.EvalSymlinks(exe); err != nil {
		return false, fmt.Sprintf("failed to resolve symlinks: %v", err)
	}

	dir := filepath.Dir(exe)
	f, err := os.CreateTemp(dir, ".transmind.update.test")
	if err != nil {
		return false, fmt.Sprintf("no write permission to %s: %v", dir, err)
	}
	f.Close()
	os.Remove(f.Name())
	return true, ""
}

func (s *service) IsEnabled() bool {
	return s.enabled
}

func (s *service) DisabledReason() string {
	return s.disabledReason
}

// CheckForUpdate queries GitHub for the latest release and compares it with
// the running version. Nothing is downloaded.
func (s *service) CheckForUpdate(ctx context.Context) (*UpdateInfo, error) {
	if !s.enabled {
		return nil, newError(ErrCodeDisabled, s.disabledReason, nil)
	}
	if !s.transitionTo(StateChecking, StateIdle, StateAvailable, StateError, StateRolledBack) {
		return nil, newError(ErrCodeInvalidState,
			fmt.Sprintf("cannot check for updates in state %s", s.getState()), nil)
	}

	release, found, err := s.updater.DetectLatest(ctx, s.repository)
	if err != nil {
		s.setError(err)
		return nil, newError(ErrCodeCheckFailed, "failed to check for updates", err)
	}

	now := time.Now()
	s.mu.Lock()
	s.lastChecked = &now
	s.mu.Unlock()

	if !found {
		err := errors.New("repository not found or has no releases")
		s.setError(err)
		return nil, newError(ErrCodeNotFound, err.Error(), nil)
	}

	current := version.Version
	info := &UpdateInfo{
		CurrentVersion: current,
		LatestVersion:  release.Version(),
	}

	// dev builds are always behind a tagged release
	if current != "dev" && !release.GreaterThan(current) {
		s.transitionTo(StateIdle)
		return info, nil
	}

	s.mu.Lock()
	s.latestRelease = release
	s.mu.Unlock()
	s.transitionTo(StateAvailable)

	info.ReleaseNotes = release.ReleaseNotes
	info.ReleaseURL = release.URL
	info.PublishedAt = release.PublishedAt
	info.AssetSize = release.AssetByteSize
	info.UpdateAvailable = true
	return info, nil
}

// ApplyUpdate backs up the running binary, replaces it with the latest
// release and schedules a restart. A failed replacement is rolled back.
func (s *service) ApplyUpdate(ctx context.Context) error {
	if !s.enabled {
		return newError(ErrCodeDisabled, s.disabledReason, nil)
	}

	if s.getState() != StateAvailable {
		info, err := s.CheckForUpdate(ctx)
		if err != nil {
			return err
		}
		if !info.UpdateAvailable {
			return newError(ErrCodeNoUpdate, "no update available", nil)
		}
	}

	if !s.transitionTo(StateDownloading, StateAvailable) {
		return newError(ErrCodeInvalidState,
			fmt.Sprintf("cannot apply update in state %s", s.getState()), nil)
	}

	exe, err := selfupdate.ExecutablePath()
	if err != nil {
		s.setError(err)
		return newError(ErrCodeApplyFailed, "failed to get executable path", err)
	}

	if s.backupManager != nil {
		if err := s.backupManager.createBackup(exe); err != nil {
			s.setError(err)
			return newError(ErrCodeBackupFailed, "failed to create backup", err)
		}
	}

	s.transitionTo(StateApplying)

	s.mu.RLock()
	release := s.latestRelease
	s.mu.RUnlock()

	if err := s.updater.UpdateTo(ctx, release, exe); err != nil {
		s.setError(err)
		s.attemptRollback()
		return newError(ErrCodeApplyFailed, "failed to apply update", err)
	}

	s.transitionTo(StateRestarting)
	s.logger.Info("Update applied, restarting", "version", release.Version())
	s.scheduleRestart()
	return nil
}

// Rollback restores the backed up binary and schedules a restart.
func (s *service) Rollback(_ context.Context) error {
	if !s.enabled {
		return newError(ErrCodeDisabled, s.disabledReason, nil)
	}
	if s.backupManager == nil || !s.backupManager.hasBackup() {
		return newError(ErrCodeNoBackup, "no backup available for rollback", nil)
	}
	if err := s.backupManager.restore(); err != nil {
		return newError(ErrCodeRollbackFailed, "failed to restore backup", err)
	}

	s.transitionTo(StateRolledBack)
	s.logger.Info("Rollback completed, restarting")
	s.scheduleRestart()
	return nil
}

// Restart schedules a restart without touching the binary.
func (s *service) Restart(_ context.Context) error {
	s.logger.Info("Restart requested")
	s.scheduleRestart()
	return nil
}

func (s *service) GetStatus(_ context.Context) *Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := &Status{
		State:          s.state,
		CurrentVersion: version.Version,
		LastChecked:    s.lastChecked,
	}
	if s.latestRelease != nil {
		status.TargetVersion = s.latestRelease.Version()
	}
	if s.lastError != nil {
		status.Error = s.lastError.Error()
	}
	if s.backupManager != nil {
		status.BackupAvailable = s.backupManager.hasBackup()
		status.BackupVersion = s.backupManager.backupVersion()
	}
	return status
}

func (s *service) transitionTo(newState State, validFromStates ...State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(validFromStates) > 0 && !slices.Contains(validFromStates, s.state) {
		return false
	}

	s.logger.Debug("State transition", "from", s.state, "to", newState)
	s.state = newState
	s.lastError = nil
	return true
}

func (s *service) getState() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *service) setError(err error) {
	s.mu.Lock()
	s.lastError = err
	s.state = StateError
	s.mu.Unlock()
}

func (s *service) attemptRollback() {
	if s.backupManager == nil || !s.backupManager.hasBackup() {
		s.logger.Error("No backup available for automatic rollback")
		return
	}
	if err := s.backupManager.restore(); err != nil {
		s.logger.Error("Failed to restore backup", "error", err)
		return
	}
	s.transitionTo(StateRolledBack)
	s.logger.Info("Automatic rollback completed")
}

func (s *service) scheduleRestart() {
	time.AfterFunc(s.restartDelay, s.restart)
}

// signalSelf sends SIGTERM to this process; systemd brings it back.
func (s *service) signalSelf() {
	s.logger.Info("Sending SIGTERM to trigger restart")
	proc, err := os.FindProcess(os.Getpid())
	if err != nil {
		s.logger.Error("Failed to find own process", "error", err)
		return
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		s.logger.Error("Failed to send SIGTERM", "error", err)
	}
}
