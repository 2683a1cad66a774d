package updater

import (
	"context"
	"time"
)

// State is the position of the updater in its check/apply cycle.
type State string

const (
	StateIdle        State = "idle"
	StateChecking    State = "checking"
	StateAvailable   State = "available"
	StateDownloading State = "downloading"
	StateApplying    State = "applying"
	StateRestarting  State = "restarting"
	StateError       State = "error"
	StateRolledBack  State = "rolled_back"
)

// DefaultRepository is the release source used when none is configured.
const DefaultRepository = "bulutsoft-dev/Transmind-PI"

// Service updates the running binary from GitHub releases.
type Service interface {
	// CheckForUpdate looks up the latest release without downloading it.
	CheckForUpdate(ctx context.Context) (*UpdateInfo, error)
	// ApplyUpdate backs up the binary, replaces it and schedules a restart.
	ApplyUpdate(ctx context.Context) error
	// Rollback restores the backed up binary and schedules a restart.
	Rollback(ctx context.Context) error
	Restart(ctx context.Context) error
	GetStatus(ctx context.Context) *Status

	// IsEnabled is false when the binary's directory is not writable.
	IsEnabled() bool
	DisabledReason() string
}

// UpdateInfo describes the latest release relative to the running binary.
type UpdateInfo struct {
	CurrentVersion  string
	LatestVersion   string
	ReleaseNotes    string
	ReleaseURL      string
	PublishedAt     time.Time
	AssetSize       int
	UpdateAvailable bool
}

// Status is the updater state reported by /api/update/status.
type Status struct {
	State           State      `json:"state" enum:"idle,checking,available,downloading,applying,restarting,error,rolled_back" doc:"Updater state"`
	CurrentVersion  string     `json:"current_version" example:"1.2.0" doc:"Running version"`
	TargetVersion   string     `json:"target_version,omitempty" example:"1.3.0" doc:"Release being installed or last found"`
	Error           string     `json:"error,omitempty" doc:"Last failure"`
	LastChecked     *time.Time `json:"last_checked,omitempty" doc:"When releases were last checked"`
	BackupAvailable bool       `json:"backup_available" doc:"Whether a rollback is possible"`
	BackupVersion   string     `json:"backup_version,omitempty" example:"1.1.0" doc:"Version of the backed up binary"`
}

// Options configures NewService.
type Options struct {
	// Repository is an "owner/name" slug; DefaultRepository when empty.
	Repository string
	Prerelease bool
	// BackupDir holds the previous binary. Defaults to ~/.cache/transmind/backup.
	BackupDir string
	// RestartDelay lets the HTTP response go out before the restart signal.
	RestartDelay time.Duration
	// Restart replaces the default SIGTERM-to-self restart.
	Restart func()
}
