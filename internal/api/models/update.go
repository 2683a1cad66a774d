package models

import (
	"time"

	"github.com/bulutsoft-dev/Transmind-PI/internal/updater"
)

// UpdateCheckData contains information about available updates.
type UpdateCheckData struct {
	CurrentVersion  string    `json:"current_version" example:"1.0.0" doc:"Currently installed version"`
	LatestVersion   string    `json:"latest_version" example:"1.1.0" doc:"Latest available version"`
	ReleaseNotes    string    `json:"release_notes,omitempty" doc:"Markdown release notes"`
	ReleaseURL      string    `json:"release_url,omitempty" doc:"URL to the release page"`
	PublishedAt     time.Time `json:"published_at,omitzero" doc:"When the release was published"`
	AssetSize       int       `json:"asset_size,omitempty" example:"5242880" doc:"Size of the update in bytes"`
	UpdateAvailable bool      `json:"update_available" example:"true" doc:"Whether an update is available"`
}

// UpdateCheckResponse wraps UpdateCheckData for API responses.
type UpdateCheckResponse struct {
	Body UpdateCheckData
}

// NewUpdateCheckData converts the updater's view of a release.
func NewUpdateCheckData(info *updater.UpdateInfo) UpdateCheckData {
	return UpdateCheckData{
		CurrentVersion:  info.CurrentVersion,
		LatestVersion:   info.LatestVersion,
		ReleaseNotes:    info.ReleaseNotes,
		ReleaseURL:      info.ReleaseURL,
		PublishedAt:     info.PublishedAt,
		AssetSize:       info.AssetSize,
		UpdateAvailable: info.UpdateAvailable,
	}
}

// UpdateStatusResponse wraps the updater status.
type UpdateStatusResponse struct {
	Body *updater.Status
}
