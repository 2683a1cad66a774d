// Package models holds the request and response bodies of the HTTP API.
package models

import (
	"github.com/bulutsoft-dev/Transmind-PI/internal/capture"
	"github.com/bulutsoft-dev/Transmind-PI/internal/health"
	"github.com/bulutsoft-dev/Transmind-PI/internal/heartbeat"
	"github.com/bulutsoft-dev/Transmind-PI/internal/logging"
	"github.com/bulutsoft-dev/Transmind-PI/internal/registry"
	"github.com/bulutsoft-dev/Transmind-PI/internal/stream"
)

// HealthResponse carries a probe result. Status is 200 when healthy and 503
// otherwise.
type HealthResponse struct {
	Status int
	Body   health.Result
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"1.2.0" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"a1b2c3d" doc:"Git commit hash"`
	BuildDate string `json:"build_date" example:"2025-01-27T10:30:00Z" doc:"Build timestamp"`
	BuildID   string `json:"build_id" doc:"Build identifier"`
	GoVersion string `json:"go_version" example:"go1.24.11" doc:"Go version used to build"`
	Compiler  string `json:"compiler" example:"gc" doc:"Go compiler"`
	Platform  string `json:"platform" example:"linux/arm64" doc:"Target platform"`
}

type VersionResponse struct {
	Body VersionData
}

// Session models
type SessionListData struct {
	Sessions []stream.Stats `json:"sessions" doc:"Live stream sessions, oldest first"`
	Count    int            `json:"count" example:"1" doc:"Number of live sessions"`
}

type SessionListResponse struct {
	Body SessionListData
}

// Device registry models
type DeviceData struct {
	Device    registry.Device `json:"device" doc:"Registered device"`
	StreamURL string          `json:"stream_url,omitempty" example:"http://172.28.117.8:8889/stream" doc:"MJPEG endpoint of the device"`
	Active    bool            `json:"active" doc:"Whether this is the active device"`
}

type DeviceResponse struct {
	Body DeviceData
}

type DeviceListData struct {
	Devices []DeviceData `json:"devices" doc:"Registered devices sorted by id"`
	Active  string       `json:"active,omitempty" example:"lab_rpi_1" doc:"Active device identifier"`
	Count   int          `json:"count" example:"2" doc:"Number of registered devices"`
}

type DeviceListResponse struct {
	Body DeviceListData
}

type DeviceStreamRedirect struct {
	Status   int
	Location string `header:"Location"`
}

// Local capture hardware
type CaptureDeviceListData struct {
	Devices []capture.DeviceInfo `json:"devices" doc:"Video4Linux capture nodes"`
	Count   int                  `json:"count" example:"1" doc:"Number of nodes"`
}

type CaptureDeviceListResponse struct {
	Body CaptureDeviceListData
}

// Heartbeat models
type HeartbeatStatusResponse struct {
	Body heartbeat.Status
}

type HeartbeatSettingsRequest struct {
	Body heartbeat.Settings
}

type HeartbeatRemoteResponse struct {
	Body map[string]any
}

// Log models
type LogsRequest struct {
	Limit int `query:"limit" minimum:"0" default:"200" doc:"Newest entries to return, 0 for all"`
}

type LogsData struct {
	Entries []logging.LogEntry `json:"entries" doc:"Buffered log entries, oldest first"`
	Count   int                `json:"count" example:"200" doc:"Number of entries returned"`
}

type LogsResponse struct {
	Body LogsData
}

type MessageData struct {
	Message string `json:"message" example:"ok" doc:"Status message"`
}

type MessageResponse struct {
	Body MessageData
}
