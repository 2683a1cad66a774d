// Package heartbeat reports this node's liveness to the remote management
// server. It registers the device once, then pings on a fixed interval and
// counts consecutive misses.
package heartbeat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/bulutsoft-dev/Transmind-PI/internal/events"
	"github.com/bulutsoft-dev/Transmind-PI/internal/logging"
	"github.com/bulutsoft-dev/Transmind-PI/internal/metrics"
)

// Defaults applied by New.
const (
	DefaultInterval         = 30 * time.Second
	DefaultOfflineThreshold = 3
	DefaultTimeout          = 10 * time.Second
)

const (
	stopTimeout = 5 * time.Second
	fallbackIP  = "127.0.0.1"
)

// Server API paths.
const (
	registerPath = "/rpi/api/device/register/"
	pingPath     = "/rpi/api/heartbeat/ping/"
	statusPath   = "/rpi/api/status/%s/"
	settingsPath = "/rpi/api/device/%s/settings/"
)

// Lifecycle errors.
var (
	ErrAlreadyRunning = errors.New("heartbeat already running")
	ErrNotRunning     = errors.New("heartbeat not running")
)

// ErrInvalidSettings is returned for non-positive interval or threshold.
var ErrInvalidSettings = errors.New("invalid heartbeat settings")

// Config configures a Manager.
type Config struct {
	ServerURL        string
	DeviceID         string
	Interval         time.Duration
	OfflineThreshold int
	Debug            bool
	Timeout          time.Duration
	// Hostname and IPAddress are detected when empty.
	Hostname  string
	IPAddress string
}

// Settings are the server-side heartbeat settings. Nil fields are left
// unchanged.
type Settings struct {
	HeartbeatInterval *int  `json:"heartbeat_interval,omitempty" minimum:"1" doc:"Ping interval in seconds"`
	OfflineThreshold  *int  `json:"offline_threshold,omitempty" minimum:"1" doc:"Missed pings before the device counts as offline"`
	DebugMode         *bool `json:"debug_mode,omitempty" doc:"Verbose heartbeat logging"`
}

// Status is a local snapshot of the heartbeat.
type Status struct {
	DeviceID         string    `json:"device_id" example:"lab_rpi_1" doc:"Registered device identifier"`
	ServerURL        string    `json:"server_url" doc:"Management server"`
	Hostname         string    `json:"hostname" doc:"Reported hostname"`
	IPAddress        string    `json:"ip_address" example:"172.28.117.8" doc:"Reported address"`
	Running          bool      `json:"running" doc:"Whether the ping loop is running"`
	Registered       bool      `json:"registered" doc:"Whether registration succeeded"`
	Online           bool      `json:"online" doc:"Missed pings are below the offline threshold"`
	IntervalSec      int       `json:"interval_sec" example:"30" doc:"Ping interval in seconds"`
	OfflineThreshold int       `json:"offline_threshold" example:"3" doc:"Missed pings before offline"`
	Debug            bool      `json:"debug" doc:"Verbose heartbeat logging"`
	MissedPings      int       `json:"missed_pings" doc:"Consecutive failed pings"`
	LastPingAt       time.Time `json:"last_ping_at,omitzero" doc:"Last successful ping"`
	LastError        string    `json:"last_error,omitempty" doc:"Last request failure"`
}

// Manager runs the heartbeat loop.
type Manager struct {
	serverURL string
	deviceID  string
	hostname  string
	ip        string
	client    *http.Client
	bus       *events.Bus
	logger    logging.Logger

	mu         sync.Mutex
	interval   time.Duration
	threshold  int
	debug      bool
	running    bool
	cancel     context.CancelFunc
	done       chan struct{}
	registered bool
	missed     int
	lastPing   time.Time
	lastErr    string
}

// Option configures a Manager.
type Option func(*Manager)

// WithBus publishes heartbeat activity on bus.
func WithBus(bus *events.Bus) Option {
	return func(m *Manager) {
		m.bus = bus
	}
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) {
		m.client = c
	}
}

// New creates a stopped manager.
func New(cfg Config, opts ...Option) (*Manager, error) {
	if cfg.ServerURL == "" {
		return nil, errors.New("heartbeat server URL is required")
	}
	if _, err := url.ParseRequestURI(cfg.ServerURL); err != nil {
		return nil, fmt.Errorf("invalid heartbeat server URL: %w", err)
	}
	if cfg.DeviceID == "" {
		return nil, errors.New("heartbeat device id is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.OfflineThreshold <= 0 {
		cfg.OfflineThreshold = DefaultOfflineThreshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Hostname == "" {
		cfg.Hostname, _ = os.Hostname()
	}
	if cfg.IPAddress == "" {
		cfg.IPAddress = outboundIP()
	}

	m := &Manager{
		serverURL: strings.TrimRight(cfg.ServerURL, "/"),
		deviceID:  cfg.DeviceID,
		hostname:  cfg.Hostname,
		ip:        cfg.IPAddress,
		client:    &http.Client{Timeout: cfg.Timeout},
		logger:    logging.GetLogger("heartbeat"),
		interval:  cfg.Interval,
		threshold: cfg.OfflineThreshold,
		debug:     cfg.Debug,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger.Info("Heartbeat configured",
		"device_id", m.deviceID, "interval", m.interval, "offline_threshold", m.threshold)
	return m, nil
}

// outboundIP finds the address used for outbound traffic. Dialing UDP sends
// no packets.
func outboundIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return fallbackIP
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return fallbackIP
	}
	return addr.IP.String()
}

// Start registers the device and begins pinging. Registration failures are
// logged and the loop keeps pinging.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	m.running = true
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.loop(ctx, m.done)
	m.mu.Unlock()

	m.logger.Info("Heartbeat started", "device_id", m.deviceID)
	m.publish("started", true, "")
	return nil
}

// Stop ends the loop, waiting at most five seconds for it to exit.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return ErrNotRunning
	}
	m.running = false
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(stopTimeout):
		m.logger.Warn("Heartbeat loop did not exit in time")
	}

	m.logger.Info("Heartbeat stopped", "device_id", m.deviceID)
	m.publish("stopped", true, "")
	return nil
}

// IsRunning reports whether the loop is running.
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Status returns a local snapshot.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		DeviceID:         m.deviceID,
		ServerURL:        m.serverURL,
		Hostname:         m.hostname,
		IPAddress:        m.ip,
		Running:          m.running,
		Registered:       m.registered,
		Online:           m.missed < m.threshold,
		IntervalSec:      int(m.interval / time.Second),
		OfflineThreshold: m.threshold,
		Debug:            m.debug,
		MissedPings:      m.missed,
		LastPingAt:       m.lastPing,
		LastError:        m.lastErr,
	}
}

// RemoteStatus fetches the server's view of this device.
func (m *Manager) RemoteStatus(ctx context.Context) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		m.serverURL+fmt.Sprintf(statusPath, url.PathEscape(m.deviceID)), nil)
	if err != nil {
		return nil, err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch device status: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, fmt.Errorf("fetch device status: %w", err)
	}

	var status map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode device status: %w", err)
	}
	return status, nil
}

// UpdateSettings pushes settings to the server and applies them locally once
// the server accepted them. A new interval takes effect after the next ping.
func (m *Manager) UpdateSettings(ctx context.Context, s Settings) error {
	if s.HeartbeatInterval != nil && *s.HeartbeatInterval <= 0 {
		return fmt.Errorf("%w: heartbeat interval must be positive, got %d", ErrInvalidSettings, *s.HeartbeatInterval)
	}
	if s.OfflineThreshold != nil && *s.OfflineThreshold <= 0 {
		return fmt.Errorf("%w: offline threshold must be positive, got %d", ErrInvalidSettings, *s.OfflineThreshold)
	}

	if err := m.post(ctx, fmt.Sprintf(settingsPath, url.PathEscape(m.deviceID)), s); err != nil {
		m.logger.Error("Failed to update heartbeat settings", "error", err)
		m.publish("settings", false, err.Error())
		return err
	}

	m.mu.Lock()
	if s.HeartbeatInterval != nil {
		m.interval = time.Duration(*s.HeartbeatInterval) * time.Second
	}
	if s.OfflineThreshold != nil {
		m.threshold = *s.OfflineThreshold
	}
	if s.DebugMode != nil {
		m.debug = *s.DebugMode
	}
	interval, threshold := m.interval, m.threshold
	m.mu.Unlock()

	m.logger.Info("Heartbeat settings updated", "interval", interval, "offline_threshold", threshold)
	m.publish("settings", true, "")
	return nil
}

func (m *Manager) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	m.register(ctx)
	for {
		m.ping(ctx)

		m.mu.Lock()
		interval := m.interval
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

func (m *Manager) register(ctx context.Context) {
	m.mu.Lock()
	debug := m.debug
	m.mu.Unlock()

	err := m.post(ctx, registerPath, map[string]any{
		"device_id":  m.deviceID,
		"hostname":   m.hostname,
		"ip_address": m.ip,
		"debug_mode": debug,
		"timestamp":  time.Now().Unix(),
	})
	if ctx.Err() != nil {
		return
	}

	m.mu.Lock()
	m.registered = err == nil
	if err != nil {
		m.lastErr = err.Error()
	}
	m.mu.Unlock()

	if err != nil {
		m.logger.Error("Device registration failed", "device_id", m.deviceID, "error", err)
		m.publish("register", false, err.Error())
		return
	}
	m.logger.Info("Device registered", "device_id", m.deviceID)
	m.publish("register", true, "")
}

func (m *Manager) ping(ctx context.Context) {
	err := m.post(ctx, pingPath, map[string]any{
		"device_id":  m.deviceID,
		"hostname":   m.hostname,
		"ip_address": m.ip,
		"timestamp":  time.Now().Unix(),
	})
	if ctx.Err() != nil {
		return
	}

	m.mu.Lock()
	if err == nil {
		m.missed = 0
		m.lastPing = time.Now()
		m.lastErr = ""
	} else {
		m.missed++
		m.lastErr = err.Error()
	}
	missed, threshold, debug := m.missed, m.threshold, m.debug
	m.mu.Unlock()

	metrics.RecordHeartbeatPing(err == nil, missed)

	if err == nil {
		if debug {
			m.logger.Info("Heartbeat sent", "device_id", m.deviceID)
		} else {
			m.logger.Debug("Heartbeat sent", "device_id", m.deviceID)
		}
		m.publish("ping", true, "")
		return
	}

	m.logger.Warn("Heartbeat failed", "missed", missed, "threshold", threshold, "error", err)
	m.publish("ping", false, err.Error())
	if missed == threshold {
		m.logger.Error("Device considered offline", "device_id", m.deviceID, "missed", missed)
		m.publish("offline", false, err.Error())
	}
}

func (m *Manager) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.serverURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode < 300 {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
}

func (m *Manager) publish(action string, success bool, errMsg string) {
	if m.bus == nil {
		return
	}
	m.mu.Lock()
	missed := m.missed
	m.mu.Unlock()

	m.bus.Publish(events.HeartbeatEvent{
		DeviceID:    m.deviceID,
		Action:      action,
		Success:     success,
		MissedPings: missed,
		Error:       errMsg,
		Timestamp:   time.Now().Format(time.RFC3339),
	})
}
