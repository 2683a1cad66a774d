// Package registry holds the device registry: the set of known streaming
// nodes and which one is active. It is read from a TOML file and reloaded
// when the file changes.
package registry

import (
	"errors"
	"fmt"
	"maps"
	"net"
	"os"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/bulutsoft-dev/Transmind-PI/internal/config"
	"github.com/bulutsoft-dev/Transmind-PI/internal/events"
	"github.com/bulutsoft-dev/Transmind-PI/internal/logging"
)

// ActiveEnv is consulted when no active device is configured.
const ActiveEnv = "ACTIVE_DEVICE"

// ErrNotFound is returned for unknown device ids.
var ErrNotFound = errors.New("device not found")

// Device is one registered node.
type Device struct {
	ID          string `toml:"-" json:"id" example:"lab_rpi_1" doc:"Device identifier"`
	Name        string `toml:"name" json:"name" example:"Raspberry Pi 3B+" doc:"Display name"`
	Description string `toml:"description" json:"description,omitempty" doc:"Free form description"`
	Host        string `toml:"host" json:"host" example:"172.28.117.8" doc:"Management address"`
	Port        int    `toml:"port" json:"port,omitempty" example:"22" doc:"Management port"`
	SSHPort     int    `toml:"ssh_port" json:"ssh_port,omitempty" example:"22" doc:"SSH port"`
	User        string `toml:"user" json:"user,omitempty" doc:"Login user"`
	Password    string `toml:"password" json:"-"`
	VNCEnabled  bool   `toml:"vnc_enabled" json:"vnc_enabled" doc:"Whether VNC is available"`
	VNCPort     int    `toml:"vnc_port" json:"vnc_port,omitempty" example:"5901" doc:"VNC port"`
	NoVNCURL    string `toml:"novnc_url" json:"novnc_url,omitempty" example:"/novnc/lab_rpi_1/vnc.html" doc:"noVNC page"`
	StreamHost  string `toml:"stream_host" json:"stream_host,omitempty" example:"172.28.117.8" doc:"Host serving the MJPEG stream"`
	StreamPort  int    `toml:"stream_port" json:"stream_port,omitempty" example:"8889" doc:"Port serving the MJPEG stream"`
}

// StreamURL returns the device's MJPEG endpoint, or "" when the device has
// no stream port. The management host is used when no stream host is set.
func StreamURL(d Device) string {
	host := d.StreamHost
	if host == "" {
		host = d.Host
	}
	if host == "" || d.StreamPort <= 0 {
		return ""
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(d.StreamPort)) + "/stream"
}

// File is the on-disk layout.
type File struct {
	Active  string            `toml:"active"`
	Devices map[string]Device `toml:"devices"`
}

// LoadFile reads a registry file. A missing file is an empty registry.
func LoadFile(path string) (File, error) {
	var f File
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return File{Devices: map[string]Device{}}, nil
		}
		return f, fmt.Errorf("failed to read device registry: %w", err)
	}
	if err := toml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("failed to parse device registry: %w", err)
	}
	if f.Devices == nil {
		f.Devices = map[string]Device{}
	}
	for id, d := range f.Devices {
		d.ID = id
		if d.SSHPort == 0 {
			d.SSHPort = d.Port
		}
		f.Devices[id] = d
	}
	return f, nil
}

// Registry is the in-memory registry.
type Registry struct {
	path     string
	override string
	bus      *events.Bus
	logger   logging.Logger

	mu   sync.RWMutex
	file File

	watcher *config.Watcher[File]
}

// Option configures a Registry.
type Option func(*Registry)

// WithBus publishes a RegistryReloadedEvent after every reload.
func WithBus(bus *events.Bus) Option {
	return func(r *Registry) {
		r.bus = bus
	}
}

// New loads the registry at path. active overrides the file's active
// device; when empty the ACTIVE_DEVICE environment variable is used.
func New(path, active string, opts ...Option) (*Registry, error) {
	if active == "" {
		active = os.Getenv(ActiveEnv)
	}
	r := &Registry{
		path:     path,
		override: active,
		logger:   logging.GetLogger("registry"),
	}
	for _, opt := range opts {
		opt(r)
	}

	f, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	r.file = f
	r.logger.Info("Device registry loaded", "path", path, "devices", len(f.Devices), "active", r.ActiveID())
	return r, nil
}

// ActiveID resolves the active device id: the configured override, then the
// file's active key, then the first id in sorted order.
func (r *Registry) ActiveID() string {
	if r.override != "" {
		return r.override
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.file.Active != "" {
		return r.file.Active
	}
	ids := slices.Sorted(maps.Keys(r.file.Devices))
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

// Active returns the active device.
func (r *Registry) Active() (Device, error) {
	id := r.ActiveID()
	if id == "" {
		return Device{}, ErrNotFound
	}
	return r.Get(id)
}

// Get returns one device.
func (r *Registry) Get(id string) (Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.file.Devices[id]
	if !ok {
		return Device{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return d, nil
}

// All returns a copy of every device keyed by id.
func (r *Registry) All() map[string]Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.file.Devices)
}

// List returns every device sorted by id.
func (r *Registry) List() []Device {
	all := r.All()
	devices := make([]Device, 0, len(all))
	for _, id := range slices.Sorted(maps.Keys(all)) {
		devices = append(devices, all[id])
	}
	return devices
}

// Reload re-reads the registry file.
func (r *Registry) Reload() error {
	f, err := LoadFile(r.path)
	if err != nil {
		return err
	}
	r.apply(f)
	return nil
}

func (r *Registry) apply(f File) {
	r.mu.Lock()
	r.file = f
	r.mu.Unlock()

	active := r.ActiveID()
	r.logger.Info("Device registry reloaded", "devices", len(f.Devices), "active", active)
	if r.bus != nil {
		r.bus.Publish(events.RegistryReloadedEvent{
			Devices:   len(f.Devices),
			Active:    active,
			Timestamp: time.Now().Format(time.RFC3339),
		})
	}
}

// Watch reloads the registry whenever its file changes.
func (r *Registry) Watch(debounce time.Duration) error {
	opts := []config.WatcherOption[File]{}
	if debounce > 0 {
		opts = append(opts, config.WithDebounce[File](debounce))
	}
	w := config.NewWatcher(r.path, LoadFile, r.logger, opts...)
	w.OnReload(r.apply)
	if err := w.Start(); err != nil {
		return fmt.Errorf("watch device registry: %w", err)
	}
	r.watcher = w
	return nil
}

// Close stops watching.
func (r *Registry) Close() error {
	if r.watcher == nil {
		return nil
	}
	return r.watcher.Stop()
}
