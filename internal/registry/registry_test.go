package registry

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bulutsoft-dev/Transmind-PI/internal/events"
)

const sample = `
active = "lab_rpi_2"

[devices.lab_rpi_1]
name = "Raspberry Pi 3B+"
host = "172.28.117.8"
port = 22
user = "transmind"
password = "secret"
vnc_enabled = true
vnc_port = 5901
novnc_url = "/novnc/lab_rpi_1/vnc.html"
stream_host = "172.28.117.8"
stream_port = 8889

[devices.lab_rpi_2]
name = "Raspberry Pi 4"
host = "172.28.248.105"
port = 22
stream_port = 8888
`

func writeRegistry(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "devices.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAndLookup(t *testing.T) {
	t.Setenv(ActiveEnv, "")
	r, err := New(writeRegistry(t, sample), "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if got := len(r.All()); got != 2 {
		t.Fatalf("devices = %d, want 2", got)
	}

	d, err := r.Get("lab_rpi_1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if d.ID != "lab_rpi_1" || d.SSHPort != 22 || !d.VNCEnabled {
		t.Errorf("unexpected device %+v", d)
	}

	if _, err := r.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get unknown = %v, want ErrNotFound", err)
	}

	active, err := r.Active()
	if err != nil || active.ID != "lab_rpi_2" {
		t.Errorf("Active = %+v, %v; want lab_rpi_2 from file", active, err)
	}

	list := r.List()
	if list[0].ID != "lab_rpi_1" || list[1].ID != "lab_rpi_2" {
		t.Errorf("List order = %s, %s", list[0].ID, list[1].ID)
	}
}

func TestActiveResolution(t *testing.T) {
	path := writeRegistry(t, sample)

	t.Run("configured override wins", func(t *testing.T) {
		t.Setenv(ActiveEnv, "lab_rpi_2")
		r, err := New(path, "lab_rpi_1")
		if err != nil {
			t.Fatal(err)
		}
		if r.ActiveID() != "lab_rpi_1" {
			t.Errorf("ActiveID = %q", r.ActiveID())
		}
	})

	t.Run("environment fallback", func(t *testing.T) {
		t.Setenv(ActiveEnv, "lab_rpi_1")
		r, err := New(path, "")
		if err != nil {
			t.Fatal(err)
		}
		if r.ActiveID() != "lab_rpi_1" {
			t.Errorf("ActiveID = %q", r.ActiveID())
		}
	})

	t.Run("first sorted id", func(t *testing.T) {
		t.Setenv(ActiveEnv, "")
		noActive := strings.Replace(sample, `active = "lab_rpi_2"`, "", 1)
		r, err := New(writeRegistry(t, noActive), "")
		if err != nil {
			t.Fatal(err)
		}
		if r.ActiveID() != "lab_rpi_1" {
			t.Errorf("ActiveID = %q", r.ActiveID())
		}
	})

	t.Run("unknown override", func(t *testing.T) {
		r, err := New(path, "ghost")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := r.Active(); !errors.Is(err, ErrNotFound) {
			t.Errorf("Active = %v, want ErrNotFound", err)
		}
	})
}

func TestMissingFileIsEmpty(t *testing.T) {
	t.Setenv(ActiveEnv, "")
	r, err := New(filepath.Join(t.TempDir(), "absent.toml"), "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(r.All()) != 0 {
		t.Error("expected empty registry")
	}
	if _, err := r.Active(); !errors.Is(err, ErrNotFound) {
		t.Errorf("Active = %v, want ErrNotFound", err)
	}
}

func TestInvalidFile(t *testing.T) {
	if _, err := New(writeRegistry(t, "[devices.x\nname ="), ""); err == nil {
		t.Error("expected parse error")
	}
}

func TestStreamURL(t *testing.T) {
	tests := []struct {
		name string
		dev  Device
		want string
	}{
		{"stream host", Device{Host: "10.0.0.1", StreamHost: "10.0.0.2", StreamPort: 8889}, "http://10.0.0.2:8889/stream"},
		{"falls back to host", Device{Host: "10.0.0.1", StreamPort: 8888}, "http://10.0.0.1:8888/stream"},
		{"ipv6", Device{StreamHost: "fd00::1", StreamPort: 80}, "http://[fd00::1]:80/stream"},
		{"no port", Device{Host: "10.0.0.1"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StreamURL(tt.dev); got != tt.want {
				t.Errorf("StreamURL = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPasswordNotSerialized(t *testing.T) {
	data, err := json.Marshal(Device{ID: "a", Password: "secret"})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "secret") {
		t.Errorf("password leaked: %s", data)
	}
}

func TestReloadPublishesEvent(t *testing.T) {
	t.Setenv(ActiveEnv, "")
	path := writeRegistry(t, sample)
	bus := events.New()
	received := make(chan events.RegistryReloadedEvent, 1)
	unsub := bus.Subscribe(func(e events.RegistryReloadedEvent) { received <- e })
	defer unsub()

	r, err := New(path, "", WithBus(bus))
	if err != nil {
		t.Fatal(err)
	}

	updated := sample + `
[devices.lab_rpi_3]
name = "Spare"
host = "172.28.0.3"
`
	if err := os.WriteFile(path, []byte(updated), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := r.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	select {
	case ev := <-received:
		if ev.Devices != 3 || ev.Active != "lab_rpi_2" {
			t.Errorf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no reload event")
	}
}

func TestWatchReloadsOnChange(t *testing.T) {
	t.Setenv(ActiveEnv, "")
	path := writeRegistry(t, sample)
	r, err := New(path, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Watch(20 * time.Millisecond); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer r.Close()

	changed := strings.Replace(sample, `active = "lab_rpi_2"`, `active = "lab_rpi_1"`, 1)
	if err := os.WriteFile(path, []byte(changed), 0o600); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for r.ActiveID() != "lab_rpi_1" {
		if time.Now().After(deadline) {
			t.Fatalf("ActiveID = %q after file change", r.ActiveID())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
