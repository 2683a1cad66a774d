package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/spf13/cobra"
)

type testOptions struct {
	Config string

	Port           string   `toml:"server.port" env:"PORT"`
	SourceType     string   `toml:"source.type" env:"SOURCE_TYPE"`
	Broadcast      bool     `toml:"broadcast.enabled" env:"BROADCAST_ENABLED"`
	MaxFailures    int      `toml:"recovery.max_failures" env:"RECOVERY_MAX_FAILURES"`
	Ratio          float64  `toml:"capture.ratio" env:"CAPTURE_RATIO"`
	Modules        []string `toml:"logging.extra" env:"LOGGING_EXTRA"`
	RegistryActive string   `toml:"registry.active" env:"REGISTRY_ACTIVE" envalias:"ACTIVE_DEVICE"`
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

const sampleTOML = `
[server]
port = ":9000"

[source]
type = "transcoded"

[broadcast]
enabled = true

[recovery]
max_failures = 7

[capture]
ratio = 1.5

[logging]
level = "debug"
stream = "warn"
extra = ["a", "b"]

[registry]
active = "lab_rpi_1"
`

func TestLoadConfigFromTOML(t *testing.T) {
	opts := &testOptions{Config: writeFile(t, "config.toml", sampleTOML), Port: ":5000"}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	want := testOptions{
		Config:         opts.Config,
		Port:           ":9000",
		SourceType:     "transcoded",
		Broadcast:      true,
		MaxFailures:    7,
		Ratio:          1.5,
		Modules:        []string{"a", "b"},
		RegistryActive: "lab_rpi_1",
	}
	if !reflect.DeepEqual(*opts, want) {
		t.Errorf("got %+v\nwant %+v", *opts, want)
	}
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	t.Setenv("TRANSMIND_PORT", ":7000")
	t.Setenv("TRANSMIND_BROADCAST_ENABLED", "false")
	t.Setenv("TRANSMIND_LOGGING_EXTRA", "x, y ,z")

	opts := &testOptions{Config: writeFile(t, "config.toml", sampleTOML)}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if opts.Port != ":7000" {
		t.Errorf("Port = %q, want env value", opts.Port)
	}
	if opts.Broadcast {
		t.Error("Broadcast should be overridden to false")
	}
	if !reflect.DeepEqual(opts.Modules, []string{"x", "y", "z"}) {
		t.Errorf("Modules = %v", opts.Modules)
	}
	if opts.SourceType != "transcoded" {
		t.Errorf("SourceType = %q, file value should survive", opts.SourceType)
	}
}

func TestLoadConfigEnvAlias(t *testing.T) {
	t.Setenv("ACTIVE_DEVICE", "from_alias")

	opts := &testOptions{}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if opts.RegistryActive != "from_alias" {
		t.Errorf("RegistryActive = %q", opts.RegistryActive)
	}

	t.Setenv("TRANSMIND_REGISTRY_ACTIVE", "prefixed")
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if opts.RegistryActive != "prefixed" {
		t.Errorf("prefixed variable should win over alias, got %q", opts.RegistryActive)
	}
}

func TestLoadConfigChangedFlagsWin(t *testing.T) {
	t.Setenv("TRANSMIND_PORT", ":7000")

	opts := &testOptions{Config: writeFile(t, "config.toml", sampleTOML)}
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().StringVar(&opts.Port, "port", ":5000", "")
	if err := cmd.Flags().Parse([]string{"--port", ":1234"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	if err := LoadConfig(opts, cmd); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if opts.Port != ":1234" {
		t.Errorf("Port = %q, CLI flag should win", opts.Port)
	}
	if opts.MaxFailures != 7 {
		t.Errorf("MaxFailures = %d, unrelated fields still load", opts.MaxFailures)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		toml string
		env  map[string]string
	}{
		{"invalid toml", "[server\nport = 1", nil},
		{"type mismatch", "[recovery]\nmax_failures = \"lots\"", nil},
		{"bad env int", "", map[string]string{"TRANSMIND_RECOVERY_MAX_FAILURES": "many"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			opts := &testOptions{Config: writeFile(t, "config.toml", tt.toml)}
			if err := LoadConfig(opts, nil); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	opts := &testOptions{Config: filepath.Join(t.TempDir(), "absent.toml"), Port: ":5000"}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("missing file should not be an error: %v", err)
	}
	if opts.Port != ":5000" {
		t.Errorf("defaults should be kept, got %q", opts.Port)
	}
}

func TestLoadLoggingConfig(t *testing.T) {
	cfg := LoadLoggingConfig(writeFile(t, "config.toml", sampleTOML))
	if cfg.Level != "debug" || cfg.Format != "text" {
		t.Errorf("level/format = %q/%q", cfg.Level, cfg.Format)
	}
	if cfg.Modules["stream"] != "warn" {
		t.Errorf("stream module level = %q", cfg.Modules["stream"])
	}
	if _, ok := cfg.Modules["extra"]; ok {
		t.Error("non-string keys should be ignored")
	}

	if def := LoadLoggingConfig(""); def.Level != "info" {
		t.Errorf("default level = %q", def.Level)
	}
}

func TestFieldNameToFlag(t *testing.T) {
	tests := map[string]string{
		"Port":                 "port",
		"HealthTimeoutMs":      "health-timeout-ms",
		"CaptureVidPid":        "capture-vid-pid",
		"HeartbeatIntervalSec": "heartbeat-interval-sec",
		"TranscodeURL":         "transcode-url",
		"HeartbeatServerURL":   "heartbeat-server-url",
		"CaptureUSBID":         "capture-usbid",
		"FPS":                  "fps",
	}
	for in, want := range tests {
		if got := fieldNameToFlag(in); got != want {
			t.Errorf("fieldNameToFlag(%q) = %q, want %q", in, got, want)
		}
	}
}
