package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bulutsoft-dev/Transmind-PI/internal/logging"
)

// EnvPrefix is prepended to every `env` tag.
const EnvPrefix = "TRANSMIND_"

// LoadConfig fills the exported fields of opts, a pointer to a flat options
// struct, with precedence CLI flag > environment > config file > default.
//
// Field tags:
//
//	toml:"section.key"   dotted path into the TOML file named by the Config field
//	env:"KEY"            read from TRANSMIND_KEY
//	envalias:"KEY"       read from KEY verbatim when TRANSMIND_KEY is unset
//
// Flags explicitly set on cmd are left untouched. cmd may be nil.
func LoadConfig(opts any, cmd *cobra.Command) error {
	v := reflect.ValueOf(opts)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config: expected pointer to struct, got %T", opts)
	}
	v = v.Elem()
	t := v.Type()

	changed := make(map[string]bool)
	if cmd != nil {
		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			if f.Changed {
				changed[f.Name] = true
			}
		})
	}

	file, err := readTOML(configPath(v))
	if err != nil {
		return err
	}

	for i := range t.NumField() {
		field, sf := v.Field(i), t.Field(i)
		if changed[fieldNameToFlag(sf.Name)] {
			continue
		}

		if path := sf.Tag.Get("toml"); path != "" && file != nil {
			if value := getNestedValue(file, path); value != nil {
				if err := setFieldValue(field, value); err != nil {
					return fmt.Errorf("config: %s: %w", path, err)
				}
			}
		}

		if env, ok := lookupEnv(sf); ok {
			if err := setFieldValueFromString(field, env); err != nil {
				return fmt.Errorf("config: %s%s: %w", EnvPrefix, sf.Tag.Get("env"), err)
			}
		}
	}

	return nil
}

func configPath(v reflect.Value) string {
	if f := v.FieldByName("Config"); f.IsValid() && f.Kind() == reflect.String {
		return f.String()
	}
	return ""
}

// readTOML parses path. A missing file is not an error.
func readTOML(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var out map[string]any
	if err := toml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return out, nil
}

func lookupEnv(sf reflect.StructField) (string, bool) {
	if key := sf.Tag.Get("env"); key != "" {
		if val, ok := os.LookupEnv(EnvPrefix + key); ok && val != "" {
			return val, true
		}
	}
	if alias := sf.Tag.Get("envalias"); alias != "" {
		if val, ok := os.LookupEnv(alias); ok && val != "" {
			return val, true
		}
	}
	return "", false
}

// fieldNameToFlag mirrors humacli's flag naming: "HealthTimeoutMs" ->
// "health-timeout-ms", "TranscodeURL" -> "transcode-url".
func fieldNameToFlag(name string) string {
	runes := []rune(name)
	var b strings.Builder
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if !unicode.IsUpper(prev) || nextLower {
				b.WriteByte('-')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// getNestedValue walks a dotted path through decoded TOML tables.
func getNestedValue(data map[string]any, path string) any {
	current := data
	parts := strings.Split(path, ".")
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			return nil
		}
		current = next
	}
	return current[parts[len(parts)-1]]
}

// setFieldValue assigns a decoded TOML value to field.
func setFieldValue(field reflect.Value, value any) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", value)
		}
		field.SetString(s)
	case reflect.Bool:
		b, ok := value.(bool)
		if !ok {
			return fmt.Errorf("expected bool, got %T", value)
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int64:
		switch n := value.(type) {
		case int64:
			field.SetInt(n)
		case int:
			field.SetInt(int64(n))
		default:
			return fmt.Errorf("expected integer, got %T", value)
		}
	case reflect.Float64:
		switch n := value.(type) {
		case float64:
			field.SetFloat(n)
		case int64:
			field.SetFloat(float64(n))
		default:
			return fmt.Errorf("expected number, got %T", value)
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return nil
		}
		arr, ok := value.([]any)
		if !ok {
			return fmt.Errorf("expected array, got %T", value)
		}
		out := make([]string, 0, len(arr))
		for _, item := range arr {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		field.Set(reflect.ValueOf(out))
	}
	return nil
}

// setFieldValueFromString parses an environment value into field. Slices are
// comma separated.
func setFieldValueFromString(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return nil
		}
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		field.Set(reflect.ValueOf(parts))
	}
	return nil
}

// LoadLoggingConfig reads the [logging] table from the config file. Keys
// other than level and format are module levels. Defaults are returned when
// the file is missing or unreadable.
func LoadLoggingConfig(configPath string) logging.Config {
	cfg := logging.Config{Level: "info", Format: "text", Modules: make(map[string]string)}

	file, err := readTOML(configPath)
	if err != nil || file == nil {
		return cfg
	}
	table, ok := file["logging"].(map[string]any)
	if !ok {
		return cfg
	}

	for key, raw := range table {
		value, ok := raw.(string)
		if !ok {
			continue
		}
		switch key {
		case "level":
			cfg.Level = value
		case "format":
			cfg.Format = value
		default:
			cfg.Modules[key] = value
		}
	}
	return cfg
}
