package ffmpeg

import (
	"fmt"
	"strings"
)

// OptionType represents a strongly typed FFmpeg input option
type OptionType string

// FFmpeg option constants
const (
	OptionGeneratePTS        OptionType = "genpts"
	OptionIgnoreDTS          OptionType = "igndts"
	OptionDiscardCorrupt     OptionType = "discardcorrupt"
	OptionIgnoreErrors       OptionType = "ignore_err"
	OptionWallclockTimestamp OptionType = "wallclock_ts"
	OptionLowLatency         OptionType = "low_latency"
	OptionNoBuffer           OptionType = "nobuffer"
	OptionThreadQueue1024    OptionType = "thread_queue_1024"
	OptionThreadQueue4096    OptionType = "thread_queue_4096"
)

// ExclusiveGroup represents a group of mutually exclusive options
type ExclusiveGroup string

const (
	GroupThreadQueue ExclusiveGroup = "thread_queue"
)

// Option describes an input flag that can be enabled from configuration
type Option struct {
	Key            OptionType     `json:"key"`
	Name           string         `json:"name"`
	Description    string         `json:"description"`
	AppDefault     bool           `json:"app_default"`
	ExclusiveGroup ExclusiveGroup `json:"exclusive_group,omitempty"`
	ConflictsWith  []OptionType   `json:"conflicts_with,omitempty"`
}

// AllOptions contains all supported input options
var AllOptions = []Option{
	{
		Key:           OptionGeneratePTS,
		Name:          "Generate PTS",
		Description:   "Generate presentation timestamps for cameras that send none",
		ConflictsWith: []OptionType{OptionWallclockTimestamp},
	},
	{
		Key:         OptionIgnoreDTS,
		Name:        "Ignore DTS",
		Description: "Ignore decode timestamps to handle corrupted streams",
	},
	{
		Key:         OptionDiscardCorrupt,
		Name:        "Discard Corrupt",
		Description: "Drop corrupted packets instead of decoding them",
		AppDefault:  true,
	},
	{
		Key:         OptionIgnoreErrors,
		Name:        "Ignore Errors",
		Description: "Continue decoding despite stream errors",
	},
	{
		Key:           OptionWallclockTimestamp,
		Name:          "Wallclock Timestamps",
		Description:   "Use wallclock as timestamps",
		ConflictsWith: []OptionType{OptionGeneratePTS},
	},
	{
		Key:         OptionLowLatency,
		Name:        "Low Latency Mode",
		Description: "Set the low_delay codec flag",
		AppDefault:  true,
	},
	{
		Key:         OptionNoBuffer,
		Name:        "No Input Buffer",
		Description: "Reduce latency introduced by input buffering",
		AppDefault:  true,
	},
	{
		Key:            OptionThreadQueue1024,
		Name:           "Large Thread Queue",
		Description:    "Use 1024 thread queue size",
		ExclusiveGroup: GroupThreadQueue,
	},
	{
		Key:            OptionThreadQueue4096,
		Name:           "Extra Large Thread Queue",
		Description:    "Use 4096 thread queue size",
		ExclusiveGroup: GroupThreadQueue,
	},
}

// GetOptionByKey returns an option by its key
func GetOptionByKey(key OptionType) *Option {
	for i := range AllOptions {
		if AllOptions[i].Key == key {
			return &AllOptions[i]
		}
	}
	return nil
}

// GetDefaultOptions returns the options that are enabled by default
func GetDefaultOptions() []OptionType {
	var defaults []OptionType
	for _, option := range AllOptions {
		if option.AppDefault {
			defaults = append(defaults, option.Key)
		}
	}
	return defaults
}

// ParseOptions converts configuration strings into option keys, rejecting
// unknown keys.
func ParseOptions(keys []string) ([]OptionType, error) {
	opts := make([]OptionType, 0, len(keys))
	for _, k := range keys {
		key := OptionType(strings.TrimSpace(k))
		if GetOptionByKey(key) == nil {
			return nil, fmt.Errorf("unknown ffmpeg option %q", k)
		}
		opts = append(opts, key)
	}
	return opts, ValidateOptions(opts)
}

// ValidateOptions checks for conflicts and exclusive group violations
func ValidateOptions(selected []OptionType) error {
	groups := make(map[ExclusiveGroup][]string)
	selectedSet := make(map[OptionType]bool, len(selected))
	for _, key := range selected {
		selectedSet[key] = true
		if option := GetOptionByKey(key); option != nil && option.ExclusiveGroup != "" {
			groups[option.ExclusiveGroup] = append(groups[option.ExclusiveGroup], option.Name)
		}
	}

	for group, names := range groups {
		if len(names) > 1 {
			return fmt.Errorf("multiple options from exclusive group '%s' selected: %s", group, strings.Join(names, ", "))
		}
	}

	for _, key := range selected {
		option := GetOptionByKey(key)
		if option == nil {
			continue
		}
		for _, conflict := range option.ConflictsWith {
			if selectedSet[conflict] {
				name := string(conflict)
				if c := GetOptionByKey(conflict); c != nil {
					name = c.Name
				}
				return fmt.Errorf("option '%s' conflicts with '%s'", option.Name, name)
			}
		}
	}

	return nil
}

// inputArgs renders options as arguments placed before -i.
func inputArgs(options []OptionType) []string {
	var args []string
	var fflags []string

	for _, option := range options {
		switch option {
		case OptionGeneratePTS:
			fflags = append(fflags, "+genpts")
		case OptionIgnoreDTS:
			fflags = append(fflags, "+igndts")
		case OptionDiscardCorrupt:
			fflags = append(fflags, "+discardcorrupt")
		case OptionNoBuffer:
			fflags = append(fflags, "+nobuffer")
		case OptionIgnoreErrors:
			args = append(args, "-err_detect", "ignore_err")
		case OptionWallclockTimestamp:
			args = append(args, "-use_wallclock_as_timestamps", "1")
		case OptionLowLatency:
			args = append(args, "-flags", "+low_delay")
		case OptionThreadQueue1024:
			args = append(args, "-thread_queue_size", "1024")
		case OptionThreadQueue4096:
			args = append(args, "-thread_queue_size", "4096")
		}
	}

	if len(fflags) > 0 {
		args = append(args, "-fflags", strings.Join(fflags, ""))
	}
	return args
}
