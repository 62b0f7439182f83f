package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Monitor     MonitorConfig     `yaml:"monitor"`
	Target      TargetConfig      `yaml:"target"`
	Tools       ToolsConfig       `yaml:"tools"`
	Preferences PreferencesConfig `yaml:"preferences"`
	Scripts     ScriptsConfig     `yaml:"scripts"`
	Log         LogConfig         `yaml:"log"`
}

type ServerConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AuthToken      string   `yaml:"auth_token"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxConnections int      `yaml:"max_connections"`
}

type MonitorConfig struct {
	PollInterval      time.Duration `yaml:"poll_interval"`
	SnapshotInterval  time.Duration `yaml:"snapshot_interval"`
	BroadcastThrottle time.Duration `yaml:"broadcast_throttle"`
}

// TargetConfig names the application being watched. Process is the
// identifier used for the presence/multiplicity channels.
type TargetConfig struct {
	Name        string        `yaml:"name"`
	Process     string        `yaml:"process"`
	Camera      SamplerConfig `yaml:"camera"`
	ScreenShare SamplerConfig `yaml:"screen_share"`
}

type SamplerConfig struct {
	Process     string        `yaml:"process"`
	Sentinel    string        `yaml:"sentinel"`
	ScratchFile string        `yaml:"scratch_file"`
	Duration    time.Duration `yaml:"duration"`
}

type ToolsConfig struct {
	Sample    string `yaml:"sample"`
	Grep      string `yaml:"grep"`
	Shortcuts string `yaml:"shortcuts"`
	Shell     string `yaml:"shell"`
}

// PreferencesConfig holds the user-facing toggles. They are re-read on every
// action, so a hot reload changes behavior immediately.
type PreferencesConfig struct {
	ToggleDND          bool   `yaml:"toggle_dnd" json:"toggleDnd"`
	RunCustomScripts   bool   `yaml:"run_custom_scripts" json:"runCustomScripts"`
	HideWindowOnLaunch bool   `yaml:"hide_window_on_launch" json:"hideWindowOnLaunch"`
	DNDOnShortcut      string `yaml:"dnd_on_shortcut" json:"dndOnShortcut"`
	DNDOffShortcut     string `yaml:"dnd_off_shortcut" json:"dndOffShortcut"`
}

type ScriptsConfig struct {
	Dir string `yaml:"dir"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Enabled:        true,
			Port:           8765,
			Host:           "127.0.0.1",
			MaxConnections: 16,
		},
		Monitor: MonitorConfig{
			PollInterval:      time.Second,
			SnapshotInterval:  5 * time.Second,
			BroadcastThrottle: 100 * time.Millisecond,
		},
		Target: TargetConfig{
			Name:    "Zoom",
			Process: "zoom.us",
			Camera: SamplerConfig{
				Process:     "zoom.us",
				Sentinel:    "CMIOGraph::DoWork",
				ScratchFile: "/tmp/zoomsample",
				Duration:    100 * time.Millisecond,
			},
			ScreenShare: SamplerConfig{
				Process:     "CptHost",
				Sentinel:    "capture thread",
				ScratchFile: "/tmp/zoomsamplescreensharing",
				Duration:    100 * time.Millisecond,
			},
		},
		Tools: ToolsConfig{
			Sample:    "/usr/bin/sample",
			Grep:      "/usr/bin/grep",
			Shortcuts: "/usr/bin/shortcuts",
			Shell:     "/bin/bash",
		},
		Preferences: PreferencesConfig{
			DNDOnShortcut:  "dndon",
			DNDOffShortcut: "dndoff",
		},
		Scripts: ScriptsConfig{
			Dir: "~/.camwatch",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

// Load reads the YAML file at path over the defaults. A missing file is not
// an error: camwatch runs on defaults until the user writes one.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate reports the first setting that would make the reactor misbehave.
func (c *Config) Validate() error {
	if c.Monitor.PollInterval <= 0 {
		return fmt.Errorf("%w: monitor.poll_interval must be positive", ErrInvalid)
	}
	if c.Target.Process == "" {
		return fmt.Errorf("%w: target.process is required", ErrInvalid)
	}
	for name, s := range map[string]SamplerConfig{
		"camera":       c.Target.Camera,
		"screen_share": c.Target.ScreenShare,
	} {
		if s.Process == "" || s.Sentinel == "" || s.ScratchFile == "" {
			return fmt.Errorf("%w: target.%s needs process, sentinel and scratch_file", ErrInvalid, name)
		}
		if s.Duration <= 0 {
			return fmt.Errorf("%w: target.%s.duration must be positive", ErrInvalid, name)
		}
	}
	if c.Target.Camera.ScratchFile == c.Target.ScreenShare.ScratchFile {
		return fmt.Errorf("%w: camera and screen_share must use distinct scratch files", ErrInvalid)
	}
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		return fmt.Errorf("%w: server.port %d out of range", ErrInvalid, c.Server.Port)
	}
	return nil
}

// ScriptDir returns the scripts directory with a leading ~ expanded.
func (c *Config) ScriptDir() string {
	return ExpandHome(c.Scripts.Dir)
}

// ExpandHome replaces a leading "~" with the current user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// DefaultPath is where camwatch looks for its config when --config is not given.
func DefaultPath() string {
	return ExpandHome("~/.camwatch/config.yaml")
}
