package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

// Config 聚合整个客户端的配置项。
type Config struct {
	Backend   BackendConfig   `yaml:"backend"`
	Recording RecordingConfig `yaml:"recording"`
	Storage   StorageConfig   `yaml:"storage"`
	Playback  PlaybackConfig  `yaml:"playback"`
	Control   ControlConfig   `yaml:"control"`
	Health    HealthConfig    `yaml:"health"`
	Log       LogConfig       `yaml:"log"`
	Notify    NotifyConfig    `yaml:"notify"`
}

// BackendConfig 描述后端网关配置。
type BackendConfig struct {
	BaseURL  string        `yaml:"base_url"`
	Language string        `yaml:"language"`
	Timeout  time.Duration `yaml:"timeout"` // 0 表示不设超时
}

// RecordingConfig 描述录音会话配置。
type RecordingConfig struct {
	MinDuration   time.Duration `yaml:"min_duration"`
	SampleRate    int           `yaml:"sample_rate"`
	Channels      int           `yaml:"channels"`
	SettleDelay   time.Duration `yaml:"settle_delay"`
	TimerInterval time.Duration `yaml:"timer_interval"`
	Device        string        `yaml:"device"`         // command | file
	DeviceCommand string        `yaml:"device_command"` // e.g. arecord
	InputFile     string        `yaml:"input_file"`     // WAV replayed by the file device
}

// StorageConfig 描述本地持久化配置。
type StorageConfig struct {
	Dir string `yaml:"dir"`
}

// PlaybackConfig 描述音频播放配置。
type PlaybackConfig struct {
	Sink       string `yaml:"sink"`    // discard | command | file
	Command    string `yaml:"command"` // e.g. aplay
	OutputFile string `yaml:"output_file"`
}

// ControlConfig 描述本地控制 API。
type ControlConfig struct {
	Addr string `yaml:"addr"`
}

// Enabled reports whether the control API should be served.
func (c ControlConfig) Enabled() bool {
	return c.Addr != ""
}

// HealthConfig 描述后端健康检查频率。
type HealthConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// NotifyConfig 描述桌面通知。
type NotifyConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the configuration used when neither a file nor the
// environment overrides anything.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL:  "http://localhost:8000",
			Language: "en",
		},
		Recording: RecordingConfig{
			MinDuration:   200 * time.Millisecond,
			SampleRate:    16000,
			Channels:      1,
			SettleDelay:   50 * time.Millisecond,
			TimerInterval: 50 * time.Millisecond,
			Device:        "command",
			DeviceCommand: "arecord",
		},
		Storage: StorageConfig{
			Dir: defaultStorageDir(),
		},
		Playback: PlaybackConfig{
			Sink:    "discard",
			Command: "aplay",
		},
		Health: HealthConfig{
			Interval: 30 * time.Second,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
	}
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile 先读取 YAML 配置文件（可选），再由环境变量覆盖。
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values that would otherwise fail later in confusing ways.
func (c *Config) Validate() error {
	base := strings.TrimSpace(c.Backend.BaseURL)
	if base == "" {
		return fmt.Errorf("backend base url is required")
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		return fmt.Errorf("invalid backend base url %q: must start with http:// or https://", base)
	}
	c.Backend.BaseURL = strings.TrimRight(base, "/")

	if c.Recording.MinDuration < 0 {
		return fmt.Errorf("invalid minimum recording duration %s", c.Recording.MinDuration)
	}
	if c.Recording.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", c.Recording.SampleRate)
	}
	if c.Recording.Channels <= 0 {
		return fmt.Errorf("invalid channel count %d", c.Recording.Channels)
	}
	if c.Recording.TimerInterval <= 0 {
		c.Recording.TimerInterval = 50 * time.Millisecond
	}

	switch c.Recording.Device {
	case "command", "file":
	default:
		return fmt.Errorf("unknown recording device %q", c.Recording.Device)
	}
	if c.Recording.Device == "file" && c.Recording.InputFile == "" {
		return fmt.Errorf("recording device \"file\" requires an input file")
	}

	switch c.Playback.Sink {
	case "discard", "command", "file":
	default:
		return fmt.Errorf("unknown playback sink %q", c.Playback.Sink)
	}
	if c.Playback.Sink == "file" && c.Playback.OutputFile == "" {
		return fmt.Errorf("playback sink \"file\" requires an output file")
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.Backend.BaseURL = getEnvOrDefault("API_BASE_URL", cfg.Backend.BaseURL)
	cfg.Backend.Language = getEnvOrDefault("CHAT_LANGUAGE", cfg.Backend.Language)

	timeout, err := parseOptionalDurationEnv("BACKEND_TIMEOUT")
	if err != nil {
		return err
	}
	if timeout != nil {
		cfg.Backend.Timeout = *timeout
	}

	minMS, err := parseOptionalIntEnv("MIN_RECORDING_MS")
	if err != nil {
		return err
	}
	if minMS != nil {
		cfg.Recording.MinDuration = time.Duration(*minMS) * time.Millisecond
	}

	rate, err := parseOptionalIntEnv("RECORDING_SAMPLE_RATE")
	if err != nil {
		return err
	}
	if rate != nil {
		cfg.Recording.SampleRate = *rate
	}

	cfg.Recording.Device = getEnvOrDefault("RECORDING_DEVICE", cfg.Recording.Device)
	cfg.Recording.DeviceCommand = getEnvOrDefault("RECORDING_COMMAND", cfg.Recording.DeviceCommand)
	cfg.Recording.InputFile = getEnvOrDefault("RECORDING_INPUT_FILE", cfg.Recording.InputFile)

	cfg.Storage.Dir = getEnvOrDefault("CLIENT_STORAGE_DIR", cfg.Storage.Dir)

	cfg.Playback.Sink = getEnvOrDefault("PLAYBACK_SINK", cfg.Playback.Sink)
	cfg.Playback.Command = getEnvOrDefault("PLAYBACK_COMMAND", cfg.Playback.Command)
	cfg.Playback.OutputFile = getEnvOrDefault("PLAYBACK_OUTPUT_FILE", cfg.Playback.OutputFile)

	cfg.Control.Addr = getEnvOrDefault("CONTROL_ADDR", cfg.Control.Addr)

	interval, err := parseOptionalDurationEnv("HEALTH_INTERVAL")
	if err != nil {
		return err
	}
	if interval != nil {
		cfg.Health.Interval = *interval
	}

	cfg.Log.Level = getEnvOrDefault("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = getEnvOrDefault("LOG_FILE", cfg.Log.File)

	notify, err := parseBoolEnv("NOTIFY_ENABLED", cfg.Notify.Enabled)
	if err != nil {
		return err
	}
	cfg.Notify.Enabled = notify

	return nil
}

func defaultStorageDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".", ".z-tavern")
	}
	return filepath.Join(home, ".z-tavern", "client")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalDurationEnv(key string) (*time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := time.ParseDuration(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
