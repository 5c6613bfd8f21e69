package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	WorkDir string `toml:"work_dir"`
	LogDir  string `toml:"log_dir"`
	APIBind string `toml:"api_bind"`
}

// Database selects the record/job store backend.
type Database struct {
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
}

// Storage configures the blob backend used for originals and artifacts.
type Storage struct {
	Backend             string `toml:"backend"`
	LocalDir            string `toml:"local_dir"`
	SigningKey          string `toml:"signing_key"`
	PublicBaseURL       string `toml:"public_base_url"`
	SupabaseURL         string `toml:"supabase_url"`
	SupabaseKey         string `toml:"supabase_key"`
	Bucket              string `toml:"bucket"`
	SignedURLTTLSeconds int    `toml:"signed_url_ttl_seconds"`
}

// Media contains transcoding tool settings.
type Media struct {
	FFmpegBinary   string `toml:"ffmpeg_binary"`
	FFprobeBinary  string `toml:"ffprobe_binary"`
	AudioFormat    string `toml:"audio_format"`
	AudioBitrate   string `toml:"audio_bitrate"`
	ThumbnailCount int    `toml:"thumbnail_count"`
	RenderCodec    string `toml:"render_codec"`
	RenderBitrate  string `toml:"render_bitrate"`
	RenderFPS      int    `toml:"render_fps"`
}

// LLM contains chat-completion connection settings used for script work.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Speech contains transcription and voice synthesis settings.
type Speech struct {
	APIKey             string `toml:"api_key"`
	BaseURL            string `toml:"base_url"`
	TranscriptionModel string `toml:"transcription_model"`
	TTSModel           string `toml:"tts_model"`
	Voice              string `toml:"voice"`
	TimeoutSeconds     int    `toml:"timeout_seconds"`
}

// Queue selects the job scheduling backend.
type Queue struct {
	Backend   string `toml:"backend"`
	AMQPURL   string `toml:"amqp_url"`
	QueueName string `toml:"queue_name"`
	Workers   int    `toml:"workers"`
}

// Workflow contains pipeline timing configuration.
type Workflow struct {
	StageTimeoutSeconds int `toml:"stage_timeout_seconds"`
	HeartbeatInterval   int `toml:"heartbeat_interval"`
	HeartbeatTimeout    int `toml:"heartbeat_timeout"`
	WorkRetentionHours  int `toml:"work_retention_hours"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for Reelsmith.
//
// Configuration sections by subsystem:
//   - Paths: data, scratch and log directories plus the API bind address
//   - Database: sqlite (single instance) or postgres (shared)
//   - Storage: local filesystem or Supabase object storage
//   - Media: ffmpeg/ffprobe binaries and render defaults
//   - LLM: script enhancement and summaries
//   - Speech: transcription and voice synthesis
//   - Queue: in-process scheduler or RabbitMQ broker
//   - Workflow: stage timeout and lease heartbeats
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Database Database `toml:"database"`
	Storage  Storage  `toml:"storage"`
	Media    Media    `toml:"media"`
	LLM      LLM      `toml:"llm"`
	Speech   Speech   `toml:"speech"`
	Queue    Queue    `toml:"queue"`
	Workflow Workflow `toml:"workflow"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("reelsmith.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.WorkDir, c.Paths.LogDir}
	if c.Storage.Backend == StorageLocal {
		dirs = append(dirs, c.Storage.LocalDir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabaseDSN returns the connection string for the configured driver. The
// sqlite driver defaults to a file inside the data directory.
func (c *Config) DatabaseDSN() string {
	if dsn := strings.TrimSpace(c.Database.DSN); dsn != "" {
		return dsn
	}
	return filepath.Join(c.Paths.DataDir, "reelsmith.db")
}

// LockPath returns the daemon single-instance lock location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "reelsmith.lock")
}

// LogPath returns the daemon log file location.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.LogDir, "reelsmith.log")
}

// StageTimeout returns the hard per-stage deadline.
func (c *Config) StageTimeout() time.Duration {
	return time.Duration(c.Workflow.StageTimeoutSeconds) * time.Second
}

// HeartbeatInterval returns how often active jobs refresh their video lease.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Workflow.HeartbeatInterval) * time.Second
}

// HeartbeatTimeout returns the lease age after which a job is considered abandoned.
func (c *Config) HeartbeatTimeout() time.Duration {
	return time.Duration(c.Workflow.HeartbeatTimeout) * time.Second
}

// SignedURLTTL returns the default lifetime of signed artifact URLs.
func (c *Config) SignedURLTTL() time.Duration {
	return time.Duration(c.Storage.SignedURLTTLSeconds) * time.Second
}

// GenerativeLive reports whether any live provider credentials are configured.
// Without them the pipeline runs the deterministic fallback provider.
func (c *Config) GenerativeLive() bool {
	return strings.TrimSpace(c.LLM.APIKey) != "" || strings.TrimSpace(c.Speech.APIKey) != ""
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
