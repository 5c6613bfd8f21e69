package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateMedia(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case DriverSQLite:
		return nil
	case DriverPostgres:
		if c.Database.DSN == "" {
			return errors.New("database.dsn must be set when database.driver is postgres (or set REELSMITH_DATABASE_DSN)")
		}
		return nil
	default:
		return fmt.Errorf("database.driver: unsupported value %q (want sqlite or postgres)", c.Database.Driver)
	}
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case StorageLocal:
		if c.Storage.LocalDir == "" {
			return errors.New("storage.local_dir must be set when storage.backend is local")
		}
	case StorageSupabase:
		if c.Storage.SupabaseURL == "" {
			return errors.New("storage.supabase_url must be set when storage.backend is supabase (or set SUPABASE_URL)")
		}
		if c.Storage.SupabaseKey == "" {
			return errors.New("storage.supabase_key must be set when storage.backend is supabase (or set SUPABASE_KEY)")
		}
		if c.Storage.Bucket == "" {
			return errors.New("storage.bucket must be set when storage.backend is supabase")
		}
	default:
		return fmt.Errorf("storage.backend: unsupported value %q (want local or supabase)", c.Storage.Backend)
	}
	return nil
}

func (c *Config) validateMedia() error {
	switch c.Media.AudioFormat {
	case "mp3", "wav", "aac", "m4a", "flac", "ogg":
	default:
		return fmt.Errorf("media.audio_format: unsupported value %q", c.Media.AudioFormat)
	}
	if c.Media.ThumbnailCount > 100 {
		return errors.New("media.thumbnail_count must be 100 or fewer")
	}
	return nil
}

func (c *Config) validateQueue() error {
	switch c.Queue.Backend {
	case QueueInProcess:
	case QueueRabbitMQ:
		if !strings.HasPrefix(c.Queue.AMQPURL, "amqp://") && !strings.HasPrefix(c.Queue.AMQPURL, "amqps://") {
			return fmt.Errorf("queue.amqp_url must be an amqp:// or amqps:// url, got %q", c.Queue.AMQPURL)
		}
		if c.Database.Driver != DriverPostgres {
			return errors.New("queue.backend rabbitmq requires database.driver postgres so every worker shares job state")
		}
	default:
		return fmt.Errorf("queue.backend: unsupported value %q (want inprocess or rabbitmq)", c.Queue.Backend)
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.stage_timeout_seconds": c.Workflow.StageTimeoutSeconds,
		"workflow.heartbeat_interval":    c.Workflow.HeartbeatInterval,
		"workflow.heartbeat_timeout":     c.Workflow.HeartbeatTimeout,
	}); err != nil {
		return err
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	if c.Workflow.WorkRetentionHours < 0 {
		return errors.New("workflow.work_retention_hours must be >= 0")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
