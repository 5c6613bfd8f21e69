package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeDatabase()
	if err := c.normalizeStorage(); err != nil {
		return err
	}
	c.normalizeMedia()
	c.normalizeLLM()
	c.normalizeSpeech()
	c.normalizeQueue()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeDatabase() {
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	switch c.Database.Driver {
	case "", "sqlite3":
		c.Database.Driver = DriverSQLite
	case "postgresql", "pq":
		c.Database.Driver = DriverPostgres
	}
	c.Database.DSN = strings.TrimSpace(c.Database.DSN)
	if c.Database.DSN == "" {
		if value, ok := os.LookupEnv("REELSMITH_DATABASE_DSN"); ok {
			c.Database.DSN = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeStorage() error {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = StorageLocal
	}
	var err error
	if strings.TrimSpace(c.Storage.LocalDir) == "" {
		c.Storage.LocalDir = defaultStorageDir
	}
	if c.Storage.LocalDir, err = expandPath(c.Storage.LocalDir); err != nil {
		return fmt.Errorf("storage.local_dir: %w", err)
	}
	c.Storage.SigningKey = strings.TrimSpace(c.Storage.SigningKey)
	c.Storage.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.Storage.PublicBaseURL), "/")
	if c.Storage.PublicBaseURL == "" && c.Storage.Backend == StorageLocal {
		c.Storage.PublicBaseURL = "http://" + c.Paths.APIBind + "/api/blobs"
	}
	c.Storage.SupabaseURL = strings.TrimSpace(c.Storage.SupabaseURL)
	if c.Storage.SupabaseURL == "" {
		if value, ok := os.LookupEnv("SUPABASE_URL"); ok {
			c.Storage.SupabaseURL = strings.TrimSpace(value)
		}
	}
	c.Storage.SupabaseKey = strings.TrimSpace(c.Storage.SupabaseKey)
	if c.Storage.SupabaseKey == "" {
		if value, ok := os.LookupEnv("SUPABASE_KEY"); ok {
			c.Storage.SupabaseKey = strings.TrimSpace(value)
		}
	}
	c.Storage.Bucket = strings.TrimSpace(c.Storage.Bucket)
	if c.Storage.Bucket == "" {
		c.Storage.Bucket = defaultBucket
	}
	if c.Storage.SignedURLTTLSeconds <= 0 {
		c.Storage.SignedURLTTLSeconds = defaultSignedURLTTLSeconds
	}
	return nil
}

func (c *Config) normalizeMedia() {
	c.Media.FFmpegBinary = strings.TrimSpace(c.Media.FFmpegBinary)
	if c.Media.FFmpegBinary == "" {
		c.Media.FFmpegBinary = defaultFFmpegBinary
	}
	c.Media.FFprobeBinary = strings.TrimSpace(c.Media.FFprobeBinary)
	if c.Media.FFprobeBinary == "" {
		c.Media.FFprobeBinary = defaultFFprobeBinary
	}
	c.Media.AudioFormat = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(c.Media.AudioFormat), "."))
	if c.Media.AudioFormat == "" {
		c.Media.AudioFormat = defaultAudioFormat
	}
	c.Media.AudioBitrate = strings.TrimSpace(c.Media.AudioBitrate)
	if c.Media.AudioBitrate == "" {
		c.Media.AudioBitrate = defaultAudioBitrate
	}
	if c.Media.ThumbnailCount <= 0 {
		c.Media.ThumbnailCount = defaultThumbnailCount
	}
	c.Media.RenderCodec = strings.TrimSpace(c.Media.RenderCodec)
	if c.Media.RenderCodec == "" {
		c.Media.RenderCodec = defaultRenderCodec
	}
	c.Media.RenderBitrate = strings.TrimSpace(c.Media.RenderBitrate)
	if c.Media.RenderBitrate == "" {
		c.Media.RenderBitrate = defaultRenderBitrate
	}
	if c.Media.RenderFPS <= 0 {
		c.Media.RenderFPS = defaultRenderFPS
	}
}

func (c *Config) normalizeLLM() {
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	c.LLM.Referer = strings.TrimSpace(c.LLM.Referer)
	if c.LLM.Referer == "" {
		c.LLM.Referer = defaultLLMReferer
	}
	c.LLM.Title = strings.TrimSpace(c.LLM.Title)
	if c.LLM.Title == "" {
		c.LLM.Title = defaultLLMTitle
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		if value, ok := os.LookupEnv("REELSMITH_LLM_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("OPENROUTER_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeSpeech() {
	c.Speech.BaseURL = strings.TrimRight(strings.TrimSpace(c.Speech.BaseURL), "/")
	if c.Speech.BaseURL == "" {
		c.Speech.BaseURL = defaultSpeechBaseURL
	}
	c.Speech.TranscriptionModel = strings.TrimSpace(c.Speech.TranscriptionModel)
	if c.Speech.TranscriptionModel == "" {
		c.Speech.TranscriptionModel = defaultTranscriptionModel
	}
	c.Speech.TTSModel = strings.TrimSpace(c.Speech.TTSModel)
	if c.Speech.TTSModel == "" {
		c.Speech.TTSModel = defaultTTSModel
	}
	c.Speech.Voice = strings.TrimSpace(c.Speech.Voice)
	if c.Speech.Voice == "" {
		c.Speech.Voice = defaultVoice
	}
	if c.Speech.TimeoutSeconds <= 0 {
		c.Speech.TimeoutSeconds = defaultSpeechTimeoutSeconds
	}
	c.Speech.APIKey = strings.TrimSpace(c.Speech.APIKey)
	if c.Speech.APIKey == "" {
		if value, ok := os.LookupEnv("REELSMITH_SPEECH_API_KEY"); ok {
			c.Speech.APIKey = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("OPENAI_API_KEY"); ok {
			c.Speech.APIKey = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeQueue() {
	c.Queue.Backend = strings.ToLower(strings.TrimSpace(c.Queue.Backend))
	switch c.Queue.Backend {
	case "", "in-process", "memory":
		c.Queue.Backend = QueueInProcess
	case "amqp", "rabbit":
		c.Queue.Backend = QueueRabbitMQ
	}
	c.Queue.AMQPURL = strings.TrimSpace(c.Queue.AMQPURL)
	if value, ok := os.LookupEnv("REELSMITH_AMQP_URL"); ok && strings.TrimSpace(value) != "" {
		c.Queue.AMQPURL = strings.TrimSpace(value)
	}
	if c.Queue.AMQPURL == "" {
		c.Queue.AMQPURL = defaultAMQPURL
	}
	c.Queue.QueueName = strings.TrimSpace(c.Queue.QueueName)
	if c.Queue.QueueName == "" {
		c.Queue.QueueName = defaultQueueName
	}
	if c.Queue.Workers <= 0 {
		c.Queue.Workers = defaultQueueWorkers
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
