// Package config holds the immutable, process-wide configuration. It is
// loaded once at startup from environment variables and read-only afterwards.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Whisper holds the speech-recognition model selection and the fixed
// decoding parameters. The decoding parameters are deliberately not
// environment-tunable: they were chosen to suppress hallucination loops on
// long recordings.
type Whisper struct {
	Device       string // "cpu" or "cuda"
	ModelDefault string
	ModelLocal   string
	CLIPath      string
	ModelDir     string

	BeamSize                int
	ConditionOnPreviousText bool
	Temperature             float64
	CompressionRatioCeiling float64
	LogProbFloor            float64
	NoSpeechThreshold       float64
	VADFilter               bool
}

// Queue holds the broker address and the per-job execution limits.
type Queue struct {
	RedisURL         string
	TimeLimit        time.Duration
	SoftTimeLimit    time.Duration
	MaxRetries       int
	RetryDelay       time.Duration
	Concurrency      int
	MaxJobsPerWorker int // worker recycles its components after this many jobs
}

// Webhook holds the intake server binding and shared secret.
type Webhook struct {
	Host   string
	Port   int
	Secret string
}

// Compression holds the one-pass re-encode settings for final videos.
type Compression struct {
	Enabled      bool
	CRF          int
	Preset       string
	AudioBitrate string
}

// Streaming holds the PCM chunking parameters for the streamed pipeline.
type Streaming struct {
	SampleRate       int
	ChunkDuration    float64 // seconds
	MinAudioDuration float64 // seconds
	BufferSize       int     // bytes
}

// Notion holds the catalog credentials and well-known database ids.
type Notion struct {
	Token              string
	DiscordMessageDBID string
	VideosDBID         string
	DriveUploadsDBID   string
}

// Drive holds the object-store credentials and upload retry policy.
type Drive struct {
	AccessToken      string
	UploadMaxRetries int
	UploadRetryDelay time.Duration

	// Base folders per channel policy, one env var each.
	FolderMarketOutlook  string
	FolderMarketAnalysis string
	FolderAuditProcess   string
}

// YTDLP holds the extractor tool invocation knobs.
type YTDLP struct {
	Path            string
	Retries         int
	FragmentRetries int
	SocketTimeout   int // seconds, passed through to the tool
	UserAgent       string
	AcceptLanguage  string
}

// Config is the process-wide registry. All fields are read-only after Load.
type Config struct {
	ScratchDir   string
	FFmpegPath   string
	DiscordToken string

	Whisper     Whisper
	Queue       Queue
	Webhook     Webhook
	Compression Compression
	Streaming   Streaming
	Notion      Notion
	Drive       Drive
	YTDLP       YTDLP
}

// Load reads the full configuration from the environment. It returns an
// error for missing required variables; the caller is expected to treat that
// as fatal.
func Load() (*Config, error) {
	cfg := &Config{
		ScratchDir:   ParseString("SCRATCH_DIR", "temp_downloads"),
		FFmpegPath:   ParseString("FFMPEG_PATH", "ffmpeg"),
		DiscordToken: ParseString("DISCORD_USER_TOKEN", ""),
		Whisper: Whisper{
			Device:       ParseString("WHISPER_DEVICE", "cpu"),
			ModelDefault: ParseString("WHISPER_MODEL_DEFAULT", "small"),
			ModelLocal:   ParseString("WHISPER_MODEL_LOCAL", "medium"),
			CLIPath:      ParseString("WHISPER_CLI_PATH", "whisper-cli"),
			ModelDir:     ParseString("WHISPER_MODEL_DIR", "models"),

			BeamSize:                5,
			ConditionOnPreviousText: false,
			Temperature:             0.1,
			CompressionRatioCeiling: 2.0,
			LogProbFloor:            -0.6,
			NoSpeechThreshold:       0.2,
			VADFilter:               false,
		},
		Queue: Queue{
			RedisURL:         ParseString("REDIS_URL", "redis://localhost:6379/0"),
			TimeLimit:        ParseSeconds("CELERY_TASK_TIME_LIMIT", 14400*time.Second),
			SoftTimeLimit:    ParseSeconds("CELERY_TASK_SOFT_TIME_LIMIT", 14100*time.Second),
			MaxRetries:       ParseInt("CELERY_TASK_MAX_RETRIES", 3),
			RetryDelay:       ParseSeconds("CELERY_TASK_RETRY_DELAY", 60*time.Second),
			Concurrency:      ParseInt("CELERY_WORKER_CONCURRENCY", 1),
			MaxJobsPerWorker: ParseInt("CELERY_MAX_TASKS_PER_CHILD", 10),
		},
		Webhook: Webhook{
			Host:   ParseString("WEBHOOK_HOST", "0.0.0.0"),
			Port:   ParseInt("WEBHOOK_PORT", 8000),
			Secret: ParseString("WEBHOOK_SECRET", ""),
		},
		Compression: Compression{
			Enabled:      ParseBool("COMPRESSION_ENABLED", false),
			CRF:          ParseInt("COMPRESSION_CRF", 28),
			Preset:       ParseString("COMPRESSION_PRESET", "fast"),
			AudioBitrate: ParseString("COMPRESSION_AUDIO_BITRATE", "128k"),
		},
		Streaming: Streaming{
			SampleRate:       ParseInt("STREAMING_SAMPLE_RATE", 16000),
			ChunkDuration:    ParseFloat("STREAMING_CHUNK_DURATION", 30.0),
			MinAudioDuration: ParseFloat("STREAMING_MIN_AUDIO_DURATION", 5.0),
			BufferSize:       ParseInt("STREAMING_BUFFER_SIZE", 65536),
		},
		Notion: Notion{
			Token:              ParseString("NOTION_TOKEN", ""),
			DiscordMessageDBID: ParseString("DISCORD_MESSAGE_DB_ID", ""),
			VideosDBID:         ParseString("VIDEOS_DB_ID", ""),
			DriveUploadsDBID:   ParseString("DRIVE_UPLOADS_DB_ID", ""),
		},
		Drive: Drive{
			AccessToken:          ParseString("DRIVE_ACCESS_TOKEN", ""),
			UploadMaxRetries:     ParseInt("DRIVE_UPLOAD_MAX_RETRIES", 3),
			UploadRetryDelay:     ParseSeconds("DRIVE_UPLOAD_RETRY_DELAY", 2*time.Second),
			FolderMarketOutlook:  ParseString("DRIVE_FOLDER_MARKET_OUTLOOK", ""),
			FolderMarketAnalysis: ParseString("DRIVE_FOLDER_MARKET_ANALYSIS_STREAMS", ""),
			FolderAuditProcess:   ParseString("DRIVE_FOLDER_AUDIT_PROCESS", ""),
		},
		YTDLP: YTDLP{
			Path:            ParseString("YTDLP_PATH", "yt-dlp"),
			Retries:         ParseInt("YT_DLP_RETRIES", 10),
			FragmentRetries: ParseInt("YT_DLP_FRAGMENT_RETRIES", 10),
			SocketTimeout:   ParseInt("YT_DLP_SOCKET_TIMEOUT", 20),
			UserAgent:       ParseString("YT_DLP_USER_AGENT", "com.google.android.youtube/19.18.35 (Linux; U; Android 13)"),
			AcceptLanguage:  ParseString("YT_DLP_ACCEPT_LANGUAGE", "en-US,en;q=0.9"),
		},
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.Notion.Token == "" {
		errs = append(errs, errors.New("NOTION_TOKEN is required"))
	}
	if c.Notion.DiscordMessageDBID == "" {
		errs = append(errs, errors.New("DISCORD_MESSAGE_DB_ID is required"))
	}
	if c.Queue.SoftTimeLimit > c.Queue.TimeLimit {
		errs = append(errs, fmt.Errorf("CELERY_TASK_SOFT_TIME_LIMIT (%s) exceeds CELERY_TASK_TIME_LIMIT (%s)",
			c.Queue.SoftTimeLimit, c.Queue.TimeLimit))
	}
	if c.Queue.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("CELERY_WORKER_CONCURRENCY must be >= 1, got %d", c.Queue.Concurrency))
	}
	if c.Streaming.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("STREAMING_SAMPLE_RATE must be positive, got %d", c.Streaming.SampleRate))
	}
	if c.Streaming.ChunkDuration <= 0 {
		errs = append(errs, fmt.Errorf("STREAMING_CHUNK_DURATION must be positive, got %f", c.Streaming.ChunkDuration))
	}
	return errors.Join(errs...)
}
