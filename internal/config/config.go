package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every key when read from the environment,
// e.g. batch_size -> TAGBRIDGE_BATCH_SIZE.
const EnvPrefix = "TAGBRIDGE"

// Keys shared between flag bindings and Load.
const (
	KeyEnv             = "env"
	KeyLogFile         = "log_file"
	KeyServer          = "server"
	KeyRemoteTimeout   = "remote_timeout"
	KeyEngineURL       = "engine_url"
	KeyWorkflowPath    = "workflow_path"
	KeyEngineInputDir  = "engine_input_dir"
	KeyJobTimeout      = "job_timeout"
	KeyBatchSize       = "batch_size"
	KeySleep           = "sleep"
	KeyCooldown        = "cooldown"
	KeyPacing          = "pacing"
	KeyOnce            = "once"
	KeyTempDir         = "temp_dir"
	KeyNotify          = "notify"
	KeyProfilePath     = "profile_path"
	KeyScoreNode       = "score_node"
	KeyCaptionNode     = "caption_node"
	KeyTagsField       = "tags_field"
	KeyPostgresDSN     = "postgres_dsn"
	KeyRedisAddr       = "redis_addr"
	KeyRedisQueueKey   = "redis_queue_key"
	KeyRedisProcessing = "redis_processing_key"
	KeyStatusAddr      = "status_addr"
	KeyOTelEndpoint    = "otel_endpoint"
	KeyOTelService     = "otel_service_name"
	KeyTraceStdout     = "trace_stdout"
)

type Config struct {
	Env     string
	LogFile string

	Remote     RemoteConfig
	Engine     EngineConfig
	Bridge     BridgeConfig
	Profile    ProfileConfig
	Normalizer NormalizerConfig
	Postgres   PostgresConfig
	Redis      RedisConfig
	Status     StatusConfig
	OTel       OTelConfig
}

type RemoteConfig struct {
	BaseURL string
	Timeout time.Duration
}

type EngineConfig struct {
	BaseURL      string
	WorkflowPath string
	// InputDir is where the engine reads LoadImage files from. Empty disables staging.
	InputDir   string
	JobTimeout time.Duration
}

type BridgeConfig struct {
	BatchSize     int
	SleepInterval time.Duration
	Cooldown      time.Duration
	Pacing        time.Duration
	Once          bool
	TempDir       string
	Notify        bool
}

type ProfileConfig struct {
	Path string
}

// NormalizerConfig designates which engine nodes carry which semantic output.
type NormalizerConfig struct {
	TagsField   string
	ScoreNode   string
	CaptionNode string
}

type PostgresConfig struct {
	DSN string
}

type RedisConfig struct {
	Addr          string
	QueueKey      string
	ProcessingKey string
}

type StatusConfig struct {
	Addr string
}

type OTelConfig struct {
	Endpoint    string
	ServiceName string
	Stdout      bool
}

func (c PostgresConfig) Enabled() bool { return c.DSN != "" }
func (c RedisConfig) Enabled() bool    { return c.Addr != "" }
func (c StatusConfig) Enabled() bool   { return c.Addr != "" }
func (c OTelConfig) Enabled() bool     { return c.Endpoint != "" || c.Stdout }

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// New returns a viper instance wired to defaults and TAGBRIDGE_* environment
// variables. Callers bind command flags onto it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()

	v.SetDefault(KeyEnv, "development")
	v.SetDefault(KeyServer, "http://127.0.0.1:5000")
	v.SetDefault(KeyRemoteTimeout, 30*time.Second)
	v.SetDefault(KeyEngineURL, "http://127.0.0.1:8188")
	v.SetDefault(KeyWorkflowPath, "fashion_tagger_api.json")
	v.SetDefault(KeyEngineInputDir, filepath.Join(home, "ComfyUI", "input"))
	v.SetDefault(KeyJobTimeout, 300*time.Second)
	v.SetDefault(KeyBatchSize, 10)
	v.SetDefault(KeySleep, 5*time.Minute)
	v.SetDefault(KeyCooldown, time.Minute)
	v.SetDefault(KeyPacing, time.Second)
	v.SetDefault(KeyTempDir, "./temp_images")
	v.SetDefault(KeyNotify, true)
	v.SetDefault(KeyProfilePath, "preference_profile.json")
	v.SetDefault(KeyTagsField, "tags")
	v.SetDefault(KeyScoreNode, "7")
	v.SetDefault(KeyCaptionNode, "6")
	v.SetDefault(KeyRedisQueueKey, "tagbridge:notify")
	v.SetDefault(KeyRedisProcessing, "tagbridge:notify:processing")
	v.SetDefault(KeyOTelService, "tag-bridge")
}

// Load reads .env (if present) and resolves the configuration once.
// The returned Config is passed by value into every component constructor.
func Load(v *viper.Viper) (Config, error) {
	_ = godotenv.Load(".env")

	cfg := Config{
		Env:     v.GetString(KeyEnv),
		LogFile: v.GetString(KeyLogFile),
		Remote: RemoteConfig{
			BaseURL: strings.TrimRight(strings.TrimSpace(v.GetString(KeyServer)), "/"),
			Timeout: v.GetDuration(KeyRemoteTimeout),
		},
		Engine: EngineConfig{
			BaseURL:      strings.TrimRight(strings.TrimSpace(v.GetString(KeyEngineURL)), "/"),
			WorkflowPath: v.GetString(KeyWorkflowPath),
			InputDir:     v.GetString(KeyEngineInputDir),
			JobTimeout:   v.GetDuration(KeyJobTimeout),
		},
		Bridge: BridgeConfig{
			BatchSize:     v.GetInt(KeyBatchSize),
			SleepInterval: v.GetDuration(KeySleep),
			Cooldown:      v.GetDuration(KeyCooldown),
			Pacing:        v.GetDuration(KeyPacing),
			Once:          v.GetBool(KeyOnce),
			TempDir:       v.GetString(KeyTempDir),
			Notify:        v.GetBool(KeyNotify),
		},
		Profile: ProfileConfig{
			Path: v.GetString(KeyProfilePath),
		},
		Normalizer: NormalizerConfig{
			TagsField:   v.GetString(KeyTagsField),
			ScoreNode:   v.GetString(KeyScoreNode),
			CaptionNode: v.GetString(KeyCaptionNode),
		},
		Postgres: PostgresConfig{
			DSN: v.GetString(KeyPostgresDSN),
		},
		Redis: RedisConfig{
			Addr:          v.GetString(KeyRedisAddr),
			QueueKey:      v.GetString(KeyRedisQueueKey),
			ProcessingKey: v.GetString(KeyRedisProcessing),
		},
		Status: StatusConfig{
			Addr: v.GetString(KeyStatusAddr),
		},
		OTel: OTelConfig{
			Endpoint:    v.GetString(KeyOTelEndpoint),
			ServiceName: v.GetString(KeyOTelService),
			Stdout:      v.GetBool(KeyTraceStdout),
		},
	}

	if cfg.Remote.BaseURL == "" {
		return Config{}, errors.New("server URL is required")
	}
	if cfg.Engine.BaseURL == "" {
		return Config{}, errors.New("engine URL is required")
	}
	if cfg.Bridge.BatchSize <= 0 {
		return Config{}, errors.New("batch size must be positive")
	}
	if cfg.Engine.JobTimeout <= 0 {
		cfg.Engine.JobTimeout = 300 * time.Second
	}

	return cfg, nil
}
