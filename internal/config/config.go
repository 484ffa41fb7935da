package config

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type Config struct {
	PostgresHost            string `mapstructure:"postgres_host"              validate:"required"`
	PostgresUsername        string `mapstructure:"postgres_username"          validate:"required"`
	PostgresPassword        string `mapstructure:"postgres_password"          validate:"required"`
	PostgresPort            string `mapstructure:"postgres_port"              validate:"required"`
	PostgresDatabase        string `mapstructure:"postgres_database"          validate:"required"`
	DBIntervalCB            uint32 `mapstructure:"db_interval_cb"`
	DBConsecutiveFailuresCB uint32 `mapstructure:"db_consecutive_failures_cb"`

	KafkaBootstrapServer       string `mapstructure:"kafka_bootstrap_server"        validate:"required"`
	KafkaUsername              string `mapstructure:"kafka_username"                validate:"required"`
	KafkaPassword              string `mapstructure:"kafka_password"                validate:"required"`
	KafkaRadioEventsTopic      string `mapstructure:"kafka_radio_events_topic"      validate:"required"`
	KafkaRadioEventsGroupID    string `mapstructure:"kafka_radio_events_group_id"   validate:"required"`
	KafkaJobsTopic             string `mapstructure:"kafka_jobs_topic"              validate:"required"`
	KafkaJobsGroupID           string `mapstructure:"kafka_jobs_group_id"           validate:"required"`
	KafkaIntervalCB            uint32 `mapstructure:"kafka_interval_cb"`
	KafkaConsecutiveFailuresCB uint32 `mapstructure:"kafka_consecutive_failures_cb"`

	MinioEndpointURL            string `mapstructure:"minio_endpoint_url"              validate:"required"`
	MinioAccessKey              string `mapstructure:"minio_access_key"                validate:"required"`
	MinioSecretKey              string `mapstructure:"minio_secret_key"                validate:"required"`
	MinioBucketName             string `mapstructure:"minio_bucket_name"               validate:"required"`
	MinioPathPrefix             string `mapstructure:"minio_path_prefix"`
	MinioMaxRetryAttempts       uint   `mapstructure:"minio_max_retry_attempts"`
	MinioRetryBackoffMinSeconds int    `mapstructure:"minio_retry_backoff_min_seconds"`
	MinioRetryBackoffMaxSeconds int    `mapstructure:"minio_retry_backoff_max_seconds"`
	MinioTimeout                int    `mapstructure:"minio_timeout"`
	MinioLinkTTLMinutes         int    `mapstructure:"minio_link_ttl_minutes"`
	MinioIntervalCB             uint32 `mapstructure:"minio_interval_cb"`
	MinioConsecutiveFailuresCB  uint32 `mapstructure:"minio_consecutive_failures_cb"`

	RedisAddr                  string `mapstructure:"redis_addr"                    validate:"required"`
	RedisPassword              string `mapstructure:"redis_password"`
	RedisDB                    int    `mapstructure:"redis_db"`
	RedirectTTLMinutes         int    `mapstructure:"redirect_ttl_minutes"`
	RedisIntervalCB            uint32 `mapstructure:"redis_interval_cb"`
	RedisConsecutiveFailuresCB uint32 `mapstructure:"redis_consecutive_failures_cb"`

	STTBaseUrl               string `mapstructure:"stt_base_url"                validate:"required"`
	STTModel                 string `mapstructure:"stt_model"                   validate:"required"`
	STTCostCenter            string `mapstructure:"stt_cost_center"`
	STTTimeout               int    `mapstructure:"stt_timeout"`
	STTRetryMaxAttempts      uint   `mapstructure:"stt_retry_max_attempts"`
	STTRetryMinBackoff       int    `mapstructure:"stt_retry_min_backoff"`
	STTRetryMaxBackoff       int    `mapstructure:"stt_retry_max_backoff"`
	STTIntervalCB            uint32 `mapstructure:"stt_interval_cb"`
	STTConsecutiveFailuresCB uint32 `mapstructure:"stt_consecutive_failures_cb"`

	ShiftFeedBaseUrl            string `mapstructure:"shift_feed_base_url"            validate:"required"`
	ShiftFeedTimeout            int    `mapstructure:"shift_feed_timeout"`
	ShiftFeedRetryMaxAttempts   uint   `mapstructure:"shift_feed_retry_max_attempts"`
	ShiftFeedRetryMinBackoff    int    `mapstructure:"shift_feed_retry_min_backoff"`
	ShiftFeedRetryMaxBackoff    int    `mapstructure:"shift_feed_retry_max_backoff"`
	ShiftCacheTTLSeconds        int    `mapstructure:"shift_cache_ttl_seconds"`
	ShiftIntervalCB             uint32 `mapstructure:"shift_interval_cb"`
	ShiftConsecutiveFailuresCB  uint32 `mapstructure:"shift_consecutive_failures_cb"`
	TwilioIntervalCB            uint32 `mapstructure:"twilio_interval_cb"`
	TwilioConsecutiveFailuresCB uint32 `mapstructure:"twilio_consecutive_failures_cb"`

	// Duplicate resolution windows. The selection buffer bounds the store
	// query on start_time; the tight buffer pads the in-memory overlap check.
	DedupeSelectionBufferSeconds float64 `mapstructure:"dedupe_selection_buffer_seconds"`
	DedupeTightBufferSeconds     float64 `mapstructure:"dedupe_tight_buffer_seconds"`

	PageFromNumber      string `mapstructure:"page_from_number"      validate:"required"`
	TestRecipientPhone  string `mapstructure:"test_recipient_phone"`
	NumberCacheTTLSecs  int    `mapstructure:"number_cache_ttl_seconds"`
	ChannelCacheTTLSecs int    `mapstructure:"channel_cache_ttl_seconds"`

	PoolSize           int `mapstructure:"pool_size"`
	DeadLetterPoolSize int `mapstructure:"dead_letter_pool_size"`

	DeadLetterMaxRetries int `mapstructure:"dead_letter_max_retries"`
	DeadLetterLimit      int `mapstructure:"dead_letter_limit"`
	DeadLetterInterval   int `mapstructure:"dead_letter_interval"`
	DeadLetterRetryDelay int `mapstructure:"dead_letter_retry_delay"`

	HealthCheckerMonitorInterval int `mapstructure:"health_checker_monitor_interval"`

	LogLevel    string `mapstructure:"log_level"`
	LogFilePath string `mapstructure:"log_file_path"`

	PrometheusPort    string `mapstructure:"prometheus_port"`
	PrometheusTimeout int    `mapstructure:"prometheus_timeout"`
}

var Conf Config

func init() {
	err := loadEnvConfig(&Conf)
	if err != nil {
		// Incomplete config is reported here but only kills the process when
		// a component actually needs the missing value; tests stub Conf
		// directly and never see the environment.
		zap.NewExample().Warn("config incomplete", zap.String("error", err.Error()))
	}
}

func loadEnvConfig(cfg *Config) error {
	viper.AutomaticEnv()
	viper.AllowEmptyEnv(true)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setupDefaults()

	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")

	err := viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError

		ok := errors.As(err, &configFileNotFoundError)
		if !ok {
			return err
		}
	}

	err = viper.Unmarshal(cfg)
	if err != nil {
		return err
	}

	err = validator.New().Struct(cfg)
	if err != nil {
		return err
	}

	return nil
}

func setupDefaults() {
	confType := reflect.TypeOf(Conf)
	for i := range confType.NumField() {
		field := confType.Field(i)
		viper.SetDefault(field.Tag.Get("mapstructure"), "")
	}

	viper.SetDefault("LOG_LEVEL", "INFO")
	viper.SetDefault("LOG_FILE_PATH", "./access.log")
	viper.SetDefault("POOL_SIZE", "10")
	viper.SetDefault("MINIO_MAX_RETRY_ATTEMPTS", "3")
	viper.SetDefault("MINIO_RETRY_BACKOFF_MIN_SECONDS", "1")
	viper.SetDefault("MINIO_RETRY_BACKOFF_MAX_SECONDS", "10")
	viper.SetDefault("MINIO_TIMEOUT", "60")
	viper.SetDefault("MINIO_LINK_TTL_MINUTES", "1440")
	viper.SetDefault("REDIRECT_TTL_MINUTES", "60")
	viper.SetDefault("STT_TIMEOUT", "30")
	viper.SetDefault("STT_RETRY_MAX_ATTEMPTS", "3")
	viper.SetDefault("STT_RETRY_MIN_BACKOFF", "1")
	viper.SetDefault("STT_RETRY_MAX_BACKOFF", "10")
	viper.SetDefault("SHIFT_FEED_TIMEOUT", "10")
	viper.SetDefault("SHIFT_FEED_RETRY_MAX_ATTEMPTS", "3")
	viper.SetDefault("SHIFT_FEED_RETRY_MIN_BACKOFF", "1")
	viper.SetDefault("SHIFT_FEED_RETRY_MAX_BACKOFF", "5")
	viper.SetDefault("SHIFT_CACHE_TTL_SECONDS", "300")
	viper.SetDefault("DEDUPE_SELECTION_BUFFER_SECONDS", "60")
	viper.SetDefault("DEDUPE_TIGHT_BUFFER_SECONDS", "1")
	viper.SetDefault("NUMBER_CACHE_TTL_SECONDS", "300")
	viper.SetDefault("CHANNEL_CACHE_TTL_SECONDS", "300")
	viper.SetDefault("DEAD_LETTER_MAX_RETRIES", "2")
	viper.SetDefault("DEAD_LETTER_LIMIT", "100")
	viper.SetDefault("DEAD_LETTER_INTERVAL", "1")
	viper.SetDefault("DEAD_LETTER_RETRY_DELAY", "5")
	viper.SetDefault("DEAD_LETTER_POOL_SIZE", "3")
	viper.SetDefault("HEALTH_CHECKER_MONITOR_INTERVAL", "60")
	viper.SetDefault("DB_INTERVAL_CB", "30")
	viper.SetDefault("DB_CONSECUTIVE_FAILURES_CB", "3")
	viper.SetDefault("MINIO_INTERVAL_CB", "300")
	viper.SetDefault("MINIO_CONSECUTIVE_FAILURES_CB", "3")
	viper.SetDefault("KAFKA_INTERVAL_CB", "30")
	viper.SetDefault("KAFKA_CONSECUTIVE_FAILURES_CB", "5")
	viper.SetDefault("REDIS_INTERVAL_CB", "30")
	viper.SetDefault("REDIS_CONSECUTIVE_FAILURES_CB", "3")
	viper.SetDefault("STT_INTERVAL_CB", "30")
	viper.SetDefault("STT_CONSECUTIVE_FAILURES_CB", "3")
	viper.SetDefault("SHIFT_INTERVAL_CB", "30")
	viper.SetDefault("SHIFT_CONSECUTIVE_FAILURES_CB", "3")
	viper.SetDefault("TWILIO_INTERVAL_CB", "30")
	viper.SetDefault("TWILIO_CONSECUTIVE_FAILURES_CB", "5")
	viper.SetDefault("PROMETHEUS_PORT", "2112")
	viper.SetDefault("PROMETHEUS_TIMEOUT", "60")
}
