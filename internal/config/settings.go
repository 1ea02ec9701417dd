package config

import (
	"time"
)

// Compile time variables are set by -ldflags.
var (
	ServiceVersion string
	CommitSHA      string
)

const (
	Development = 1 << iota
	Sandbox
	Staging
	Production
)

const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

type (
	ServiceConfig struct {
		AppConfig     AppConfig           `json:"app_config"`
		Logging       LoggingConfig       `json:"logging"`
		Telemetry     Telemetry           `json:"telemetry"`
		SecretStorage SecretStorageConfig `json:"secret_storage"`
		OpsServer     OpsServerConfig     `json:"ops_server"`
		Cache         CacheConfig         `json:"cache"`
		Storage       StorageConfig       `json:"storage"`
		Queue         QueueConfig         `json:"queue"`
		Outbox        OutboxConfig        `json:"outbox"`
		Backoff       BackoffConfig       `json:"backoff"`
		Webhook       WebhookConfig       `json:"webhook"`
		Task          TaskConfig          `json:"task"`
	}

	AppConfig struct {
		ServiceName    string `envconfig:"APP_SERVICE_NAME" default:"svc-event-bus" json:"service_name"`
		ServiceVersion string `envconfig:"APP_SERVICE_VERSION" default:"0.0.0" json:"service_version"`
		CommitSHA      string `envconfig:"APP_COMMIT_SHA" default:"unknown" json:"commit_sha"`
		Env            string `envconfig:"APP_ENVIRONMENT" default:"unknown" json:"env"`
	}

	LoggingConfig struct {
		Level     string          `envconfig:"LOGGING_LEVEL" default:"info" json:"level"`
		Format    string          `envconfig:"LOGGING_FORMAT" default:"json" json:"format"`
		AccessLog AccessLogConfig `json:"access_log"`
	}

	AccessLogConfig struct {
		Enabled            bool `envconfig:"ACCESS_LOG_ENABLED" default:"true" json:"enabled"`
		LogHealthChecks    bool `envconfig:"ACCESS_LOG_HEALTH_CHECKS" default:"false" json:"log_health_checks"`
		IncludeQueryParams bool `envconfig:"ACCESS_LOG_INCLUDE_QUERY_PARAMS" default:"true" json:"include_query_params"`
	}

	Telemetry struct {
		ExporterType string `envconfig:"OTEL_EXPORTER" default:"grpc" json:"exporter_type"`

		OtelGRPCHost       string `envconfig:"OTEL_HOST" json:"otel_grpc_host"`
		OtelGRPCPort       string `envconfig:"OTEL_PORT" default:"4317" json:"otel_grpc_port"`
		OtelProductCluster string `envconfig:"OTEL_PRODUCT_CLUSTER" json:"otel_product_cluster"`

		Metrics Metrics `json:"metrics"`
		Traces  Traces  `json:"traces"`
	}

	Metrics struct {
		Enabled bool `envconfig:"METRICS_ENABLED" default:"false" json:"enabled"`
	}

	Traces struct {
		Enabled      bool    `envconfig:"TRACES_ENABLED" default:"false" json:"enabled"`
		SamplerRatio float64 `envconfig:"TRACES_SAMPLER_RATIO" default:"1" json:"sampler_ratio"`
	}

	SecretStorageConfig struct {
		Enabled       bool          `envconfig:"VAULT_ENABLED" default:"true" json:"enabled"`
		Address       string        `envconfig:"VAULT_ADDRESS" default:"http://vault:8200" json:"address"`
		Token         string        `envconfig:"VAULT_TOKEN" default:"bottom-Secret" json:"token,omitempty"`
		RoleID        string        `envconfig:"VAULT_ROLE_ID" default:"" json:"role_id,omitempty"`
		SecretID      string        `envconfig:"VAULT_SECRET_ID" default:"" json:"secret_id,omitempty"`
		AuthMethod    string        `envconfig:"VAULT_AUTH_METHOD" default:"token" json:"auth_method"`
		MountPath     string        `envconfig:"VAULT_MOUNT_PATH" default:"svc-event-bus" json:"mount_path"`
		Namespace     string        `envconfig:"VAULT_NAMESPACE" default:"" json:"namespace,omitempty"`
		Timeout       time.Duration `envconfig:"VAULT_TIMEOUT" default:"30s" json:"timeout"`
		MaxRetries    int           `envconfig:"VAULT_MAX_RETRIES" default:"3" json:"max_retries"`
		TLSSkipVerify bool          `envconfig:"VAULT_TLS_SKIP_VERIFY" default:"false" json:"tls_skip_verify"`
		PollInterval  time.Duration `envconfig:"VAULT_POLL_INTERVAL" default:"24h" json:"poll_interval"`
	}

	// OpsServerConfig configures the health, readiness and metrics endpoints.
	OpsServerConfig struct {
		Enabled         bool          `envconfig:"OPS_SERVER_ENABLED" default:"true" json:"enabled"`
		Port            int           `envconfig:"OPS_SERVER_PORT" default:"8089" json:"port"`
		Host            string        `envconfig:"OPS_SERVER_HOST" default:"0.0.0.0" json:"host"`
		ReadTimeout     time.Duration `envconfig:"OPS_SERVER_READ_TIMEOUT" default:"5s" json:"read_timeout"`
		WriteTimeout    time.Duration `envconfig:"OPS_SERVER_WRITE_TIMEOUT" default:"10s" json:"write_timeout"`
		IdleTimeout     time.Duration `envconfig:"OPS_SERVER_IDLE_TIMEOUT" default:"60s" json:"idle_timeout"`
		ShutdownTimeout time.Duration `envconfig:"OPS_SERVER_SHUTDOWN_TIMEOUT" default:"10s" json:"shutdown_timeout"`
	}

	StorageConfig struct {
		Host            string        `envconfig:"POSTGRES_HOST" default:"postgres" json:"host"`
		Port            int           `envconfig:"POSTGRES_PORT" default:"5432" json:"port"`
		Database        string        `envconfig:"POSTGRES_DATABASE" default:"event_bus" json:"database"`
		Username        string        `envconfig:"POSTGRES_USERNAME" default:"postgres" json:"username"`
		Password        string        `envconfig:"POSTGRES_PASSWORD" default:"" json:"password,omitempty"`
		SSLMode         string        `envconfig:"POSTGRES_SSL_MODE" default:"disable" json:"ssl_mode"`
		MaxOpenConns    int           `envconfig:"POSTGRES_MAX_OPEN_CONNS" default:"25" json:"max_open_conns"`
		MaxIdleConns    int           `envconfig:"POSTGRES_MAX_IDLE_CONNS" default:"5" json:"max_idle_conns"`
		ConnMaxLifetime time.Duration `envconfig:"POSTGRES_CONN_MAX_LIFETIME" default:"5m" json:"conn_max_lifetime"`
		ConnMaxIdleTime time.Duration `envconfig:"POSTGRES_CONN_MAX_IDLE_TIME" default:"5m" json:"conn_max_idle_time"`
		ConnectTimeout  time.Duration `envconfig:"POSTGRES_CONNECT_TIMEOUT" default:"10s" json:"connect_timeout"`
		QueryTimeout    time.Duration `envconfig:"POSTGRES_QUERY_TIMEOUT" default:"30s" json:"query_timeout"`
		MigrateOnStart  bool          `envconfig:"POSTGRES_MIGRATE_ON_START" default:"true" json:"migrate_on_start"`
	}

	QueueConfig struct {
		Enabled           bool          `envconfig:"RABBITMQ_ENABLED" default:"true" json:"enabled"`
		URL               string        `envconfig:"RABBITMQ_URL" default:"" json:"-"`
		Scheme            string        `envconfig:"RABBITMQ_SCHEME" default:"amqp" json:"scheme"`
		Host              string        `envconfig:"RABBITMQ_HOST" default:"rabbitmq" json:"host"`
		Port              int           `envconfig:"RABBITMQ_PORT" default:"5672" json:"port"`
		Username          string        `envconfig:"RABBITMQ_USERNAME" default:"admin" json:"username"`
		Password          string        `envconfig:"RABBITMQ_PASSWORD" default:"bottom.Secret" json:"password,omitempty"`
		VirtualHost       string        `envconfig:"RABBITMQ_VIRTUAL_HOST" default:"/" json:"virtual_host"`
		ConnectionName    string        `envconfig:"RABBITMQ_CONNECTION_NAME" default:"" json:"connection_name"`
		ConnectTimeout    time.Duration `envconfig:"RABBITMQ_CONNECT_TIMEOUT" default:"10s" json:"connect_timeout"`
		Heartbeat         time.Duration `envconfig:"RABBITMQ_HEARTBEAT" default:"10s" json:"heartbeat"`
		ReconnectDelay    time.Duration `envconfig:"RABBITMQ_RECONNECT_DELAY" default:"5s" json:"reconnect_delay"`
		PublishingTimeout time.Duration `envconfig:"RABBITMQ_PUBLISHING_TIMEOUT" default:"10s" json:"publishing_timeout"`
		MaxInflight       int           `envconfig:"RABBITMQ_MAX_INFLIGHT" default:"1000" json:"max_inflight"`
	}

	OutboxConfig struct {
		PollInterval time.Duration        `envconfig:"OUTBOX_POLL_INTERVAL" default:"5s" json:"poll_interval"`
		BatchSize    int                  `envconfig:"OUTBOX_BATCH_SIZE" default:"10" json:"batch_size"`
		MaxRetries   MaxRetriesByPriority `json:"max_retries"`
	}

	MaxRetriesByPriority struct {
		Low    int `envconfig:"OUTBOX_MAX_RETRIES_LOW" default:"3" json:"low"`
		Normal int `envconfig:"OUTBOX_MAX_RETRIES_NORMAL" default:"5" json:"normal"`
		High   int `envconfig:"OUTBOX_MAX_RETRIES_HIGH" default:"7" json:"high"`
		Urgent int `envconfig:"OUTBOX_MAX_RETRIES_URGENT" default:"10" json:"urgent"`
	}

	CacheConfig struct {
		Addr          string        `envconfig:"KEYDB_ADDR" default:"keydb:6379" json:"addr"`
		Password      string        `envconfig:"KEYDB_PASSWORD" default:"bottom.Secret" json:"password,omitempty"`
		DB            int           `envconfig:"KEYDB_DB" default:"0" json:"db"`
		PoolSize      int           `envconfig:"KEYDB_POOL_SIZE" default:"10" json:"pool_size"`
		MinIdleConns  int           `envconfig:"KEYDB_MIN_IDLE_CONNS" default:"3" json:"min_idle_conns"`
		DialTimeout   time.Duration `envconfig:"KEYDB_DIAL_TIMEOUT" default:"5s" json:"dial_timeout"`
		ReadTimeout   time.Duration `envconfig:"KEYDB_READ_TIMEOUT" default:"3s" json:"read_timeout"`
		WriteTimeout  time.Duration `envconfig:"KEYDB_WRITE_TIMEOUT" default:"3s" json:"write_timeout"`
		PoolTimeout   time.Duration `envconfig:"KEYDB_POOL_TIMEOUT" default:"5s" json:"pool_timeout"`
		MaxRetries    int           `envconfig:"KEYDB_MAX_RETRIES" default:"3" json:"max_retries"`
		DefaultExpiry time.Duration `envconfig:"KEYDB_DEFAULT_EXPIRY" default:"24h" json:"default_expiry"`
	}

	BackoffConfig struct {
		// BaseDelay is the amount of time to backoff after the first failure.
		BaseDelay time.Duration `envconfig:"BACKOFF_BASE_DELAY" default:"1s" json:"base_delay"`
		// Multiplier is the factor with which to multiply backoffs after a
		// failed retry. Should ideally be greater than 1.
		Multiplier float64 `envconfig:"BACKOFF_MULTIPLIER" default:"1.6" json:"multiplier"`
		// Jitter is the factor with which backoffs are randomized.
		Jitter float64 `envconfig:"BACKOFF_JITTER" default:"0.2" json:"jitter"`
		// MaxDelay is the upper bound of backoff delay.
		MaxDelay time.Duration `envconfig:"BACKOFF_MAX_DELAY" default:"10s" json:"max_delay"`
	}

	CircuitBreakerConfig struct {
		MaxRequests uint32        `envconfig:"MAX_REQUESTS" default:"3" json:"max_requests"`
		Interval    time.Duration `envconfig:"INTERVAL" default:"10s" json:"interval"`
		Timeout     time.Duration `envconfig:"TIMEOUT" default:"60s" json:"timeout"`
	}

	WebhookConfig struct {
		RequestTimeout      time.Duration        `envconfig:"WEBHOOK_REQUEST_TIMEOUT" default:"10s" json:"request_timeout"`
		MaxAttempts         int                  `envconfig:"WEBHOOK_MAX_ATTEMPTS" default:"8" json:"max_attempts"`
		RetryBaseDelay      time.Duration        `envconfig:"WEBHOOK_RETRY_BASE_DELAY" default:"30s" json:"retry_base_delay"`
		RetryMultiplier     float64              `envconfig:"WEBHOOK_RETRY_MULTIPLIER" default:"2" json:"retry_multiplier"`
		RetryMaxDelay       time.Duration        `envconfig:"WEBHOOK_RETRY_MAX_DELAY" default:"1h" json:"retry_max_delay"`
		DeliveryIDTTL       time.Duration        `envconfig:"WEBHOOK_DELIVERY_ID_TTL" default:"24h" json:"delivery_id_ttl"`
		SubscriptionTTL     time.Duration        `envconfig:"WEBHOOK_SUBSCRIPTION_TTL" default:"1m" json:"subscription_ttl"`
		UserAgent           string               `envconfig:"WEBHOOK_USER_AGENT" default:"EventBus-Webhooks/1.0" json:"user_agent"`
		RateLimit           RateLimitConfig      `json:"rate_limit"`
		CircuitBreaker      CircuitBreakerConfig `envconfig:"WEBHOOK_CIRCUIT_BREAKER" json:"circuit_breaker"`
		Signing             SigningConfig        `json:"signing"`
		MaxResponseBodySize int64                `envconfig:"WEBHOOK_MAX_RESPONSE_BODY_SIZE" default:"65536" json:"max_response_body_size"`
		AllowPrivateTargets bool                 `envconfig:"WEBHOOK_ALLOW_PRIVATE_TARGETS" default:"false" json:"allow_private_targets"`
	}

	// RateLimitConfig bounds deliveries per webhook endpoint.
	RateLimitConfig struct {
		Enabled           bool `envconfig:"WEBHOOK_RATE_LIMIT_ENABLED" default:"true" json:"enabled"`
		RequestsPerSecond int  `envconfig:"WEBHOOK_RATE_LIMIT_REQUESTS_PER_SECOND" default:"10" json:"requests_per_second"`
		BurstSize         int  `envconfig:"WEBHOOK_RATE_LIMIT_BURST_SIZE" default:"20" json:"burst_size"`
		MaxKeys           int  `envconfig:"WEBHOOK_RATE_LIMIT_MAX_KEYS" default:"1000" json:"max_keys"`
	}

	SigningConfig struct {
		Issuer         string        `envconfig:"WEBHOOK_SIGNING_ISSUER" default:"svc-event-bus" json:"issuer"`
		TokenExpiry    time.Duration `envconfig:"WEBHOOK_SIGNING_TOKEN_EXPIRY" default:"5m" json:"token_expiry"`
		KeyPath        string        `envconfig:"WEBHOOK_SIGNING_KEY_PATH" default:"secret/data/paseto/webhook-signing-key" json:"key_path"`
		UseVaultKeys   bool          `envconfig:"WEBHOOK_SIGNING_USE_VAULT_KEYS" default:"true" json:"use_vault_keys"`
		KeyCacheTTL    time.Duration `envconfig:"WEBHOOK_SIGNING_KEY_CACHE_TTL" default:"1h" json:"key_cache_ttl"`
		FallbackKeyHex string        `envconfig:"WEBHOOK_SIGNING_FALLBACK_KEY_HEX" default:"" json:"fallback_key_hex,omitempty"`
	}

	TaskConfig struct {
		MaxRetries int `envconfig:"TASK_MAX_RETRIES" default:"3" json:"max_retries"`
	}
)

func (c OutboxConfig) GetMaxRetriesForPriority(priority string) int {
	switch priority {
	case PriorityLow:
		return c.MaxRetries.Low
	case PriorityNormal:
		return c.MaxRetries.Normal
	case PriorityHigh:
		return c.MaxRetries.High
	case PriorityUrgent:
		return c.MaxRetries.Urgent
	default:
		return c.MaxRetries.Normal
	}
}
