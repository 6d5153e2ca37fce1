package config

import (
	"fmt"
	"time"

	env "github.com/caarlos0/env/v11"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`
	JWTSecret   string `env:"JWT_SECRET,required,notEmpty"`
	AssetsFile  string `env:"ASSETS_FILE" envDefault:"assets.yaml"`
	RedisURL    string `env:"REDIS_URL"`
	Port        int    `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv      string `env:"APP_ENV" envDefault:"production"`

	LedgerHorizonURL string        `env:"LEDGER_HORIZON_URL" envDefault:"https://horizon-testnet.stellar.org"`
	LedgerTimeout    time.Duration `env:"LEDGER_TIMEOUT" envDefault:"15s"`

	CustodyPublicKey string        `env:"CUSTODY_PUBLIC_KEY"`
	CustodyAPIURL    string        `env:"CUSTODY_API_URL" envDefault:"https://api.fireblocks.io"`
	CustodyAPIKey    string        `env:"CUSTODY_API_KEY"`
	CustodySecretKey string        `env:"CUSTODY_SECRET_KEY"`
	CustodyPollEvery time.Duration `env:"CUSTODY_PROCESS_INTERVAL" envDefault:"2s"`

	NotifyAMQPURL     string        `env:"NOTIFY_AMQP_URL"`
	NotifyExchange    string        `env:"NOTIFY_EXCHANGE" envDefault:"anchor.transfers"`
	NotifyCallbackURL string        `env:"NOTIFY_CALLBACK_URL"`
	NotifyToken       string        `env:"NOTIFY_CALLBACK_TOKEN"`
	NotifyTimeout     time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"10s"`

	RPCBatchSizeLimit int           `env:"RPC_BATCH_SIZE_LIMIT" envDefault:"50"`
	RPCCallTimeout    time.Duration `env:"RPC_CALL_TIMEOUT" envDefault:"10s"`
	RequestTimeout    time.Duration `env:"REQUEST_TIMEOUT" envDefault:"60s"`
	IdempotencyTTL    time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`
	TransferRetries   int           `env:"TRANSFER_CAS_RETRIES" envDefault:"5"`

	ObserverSyncInterval    time.Duration `env:"OBSERVER_SYNC_INTERVAL" envDefault:"10s"`
	ObserverPageTimeout     time.Duration `env:"OBSERVER_PAGE_TIMEOUT" envDefault:"30s"`
	ObserverPollInterval    time.Duration `env:"OBSERVER_POLL_INTERVAL" envDefault:"5s"`
	ObserverListenerRetries int           `env:"OBSERVER_LISTENER_RETRIES" envDefault:"3"`
	ObserverMaxBackoff      time.Duration `env:"OBSERVER_MAX_BACKOFF" envDefault:"1m"`

	TrustlineCheckInterval  time.Duration `env:"TRUSTLINE_CHECK_INTERVAL" envDefault:"30s"`
	TrustlineCheckDuration  time.Duration `env:"TRUSTLINE_CHECK_DURATION" envDefault:"60m"`
	TrustlineTimeoutMessage string        `env:"TRUSTLINE_TIMEOUT_MESSAGE" envDefault:"trustline was not established in time"`
	CustodyCheckInterval    time.Duration `env:"CUSTODY_CHECK_INTERVAL" envDefault:"30s"`
	CustodyCheckDuration    time.Duration `env:"CUSTODY_CHECK_DURATION" envDefault:"60m"`
	CustodyTimeoutMessage   string        `env:"CUSTODY_TIMEOUT_MESSAGE" envDefault:"custody payment was not confirmed in time"`
	IdempotencyCleanupEvery time.Duration `env:"IDEMPOTENCY_CLEANUP_INTERVAL" envDefault:"1h"`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}
