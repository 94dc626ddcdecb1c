package config

import (
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/nimasrn/crm-campaigns/pkg/logger"
	"github.com/pkg/errors"
)

var config *Config

// Config is the only place configuration is read from. Nothing else in the
// module looks at the environment directly.
type Config struct {
	AppEnv              string `env:"APP_ENV,default=dev"`
	AppName             string `env:"APP_NAME,default=crm_campaigns"`
	AppDebug            bool   `env:"APP_DEBUG,default=false"`
	AppDebugMetricsAddr string `env:"APP_DEBUG_METRIC_ADDR"`
	AppDebugMetricsURI  string `env:"APP_DEBUG_METRIC_URI,default=/metrics"`

	HttpListenAddr         string        `env:"HTTP_LISTEN_ADDR,default=:8080"`
	HttpServerReadTimeout  time.Duration `env:"HTTP_SERVER_READ_TIMEOUT"`
	HttpServerWriteTimeout time.Duration `env:"HTTP_SERVER_WRITE_TIMEOUT"`
	HttpRequestTimeout     time.Duration `env:"HTTP_REQUEST_TIMEOUT,default=30s"`

	PostgresReadHost     string `env:"POSTGRES_READ_HOST"`
	PostgresReadPort     string `env:"POSTGRES_READ_PORT"`
	PostgresReadUser     string `env:"POSTGRES_READ_USER"`
	PostgresReadPassword string `env:"POSTGRES_READ_PASSWORD"`
	PostgresReadDatabase string `env:"POSTGRES_READ_DBNAME"`

	PostgresWriteHost     string `env:"POSTGRES_WRITE_HOST"`
	PostgresWritePort     string `env:"POSTGRES_WRITE_PORT"`
	PostgresWriteUser     string `env:"POSTGRES_WRITE_USER"`
	PostgresWritePassword string `env:"POSTGRES_WRITE_PASSWORD"`
	PostgresWriteDatabase string `env:"POSTGRES_WRITE_DBNAME"`
	PostgresSSLMode       string `env:"POSTGRES_SSLMODE,default=disable"`

	RedisAddr               string `env:"REDIS_ADDR,default=localhost:6379"`
	RedisUsername           string `env:"REDIS_USER"`
	RedisPassword           string `env:"REDIS_PASS"`
	RedisDatabase           int    `env:"REDIS_DATABASE"`
	RedisUniversalKeyPrefix string `env:"REDIS_UNIVERSAL_KEY_PREFIX,default=crm:"`

	PromNamespace string `env:"PROM_NAMESPACE,default=crm"`

	QueueName              string        `env:"QUEUE_NAME,default=deliveries"`
	QueueConsumerGroup     string        `env:"QUEUE_CONSUMER_GROUP,default=delivery-workers"`
	QueueConsumerName      string        `env:"QUEUE_CONSUMER_NAME,default=worker"`
	QueueConsumers         int           `env:"QUEUE_CONSUMERS,default=2"`
	QueueMaxRetries        int           `env:"QUEUE_MAX_RETRIES,default=3"`
	QueueVisibilityTimeout time.Duration `env:"QUEUE_VISIBILITY_TIMEOUT,default=30s"`
	QueuePollInterval      time.Duration `env:"QUEUE_POLL_INTERVAL,default=500ms"`
	QueueBatchSize         int64         `env:"QUEUE_BATCH_SIZE,default=10"`
	QueueMaxLen            int64         `env:"QUEUE_MAX_LEN"`
	QueueEnableDLQ         bool          `env:"QUEUE_ENABLE_DLQ,default=true"`

	WorkerCount      int `env:"WORKER_COUNT,default=20"`
	WorkerBufferSize int `env:"WORKER_BUFFER_SIZE,default=1000"`

	AudienceBatchSize int `env:"AUDIENCE_BATCH_SIZE,default=500"`

	JWTSecret string        `env:"JWT_SECRET"`
	JWTIssuer string        `env:"JWT_ISSUER,default=crm-campaigns"`
	JWTTTL    time.Duration `env:"JWT_TTL,default=24h"`

	VendorPrimaryUrl    string        `env:"VENDOR_PRIMARY_URL"`
	VendorSecondaryUrl  string        `env:"VENDOR_SECONDARY_URL"`
	VendorBackupUrl     string        `env:"VENDOR_BACKUP_URL"`
	VendorListenAddr    string        `env:"VENDOR_LISTEN_ADDR,default=:8090"`
	VendorReceiptURL    string        `env:"VENDOR_RECEIPT_URL"`
	VendorSimulateRate  float64       `env:"VENDOR_SIMULATE_SUCCESS_RATE,default=0.9"`
	VendorSimulateDelay time.Duration `env:"VENDOR_SIMULATE_DELAY,default=300ms"`

	AIApiKey  string        `env:"AI_API_KEY"`
	AIBaseURL string        `env:"AI_BASE_URL,default=https://generativelanguage.googleapis.com/v1beta"`
	AIModels  string        `env:"AI_MODELS,default=gemini-1.5-flash|gemini-1.5-pro"`
	AITimeout time.Duration `env:"AI_TIMEOUT,default=20s"`
}

func Load(path string) error {
	logger.Info("loading configs..", "path", path)
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return errors.Wrapf(err, "failed to load configuration file %s", path)
		}
	}

	c := &Config{}
	if _, err := env.UnmarshalFromEnviron(c); err != nil {
		return errors.Wrap(err, "failed to map env variables to configuration")
	}

	if err := c.validate(); err != nil {
		return err
	}

	config = c
	return nil
}

func (c *Config) validate() error {
	if c.AudienceBatchSize <= 0 {
		return errors.New("AUDIENCE_BATCH_SIZE must be positive")
	}
	if c.VendorSimulateRate < 0 || c.VendorSimulateRate > 1 {
		return errors.New("VENDOR_SIMULATE_SUCCESS_RATE must be within [0,1]")
	}
	return nil
}

// VendorURLs returns the configured vendor endpoints in priority order.
func (c *Config) VendorURLs() []string {
	var urls []string
	for _, u := range []string{c.VendorPrimaryUrl, c.VendorSecondaryUrl, c.VendorBackupUrl} {
		if u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}

// AIModelList splits AI_MODELS (pipe or comma separated) into the ordered model fallback list.
func (c *Config) AIModelList() []string {
	var models []string
	split := func(r rune) bool { return r == '|' || r == ',' }
	for _, m := range strings.FieldsFunc(c.AIModels, split) {
		if m = strings.TrimSpace(m); m != "" {
			models = append(models, m)
		}
	}
	return models
}

func Get() *Config {
	if config == nil {
		logger.Panic("Config is not initialized")
	}
	return config
}

// Set installs c as the active configuration. Tests use it to skip Load.
func Set(c *Config) {
	config = c
}
