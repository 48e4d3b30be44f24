// Initializing common application configuration
package config

import (
	"log"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Payment      PaymentConfig      `mapstructure:"payment"`
	Mail         MailConfig         `mapstructure:"mail"`
	Registration RegistrationConfig `mapstructure:"registration"`
	Admin        AdminConfig        `mapstructure:"admin"`
}

type ServerConfig struct {
	AppVersion  string        `mapstructure:"appVersion"`
	Host        string        `mapstructure:"host" validate:"required"`
	Port        string        `mapstructure:"port" validate:"required"`
	Timeout     time.Duration `mapstructure:"timeout"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	Env         string        `mapstructure:"environment"`
	Mode        string        `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	MaxRetries   int           `mapstructure:"max_retries"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolTimeout  time.Duration `mapstructure:"pool_timeout"`
}

// PaymentConfig holds the hosted-checkout provider settings. The surcharge
// percent is in basis points so fee math stays integral (290 = 2.9%).
type PaymentConfig struct {
	APIBase          string        `mapstructure:"api_base"`
	SecretKey        string        `mapstructure:"secret_key"`
	WebhookSecret    string        `mapstructure:"webhook_secret"`
	PercentBasisPts  int64         `mapstructure:"percent_basis_points"`
	FixedFeeCents    int64         `mapstructure:"fixed_fee_cents"`
	SuccessURL       string        `mapstructure:"success_url"`
	CancelURL        string        `mapstructure:"cancel_url"`
	ConfirmationURL  string        `mapstructure:"confirmation_url"`
	CurrencyCode     string        `mapstructure:"currency_code"`
	WebhookTolerance time.Duration `mapstructure:"webhook_tolerance"`
}

// Enabled reports whether hosted checkout is configured at all. When it is
// not, card orders degrade to the manual confirmation path.
func (p *PaymentConfig) Enabled() bool {
	return p.SecretKey != "" && p.APIBase != ""
}

type MailConfig struct {
	APIURL  string `mapstructure:"api_url"`
	APIKey  string `mapstructure:"api_key"`
	From    string `mapstructure:"from"`
	Enabled bool   `mapstructure:"enabled"`
}

// RegistrationConfig carries the pricing knobs that are configuration, not
// catalog: apparel price points and the submission rate limit.
type RegistrationConfig struct {
	AdultApparelCents int64         `mapstructure:"adult_apparel_cents"`
	YouthApparelCents int64         `mapstructure:"youth_apparel_cents"`
	RateLimitCount    int           `mapstructure:"rate_limit_count"`
	RateLimitWindow   time.Duration `mapstructure:"rate_limit_window"`
}

type AdminConfig struct {
	Token string `mapstructure:"token"`
}

func LoadConfig() (*viper.Viper, error) {

	viperInstance := viper.New()

	viperInstance.AddConfigPath("./config")
	viperInstance.SetConfigName("config")
	viperInstance.SetConfigType("yaml")

	setDefaults(viperInstance)

	err := viperInstance.ReadInConfig()

	if err != nil {
		return nil, err
	}
	return viperInstance, nil
}

func ParseConfig(v *viper.Viper) (*Config, error) {

	var c Config

	err := v.Unmarshal(&c)
	if err != nil {
		log.Fatalf("unable to decode config into struct, %v", err)
		return nil, err
	}
	return &c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.appVersion", "1.0.0")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.mode", "debug")

	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	// Card-network pass-through fee: 2.9% + 30 cents.
	v.SetDefault("payment.percent_basis_points", 290)
	v.SetDefault("payment.fixed_fee_cents", 30)
	v.SetDefault("payment.currency_code", "usd")
	v.SetDefault("payment.webhook_tolerance", 5*time.Minute)

	v.SetDefault("registration.adult_apparel_cents", 2000)
	v.SetDefault("registration.youth_apparel_cents", 1500)
	v.SetDefault("registration.rate_limit_count", 5)
	v.SetDefault("registration.rate_limit_window", time.Minute)
}

func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
