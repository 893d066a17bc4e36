package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/text/currency"
)

type Config struct {
	ServiceName     string
	Server          ServerConfig
	Database        DatabaseConfig
	Redis           RedisConfig
	Kafka           KafkaConfig
	CartService     ServiceConfig
	ProductService  ServiceConfig
	OrderService    ServiceConfig
	Provider        ProviderConfig
	Auth            AuthConfig
	Notification    NotificationConfig
	Features        FeatureFlags
	Pagination      PaginationConfig
	DefaultCurrency string
}

type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

// ConnectionString returns a lib/pq keyword/value DSN.
func (d DatabaseConfig) ConnectionString() string {
	return "host=" + d.Host +
		" port=" + strconv.Itoa(d.Port) +
		" user=" + d.User +
		" password=" + d.Password +
		" dbname=" + d.Name +
		" sslmode=" + d.SSLMode
}

// URL returns a postgres:// URL for pgx.
func (d DatabaseConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + d.SSLMode + fmt.Sprintf("&pool_max_conns=%d", d.MaxOpenConns),
	}
	return u.String()
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	TTL      time.Duration
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type KafkaConfig struct {
	Brokers       []string
	ConsumerGroup string
}

// ServiceConfig describes a remote HTTP dependency. Endpoints are path
// templates tried in order; "{id}" is replaced by the resource id.
type ServiceConfig struct {
	BaseURL   string
	Timeout   time.Duration
	Endpoints []string
}

type ProviderConfig struct {
	Name      string
	KeyID     string
	KeySecret string
	BaseURL   string
	Timeout   time.Duration
}

type AuthConfig struct {
	JWTSecrets []string
	CookieName string
	ClockSkew  time.Duration
}

// NotificationConfig configures the dispatcher. An empty Sender.BaseURL
// selects the log sender.
type NotificationConfig struct {
	DedupeTTL time.Duration
	Sender    ServiceConfig
	APIKey    string
}

type FeatureFlags struct {
	EnableOrderCaching    bool
	EnableEvents          bool
	EnablePaymentConsumer bool
	InMemoryStore         bool
}

type PaginationConfig struct {
	DefaultPage  int
	DefaultLimit int
	MaxLimit     int
}

// Load reads configuration for the named service from the environment,
// loading a .env file first when one exists.
func Load(serviceName string) *Config {
	_ = godotenv.Load()

	return &Config{
		ServiceName: serviceName,
		Server: ServerConfig{
			Port:         getEnvInt("SERVER_PORT", defaultPort(serviceName)),
			ReadTimeout:  time.Duration(getEnvInt("SERVER_READ_TIMEOUT", 30)) * time.Second,
			WriteTimeout: time.Duration(getEnvInt("SERVER_WRITE_TIMEOUT", 30)) * time.Second,
		},
		Database: DatabaseConfig{
			Host:         getEnvString("DB_HOST", "localhost"),
			Port:         getEnvInt("DB_PORT", 5432),
			User:         getEnvString("DB_USER", "acme"),
			Password:     getEnvString("DB_PASSWORD", "acme"),
			Name:         getEnvString("DB_NAME", "acme_checkout"),
			SSLMode:      getEnvString("DB_SSLMODE", "disable"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 5),
			MaxLifetime:  getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:     getEnvString("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnvString("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			TTL:      getEnvDuration("REDIS_TTL", 5*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers:       getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			ConsumerGroup: getEnvString("KAFKA_CONSUMER_GROUP", serviceName),
		},
		CartService: ServiceConfig{
			BaseURL:   getEnvString("CART_SERVICE_URL", "http://localhost:3002"),
			Timeout:   getEnvDuration("CART_SERVICE_TIMEOUT", 5*time.Second),
			Endpoints: getEnvList("CART_SERVICE_ENDPOINTS", []string{"/api/cart", "/cart"}),
		},
		ProductService: ServiceConfig{
			BaseURL:   getEnvString("PRODUCT_SERVICE_URL", "http://localhost:3001"),
			Timeout:   getEnvDuration("PRODUCT_SERVICE_TIMEOUT", 5*time.Second),
			Endpoints: getEnvList("PRODUCT_SERVICE_ENDPOINTS", []string{"/api/products/{id}", "/products/{id}"}),
		},
		OrderService: ServiceConfig{
			BaseURL:   getEnvString("ORDER_SERVICE_URL", "http://localhost:8082"),
			Timeout:   getEnvDuration("ORDER_SERVICE_TIMEOUT", 5*time.Second),
			Endpoints: getEnvList("ORDER_SERVICE_ENDPOINTS", []string{"/api/orders/{id}"}),
		},
		Provider: ProviderConfig{
			Name:      strings.ToLower(getEnvString("PAYMENT_PROVIDER", "razorpay")),
			KeyID:     getEnvString("PAYMENT_PROVIDER_KEY_ID", ""),
			KeySecret: getEnvString("PAYMENT_PROVIDER_KEY_SECRET", ""),
			BaseURL:   getEnvString("PAYMENT_PROVIDER_URL", "https://api.razorpay.com"),
			Timeout:   getEnvDuration("PAYMENT_PROVIDER_TIMEOUT", 10*time.Second),
		},
		Auth: AuthConfig{
			JWTSecrets: getEnvList("JWT_SECRETS", getEnvList("JWT_SECRET", nil)),
			CookieName: getEnvString("AUTH_COOKIE_NAME", "token"),
			ClockSkew:  getEnvDuration("AUTH_CLOCK_SKEW", 30*time.Second),
		},
		Notification: NotificationConfig{
			DedupeTTL: getEnvDuration("NOTIFICATION_DEDUPE_TTL", 24*time.Hour),
			Sender: ServiceConfig{
				BaseURL:   getEnvString("NOTIFICATION_SENDER_URL", ""),
				Timeout:   getEnvDuration("NOTIFICATION_SENDER_TIMEOUT", 5*time.Second),
				Endpoints: getEnvList("NOTIFICATION_SENDER_ENDPOINTS", []string{"/api/notifications"}),
			},
			APIKey: getEnvString("NOTIFICATION_SENDER_API_KEY", ""),
		},
		Features: FeatureFlags{
			EnableOrderCaching:    getEnvBool("ENABLE_ORDER_CACHING", true),
			EnableEvents:          getEnvBool("ENABLE_EVENTS", true),
			EnablePaymentConsumer: getEnvBool("ENABLE_PAYMENT_CONSUMER", true),
			InMemoryStore:         getEnvBool("IN_MEMORY_STORE", false),
		},
		Pagination: PaginationConfig{
			DefaultPage:  1,
			DefaultLimit: getEnvInt("PAGINATION_DEFAULT_LIMIT", 10),
			MaxLimit:     getEnvInt("PAGINATION_MAX_LIMIT", 100),
		},
		DefaultCurrency: strings.ToUpper(getEnvString("DEFAULT_CURRENCY", "INR")),
	}
}

// Validate rejects configurations the services cannot run with.
func (c *Config) Validate() error {
	if _, err := currency.ParseISO(c.DefaultCurrency); err != nil {
		return fmt.Errorf("config: invalid DEFAULT_CURRENCY %q: %w", c.DefaultCurrency, err)
	}
	if c.ServiceName != "notifications" && len(c.Auth.JWTSecrets) == 0 {
		return fmt.Errorf("config: JWT_SECRETS must list at least one secret")
	}
	if c.ServiceName == "payments" {
		switch c.Provider.Name {
		case "razorpay", "stripe":
		default:
			return fmt.Errorf("config: unknown PAYMENT_PROVIDER %q", c.Provider.Name)
		}
		if c.Provider.KeySecret == "" {
			return fmt.Errorf("config: PAYMENT_PROVIDER_KEY_SECRET is required")
		}
	}
	if c.Pagination.DefaultLimit <= 0 || c.Pagination.MaxLimit < c.Pagination.DefaultLimit {
		return fmt.Errorf("config: invalid pagination limits %d/%d", c.Pagination.DefaultLimit, c.Pagination.MaxLimit)
	}
	return nil
}

func defaultPort(serviceName string) int {
	switch serviceName {
	case "payments":
		return 8083
	case "notifications":
		return 8084
	default:
		return 8082
	}
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("5s") or bare seconds ("5").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
