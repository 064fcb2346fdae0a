package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "test",
			Password: "test",
			Database: "test_db",
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
		},
		Billing: BillingConfig{
			BatchSize:   100,
			Parallelism: 5,
		},
	}
}

func TestConfig_Validate_Success(t *testing.T) {
	err := validConfig().Validate()
	assert.NoError(t, err)
}

func TestConfig_Validate_InvalidServerPort(t *testing.T) {
	tests := []struct {
		name string
		port int
	}{
		{"port too low", 0},
		{"port negative", -1},
		{"port too high", 99999},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Server.Port = tt.port

			err := cfg.Validate()
			assert.Error(t, err)
			assert.Contains(t, err.Error(), "server.port")
		})
	}
}

func TestConfig_Validate_InvalidReadTimeout(t *testing.T) {
	cfg := validConfig()
	cfg.Server.ReadTimeout = 0

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "read_timeout")
}

func TestConfig_Validate_InvalidWriteTimeout(t *testing.T) {
	cfg := validConfig()
	cfg.Server.WriteTimeout = 0

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "write_timeout")
}

func TestConfig_Validate_MissingDatabaseHost(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Host = ""

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "database.host")
}

func TestConfig_Validate_InvalidDatabasePort(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Port = 0

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "database.port")
}

func TestConfig_Validate_InvalidRedisPort(t *testing.T) {
	cfg := validConfig()
	cfg.Redis.Port = 0

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "redis.port")
}

func TestConfig_Validate_InvalidBillingBatchSize(t *testing.T) {
	cfg := validConfig()
	cfg.Billing.BatchSize = 0

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "billing.batch_size")
}

func TestConfig_Validate_InvalidBillingParallelism(t *testing.T) {
	cfg := validConfig()
	cfg.Billing.Parallelism = 0

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "billing.parallelism")
}

func TestConfig_Validate_MultipleErrors(t *testing.T) {
	cfg := &Config{}

	err := cfg.Validate()
	require.Error(t, err)

	// Should contain multiple error messages
	errStr := err.Error()
	assert.Contains(t, errStr, "server.port")
	assert.Contains(t, errStr, "read_timeout")
	assert.Contains(t, errStr, "write_timeout")
	assert.Contains(t, errStr, "database.host")
	assert.Contains(t, errStr, "database.port")
	assert.Contains(t, errStr, "redis.port")
	assert.Contains(t, errStr, "billing.batch_size")
	assert.Contains(t, errStr, "billing.parallelism")
}

func TestServerConfig_ValidPorts(t *testing.T) {
	validPorts := []int{80, 443, 8080, 8443, 3000, 5000, 9000, 65535}

	for _, port := range validPorts {
		t.Run("port_valid", func(t *testing.T) {
			cfg := validConfig()
			cfg.Server.Port = port

			err := cfg.Validate()
			assert.NoError(t, err)
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "db.example.com",
		Port:     5432,
		User:     "app_user",
		Password: "secret",
		Database: "payments_db",
		SSLMode:  "require",
	}

	assert.Equal(t,
		"host=db.example.com port=5432 user=app_user password=secret dbname=payments_db sslmode=require",
		cfg.DatabaseDSN())
}

func TestRedisConfig_Addr(t *testing.T) {
	cfg := RedisConfig{
		Host: "redis.example.com",
		Port: 6379,
	}

	assert.Equal(t, "redis.example.com:6379", cfg.RedisAddr())
}

func TestGatewaysConfig_Fields(t *testing.T) {
	cfg := GatewaysConfig{
		Stripe:      StripeConfig{APIKey: "sk_test_123", WebhookSecret: "whsec_123"},
		PayPal:      PayPalConfig{ClientID: "client", Secret: "secret", WebhookID: "wh-1"},
		Razorpay:    RazorpayConfig{KeyID: "rzp_test", KeySecret: "key_secret", WebhookSecret: "hook_secret"},
		Flutterwave: FlutterwaveConfig{SecretKey: "FLWSECK", VerifHash: "hash"},
		Cash:        CashConfig{ProcessingDelay: 100 * time.Millisecond},
	}

	assert.Equal(t, "sk_test_123", cfg.Stripe.APIKey)
	assert.Equal(t, "wh-1", cfg.PayPal.WebhookID)
	assert.Equal(t, "hook_secret", cfg.Razorpay.WebhookSecret)
	assert.Equal(t, "hash", cfg.Flutterwave.VerifHash)
	assert.Equal(t, 100*time.Millisecond, cfg.Cash.ProcessingDelay)
}

func TestConfig_Validate_ProductionWebhookSecrets(t *testing.T) {
	t.Setenv("ENV", "production")

	cfg := validConfig()
	cfg.Gateways.Stripe.APIKey = "sk_live_123"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gateways.stripe.webhook_secret")

	cfg.Gateways.Stripe.WebhookSecret = "whsec_live"
	assert.NoError(t, cfg.Validate())
}
