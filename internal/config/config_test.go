package config

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		JWTSecret:                "secure-secret-at-least-32-chars-long",
		DBPassword:               "secure-password",
		Port:                     "8080",
		RedisURL:                 "redis://localhost:6379",
		DBConnMaxLifetimeMinutes: 1,
		TracingSampleRatio:       1,
	}
}

func TestConfig_ValidateSSLMode(t *testing.T) {
	tests := []struct {
		name        string
		env         string
		sslMode     string
		expectError bool
	}{
		{"Production with empty SSL mode", "production", "", true},
		{"Production with disable SSL mode", "production", "disable", true},
		{"Production with require SSL mode", "production", "require", false},
		{"Prod with verify-full SSL mode", "prod", "verify-full", false},
		{"Development with disable SSL mode", "development", "disable", false},
		{"Test with empty SSL mode", "test", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			c.Env = tt.env
			c.DBSSLMode = tt.sslMode

			err := c.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateRejectsDefaultSecretInProduction(t *testing.T) {
	c := validConfig()
	c.Env = "production"
	c.DBSSLMode = "require"
	c.JWTSecret = defaultJWTSecret

	assert.Error(t, c.Validate())
}

func TestConfig_ValidateSampleRatio(t *testing.T) {
	c := validConfig()
	c.TracingSampleRatio = 1.5
	assert.Error(t, c.Validate())
}

func TestConfig_Durations(t *testing.T) {
	c := validConfig()
	assert.Equal(t, 7*24*time.Hour, c.RequestPendingTTL())
	assert.Equal(t, time.Duration(0), c.ExpirySweepInterval())

	c.RequestPendingTTLHours = 48
	c.ExpirySweepIntervalSeconds = 60
	assert.Equal(t, 48*time.Hour, c.RequestPendingTTL())
	assert.Equal(t, time.Minute, c.ExpirySweepInterval())
}

func TestLoadConfig_Defaults(t *testing.T) {
	defer os.Unsetenv("APP_ENV")
	defer os.Unsetenv("DB_SSLMODE")
	defer os.Unsetenv("REQUEST_PENDING_TTL_HOURS")
	defer viper.Reset()

	os.Setenv("APP_ENV", "development")
	os.Setenv("DB_SSLMODE", "  DISABLE  ")
	os.Setenv("REQUEST_PENDING_TTL_HOURS", "24")

	c, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "disable", c.DBSSLMode)
	assert.Equal(t, 24*time.Hour, c.RequestPendingTTL())
	assert.Equal(t, 100, c.ExpirySweepBatch)
	assert.Equal(t, "kindkart-api", c.JWTAudience)
}
