package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "http://localhost:8080", cfg.Issuer)
	assert.Equal(t, 5*time.Minute, cfg.Token.AccessTTL)
	assert.Equal(t, 90*time.Second, cfg.Token.AuthCodeTTL)
	assert.GreaterOrEqual(t, cfg.Keys.RetiringWindow, cfg.Token.AccessTTL,
		"retiring keys must outlive the longest signed token")
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("SMARTAUTH_HTTP_ADDR", ":9999")
	t.Setenv("SMARTAUTH_TOKEN_ACCESS_TTL", "2m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.HTTPAddr)
	assert.Equal(t, 2*time.Minute, cfg.Token.AccessTTL)
}

func TestValidateRejectsShortRetiringWindow(t *testing.T) {
	cfg := &Config{
		Issuer: "https://auth.example.org",
		Token:  TokenConfig{AccessTTL: time.Hour},
		Keys:   KeysConfig{RetiringWindow: time.Minute},
	}
	assert.Error(t, cfg.validate())
}
