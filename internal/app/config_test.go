package app

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("SESSION_SECRET", "s3cret")
	t.Setenv("CSRF_SECRET", "csrf")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Seoul", cfg.Timezone)
	assert.Equal(t, []int{30, 7}, cfg.ExpiryAlertDays)
	assert.Equal(t, int64(10<<20), cfg.UploadMaxBytes)
	assert.Equal(t, 12*time.Hour, cfg.SessionTTL)
	assert.Equal(t, "Asia/Seoul", cfg.Location().String())
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("EXPIRY_ALERT_DAYS", "60,14,1")
	t.Setenv("DASHBOARD_GROUP_ORDER", "정관,이사회규정")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, []int{60, 14, 1}, cfg.ExpiryAlertDays)
	assert.Equal(t, []string{"정관", "이사회규정"}, cfg.DashboardGroups)
}

func TestLoadConfigRejects(t *testing.T) {
	cases := map[string][2]string{
		"missing session secret": {"SESSION_SECRET", ""},
		"zero upload size":       {"UPLOAD_MAX_BYTES", "0"},
		"negative alert day":     {"EXPIRY_ALERT_DAYS", "30,-1"},
		"unknown timezone":       {"TIMEZONE", "Mars/Olympus"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(kv[0], kv[1])
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestNilConfigFallsBack(t *testing.T) {
	var cfg *Config
	assert.Equal(t, time.UTC, cfg.Location())
	assert.False(t, cfg.IsProduction())
}

func TestLoggerJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{AppEnv: "production", LogFormat: "json"}, &buf)
	logger.Debug("hidden")
	logger.Info("published", "code", "1-1-1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "published", line["msg"])
	assert.Equal(t, "ncompliance", line["service"])
	assert.Equal(t, "1-1-1", line["code"])
}
