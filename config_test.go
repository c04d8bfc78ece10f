package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("BITABLE_APP_ID", "cli_app")
	t.Setenv("BITABLE_APP_SECRET", "secret")
	t.Setenv("BITABLE_APP_TOKEN", "bascnApp")
	t.Setenv("TIMESHEET_TABLE_ID", "tblTimesheet")
	t.Setenv("SESSION_SECRET", "0123456789abcdef0123456789abcdef")
}

func TestConfigDefaults(t *testing.T) {
	setRequiredEnv(t)

	config, err := configFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "https://open.feishu.cn", config.BitableBaseURL)
	assert.Equal(t, 500, config.PageSize)
	assert.Equal(t, "local", config.FilterMode)
	assert.Equal(t, []string{"Person"}, config.FieldPerson)
	assert.Equal(t, 4*time.Hour, config.SessionTTL)
	assert.Equal(t, 5*time.Minute, config.CodeTTL)
	assert.Equal(t, 60*time.Second, config.CodeCooldown)
	assert.Equal(t, "bascnApp", config.RosterAppToken)
	assert.Equal(t, "", config.RosterTableID)
	assert.Equal(t, "86", config.SMSCountryCode)
	assert.Equal(t, time.UTC, config.Location)
	assert.False(t, config.DebugMode)
	assert.False(t, config.DebugRoutes)
}

func TestConfigOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("FIELD_PERSON", " Owner , Person ,")
	t.Setenv("TIMESHEET_FILTER_MODE", "remote")
	t.Setenv("BITABLE_PAGE_SIZE", "100")
	t.Setenv("SESSION_TTL", "2h")
	t.Setenv("DEBUG_MODE", "true")
	t.Setenv("TIMEZONE", "Asia/Shanghai")
	t.Setenv("ROSTER_TABLE_ID", "tblRoster")

	config, err := configFromEnv()
	require.NoError(t, err)

	assert.Equal(t, []string{"Owner", "Person"}, config.FieldPerson)
	assert.Equal(t, "remote", config.FilterMode)
	assert.Equal(t, 100, config.PageSize)
	assert.Equal(t, 2*time.Hour, config.SessionTTL)
	assert.True(t, config.DebugMode)
	assert.Equal(t, "Asia/Shanghai", config.Location.String())
	assert.Equal(t, "tblRoster", config.RosterTableID)
}

func TestCookieSecretIsSeparateFromSessionSecret(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("COOKIE_SECRET", "")

	config, err := configFromEnv()
	require.NoError(t, err)
	assert.Len(t, config.CookieSecret, 32)
	assert.NotEqual(t, config.SessionSecret, config.CookieSecret)

	again, err := configFromEnv()
	require.NoError(t, err)
	assert.Equal(t, config.CookieSecret, again.CookieSecret, "derivation is stable across restarts")

	t.Setenv("COOKIE_SECRET", "fedcba9876543210fedcba9876543210")
	config, err = configFromEnv()
	require.NoError(t, err)
	assert.Equal(t, []byte("fedcba9876543210fedcba9876543210"), config.CookieSecret)
}

func TestConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
		want string
	}{
		{"missing app id", "BITABLE_APP_ID", "", "BITABLE_APP_ID environment variable is required"},
		{"missing table", "TIMESHEET_TABLE_ID", " ", "TIMESHEET_TABLE_ID environment variable is required"},
		{"short secret", "SESSION_SECRET", "short", "SESSION_SECRET must be at least 32 characters long"},
		{"short cookie secret", "COOKIE_SECRET", "short", "COOKIE_SECRET must be at least 32 characters long"},
		{"shared cookie secret", "COOKIE_SECRET", "0123456789abcdef0123456789abcdef", "COOKIE_SECRET must differ from SESSION_SECRET"},
		{"bad duration", "CODE_TTL", "five minutes", "invalid CODE_TTL"},
		{"bad bool", "DEBUG_MODE", "maybe", "invalid DEBUG_MODE"},
		{"bad page size", "BITABLE_PAGE_SIZE", "1000", "BITABLE_PAGE_SIZE must be between 1 and 500"},
		{"bad timezone", "TIMEZONE", "Mars/Olympus", "invalid TIMEZONE"},
		{"no person field", "FIELD_PERSON", ",", "FIELD_PERSON must name at least one column"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.key, tt.val)

			_, err := configFromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSplitAndTrim(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitAndTrim(" a,,b , "))
	assert.Nil(t, splitAndTrim(""))
}
