package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	BitableBaseURL   string
	BitableAppID     string
	BitableAppSecret string
	BitableAppToken  string
	PageSize         int
	UseFieldIDs      bool
	HTTPTimeout      time.Duration

	TimesheetTableID string
	FilterMode       string
	FieldDate        string
	FieldProject     string
	FieldStartTime   string
	FieldEndTime     string
	FieldHours       string
	FieldPerson      []string
	Location         *time.Location

	RosterAppToken  string
	RosterTableID   string
	RosterNameField string

	EmployeeTableID    string
	EmployeePhoneField string
	EmployeeNameField  string

	SessionSecret []byte
	CookieSecret  []byte
	SessionTTL    time.Duration
	CodeTTL       time.Duration
	CodeCooldown  time.Duration
	DebugMode     bool
	DebugRoutes   bool

	SMSWebhookURL  string
	SMSAPIKey      string
	SMSCountryCode string

	Port        string
	LogLevel    string
	Environment string
	CORSOrigin  string

	LoginRatePerMinute int
	LoginBurst         int
	APIRatePerMinute   int
	APIBurst           int
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}
	return configFromEnv()
}

func configFromEnv() (*Config, error) {
	config := &Config{}

	required := []struct {
		key string
		dst *string
	}{
		{"BITABLE_APP_ID", &config.BitableAppID},
		{"BITABLE_APP_SECRET", &config.BitableAppSecret},
		{"BITABLE_APP_TOKEN", &config.BitableAppToken},
		{"TIMESHEET_TABLE_ID", &config.TimesheetTableID},
	}
	for _, r := range required {
		value := strings.TrimSpace(os.Getenv(r.key))
		if value == "" {
			return nil, fmt.Errorf("%s environment variable is required", r.key)
		}
		*r.dst = value
	}

	sessionSecret := os.Getenv("SESSION_SECRET")
	if sessionSecret == "" {
		return nil, fmt.Errorf("SESSION_SECRET environment variable is required")
	}

	if len(sessionSecret) < 32 {
		return nil, fmt.Errorf("SESSION_SECRET must be at least 32 characters long")
	}

	config.SessionSecret = []byte(sessionSecret)

	switch cookieSecret := os.Getenv("COOKIE_SECRET"); {
	case cookieSecret == "":
		config.CookieSecret = deriveKey(config.SessionSecret, "session-cookie")
	case len(cookieSecret) < 32:
		return nil, fmt.Errorf("COOKIE_SECRET must be at least 32 characters long")
	case cookieSecret == sessionSecret:
		return nil, fmt.Errorf("COOKIE_SECRET must differ from SESSION_SECRET")
	default:
		config.CookieSecret = []byte(cookieSecret)
	}

	config.BitableBaseURL = getEnvWithDefault("BITABLE_BASE_URL", "https://open.feishu.cn")
	config.FilterMode = getEnvWithDefault("TIMESHEET_FILTER_MODE", "local")
	config.FieldDate = getEnvWithDefault("FIELD_DATE", "Date")
	config.FieldProject = getEnvWithDefault("FIELD_PROJECT", "Project")
	config.FieldStartTime = getEnvWithDefault("FIELD_START_TIME", "Start Time")
	config.FieldEndTime = getEnvWithDefault("FIELD_END_TIME", "End Time")
	config.FieldHours = getEnvWithDefault("FIELD_HOURS", "Hours")
	config.FieldPerson = splitAndTrim(getEnvWithDefault("FIELD_PERSON", "Person"))

	config.RosterAppToken = getEnvWithDefault("ROSTER_APP_TOKEN", config.BitableAppToken)
	config.RosterTableID = os.Getenv("ROSTER_TABLE_ID")
	config.RosterNameField = getEnvWithDefault("ROSTER_NAME_FIELD", "Name")

	config.EmployeeTableID = os.Getenv("EMPLOYEE_TABLE_ID")
	config.EmployeePhoneField = getEnvWithDefault("EMPLOYEE_PHONE_FIELD", "Phone")
	config.EmployeeNameField = getEnvWithDefault("EMPLOYEE_NAME_FIELD", config.RosterNameField)

	config.SMSWebhookURL = os.Getenv("SMS_WEBHOOK_URL")
	config.SMSAPIKey = os.Getenv("SMS_API_KEY")
	config.SMSCountryCode = getEnvWithDefault("SMS_COUNTRY_CODE", "86")

	config.Port = getEnvWithDefault("PORT", "8080")
	config.LogLevel = getEnvWithDefault("LOG_LEVEL", "INFO")
	config.Environment = getEnvWithDefault("ENVIRONMENT", "development")
	config.CORSOrigin = os.Getenv("CORS_ORIGIN")

	var err error
	if config.Location, err = time.LoadLocation(getEnvWithDefault("TIMEZONE", "UTC")); err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %v", err)
	}

	ints := []struct {
		key string
		def int
		dst *int
	}{
		{"BITABLE_PAGE_SIZE", 500, &config.PageSize},
		{"LOGIN_RATE_PER_MINUTE", 5, &config.LoginRatePerMinute},
		{"LOGIN_RATE_BURST", 10, &config.LoginBurst},
		{"API_RATE_PER_MINUTE", 60, &config.APIRatePerMinute},
		{"API_RATE_BURST", 120, &config.APIBurst},
	}
	for _, i := range ints {
		if *i.dst, err = getIntEnv(i.key, i.def); err != nil {
			return nil, err
		}
	}

	durations := []struct {
		key string
		def time.Duration
		dst *time.Duration
	}{
		{"HTTP_TIMEOUT", 30 * time.Second, &config.HTTPTimeout},
		{"SESSION_TTL", 4 * time.Hour, &config.SessionTTL},
		{"CODE_TTL", 5 * time.Minute, &config.CodeTTL},
		{"CODE_COOLDOWN", 60 * time.Second, &config.CodeCooldown},
	}
	for _, d := range durations {
		if *d.dst, err = getDurationEnv(d.key, d.def); err != nil {
			return nil, err
		}
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{"BITABLE_USE_FIELD_IDS", &config.UseFieldIDs},
		{"DEBUG_MODE", &config.DebugMode},
		{"ENABLE_DEBUG_ENDPOINTS", &config.DebugRoutes},
	}
	for _, b := range bools {
		if *b.dst, err = getBoolEnv(b.key, false); err != nil {
			return nil, err
		}
	}

	if config.PageSize <= 0 || config.PageSize > 500 {
		return nil, fmt.Errorf("BITABLE_PAGE_SIZE must be between 1 and 500")
	}
	if len(config.FieldPerson) == 0 {
		return nil, fmt.Errorf("FIELD_PERSON must name at least one column")
	}

	return config, nil
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) (int, error) {
	value, err := strconv.Atoi(getEnvWithDefault(key, strconv.Itoa(defaultValue)))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", key, err)
	}
	return value, nil
}

func getDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value, err := time.ParseDuration(getEnvWithDefault(key, defaultValue.String()))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", key, err)
	}
	return value, nil
}

func getBoolEnv(key string, defaultValue bool) (bool, error) {
	value, err := strconv.ParseBool(getEnvWithDefault(key, strconv.FormatBool(defaultValue)))
	if err != nil {
		return false, fmt.Errorf("invalid %s: %v", key, err)
	}
	return value, nil
}

func splitAndTrim(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// deriveKey returns an HMAC-SHA256 subkey of secret for one purpose.
func deriveKey(secret []byte, purpose string) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(purpose))
	return mac.Sum(nil)
}
