package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config carries every knob the services need. It is built once at startup and
// passed by value; nothing mutates it afterwards.
type Config struct {
	DatabaseURL string
	JWTSecret   string

	Push PushConfig
	SMS  SMSConfig
	Mail MailConfig

	ListenAddr string

	// Night window for "do not disturb" translators. Pushes prepared inside
	// the window are scheduled for the next business-hour boundary instead.
	NightStartHour    int
	NightEndHour      int
	BusinessStartHour int

	// Number customers must call for late cancellations. Part of the
	// user-facing cancellation message, so it is configuration, not copy.
	CancellationPhone string
}

// PushConfig holds the push gateway credentials.
type PushConfig struct {
	Endpoint string
	AppID    string
	APIKey   string
}

// SMSConfig holds the outbound SMS gateway settings.
type SMSConfig struct {
	Endpoint   string
	APIKey     string
	FromNumber string
}

// MailConfig holds the SMTP relay settings.
type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Load reads configuration from the environment. DATABASE_URL and JWT_SECRET
// are required; everything else has a sensible default.
func Load() (Config, error) {
	var missing []string
	req := func(key string) string {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}
	opt := func(key, def string) string {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := Config{
		DatabaseURL: req("DATABASE_URL"),
		JWTSecret:   req("JWT_SECRET"),
		Push: PushConfig{
			Endpoint: opt("PUSH_ENDPOINT", "https://onesignal.com/api/v1/notifications"),
			AppID:    os.Getenv("PUSH_APP_ID"),
			APIKey:   os.Getenv("PUSH_API_KEY"),
		},
		SMS: SMSConfig{
			Endpoint:   os.Getenv("SMS_ENDPOINT"),
			APIKey:     os.Getenv("SMS_API_KEY"),
			FromNumber: os.Getenv("SMS_NUMBER"),
		},
		Mail: MailConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     optInt("SMTP_PORT", 587),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     opt("MAIL_FROM", "noreply@digitaltolk.se"),
		},
		ListenAddr:        opt("LISTEN_ADDR", ":8080"),
		NightStartHour:    optInt("NIGHT_START_HOUR", 21),
		NightEndHour:      optInt("NIGHT_END_HOUR", 7),
		BusinessStartHour: optInt("BUSINESS_START_HOUR", 9),
		CancellationPhone: opt("CANCELLATION_PHONE", "+46 73 75 86 865"),
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("config: missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return cfg, nil
}

func optInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
