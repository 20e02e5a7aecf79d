package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every tunable the safety core reads. Values come from the
// environment; Load validates ranges up front so runtime code never has to.
type Config struct {
	// Server
	Port           string
	AllowedOrigins []string

	// Persistence. Empty DatabaseURL selects the in-memory history store.
	DatabaseURL string

	// Collaborator endpoints. ContactsFile is the JSON contact snapshot
	// maintained by the contacts service; an empty GatewayWebhookURL routes
	// channel sends to the log gateway.
	ContactsFile      string
	GatewayWebhookURL string

	// SOS lifecycle
	CountdownSeconds int           // 0 activates immediately, max 10
	DrainTimeout     time.Duration // how long Cancelling waits for in-flight dispatch

	// Dispatch
	SMSTemplate            string
	PersonalInfo           string
	MaxSendAttempts        int
	RetryBackoff           time.Duration
	AutoCall               bool
	AutoCallDelay          time.Duration
	EmergencyNumber        string
	LocationUpdates        bool
	LocationUpdateInterval time.Duration // clamped to 5s..60s
	MaxLocationUpdates     int

	// Trigger adapters
	ButtonSequence   []string
	ButtonWindow     time.Duration
	ButtonIdleReset  time.Duration
	ShakeThreshold   float64 // m/s^2
	ShakeSampleCount int
	ShakeWindow      time.Duration
	EnabledTriggers  map[string]bool

	// Journey / safe walk
	CheckInInterval time.Duration
	CheckInTimeout  time.Duration
}

const defaultSMSTemplate = "EMERGENCY! I need help. Location: {LOCATION} {MAPS_LINK} Battery: {BATTERY} Time: {TIMESTAMP} {PERSONAL_INFO}"

func Load() (*Config, error) {
	cfg := &Config{
		Port:              envStr("PORT", "8080"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		ContactsFile:      envStr("CONTACTS_FILE", "contacts.json"),
		GatewayWebhookURL: os.Getenv("GATEWAY_WEBHOOK_URL"),
		SMSTemplate:       envStr("SMS_TEMPLATE", defaultSMSTemplate),
		PersonalInfo:      os.Getenv("PERSONAL_INFO"),
		EmergencyNumber:   envStr("EMERGENCY_NUMBER", "112"),
	}

	var err error
	if cfg.ButtonWindow, err = envDuration("BUTTON_WINDOW", 3*time.Second); err != nil {
		return nil, err
	}
	if cfg.ButtonIdleReset, err = envDuration("BUTTON_IDLE_RESET", 1500*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.ShakeWindow, err = envDuration("SHAKE_WINDOW", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.DrainTimeout, err = envDuration("DRAIN_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.RetryBackoff, err = envDuration("DISPATCH_RETRY_BACKOFF", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.AutoCallDelay, err = envDuration("AUTO_CALL_DELAY", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.LocationUpdateInterval, err = envDuration("LOCATION_UPDATE_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.CheckInInterval, err = envDuration("CHECKIN_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.CheckInTimeout, err = envDuration("CHECKIN_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.CountdownSeconds, err = envInt("SOS_COUNTDOWN_SECONDS", 5); err != nil {
		return nil, err
	}
	if cfg.CountdownSeconds < 0 || cfg.CountdownSeconds > 10 {
		return nil, fmt.Errorf("SOS_COUNTDOWN_SECONDS must be 0-10, got %d", cfg.CountdownSeconds)
	}
	if cfg.MaxSendAttempts, err = envInt("DISPATCH_MAX_ATTEMPTS", 3); err != nil {
		return nil, err
	}
	if cfg.MaxSendAttempts < 1 {
		return nil, fmt.Errorf("DISPATCH_MAX_ATTEMPTS must be >= 1, got %d", cfg.MaxSendAttempts)
	}
	if cfg.MaxLocationUpdates, err = envInt("MAX_LOCATION_UPDATES", 10); err != nil {
		return nil, err
	}
	if cfg.ShakeSampleCount, err = envInt("SHAKE_SAMPLES", 4); err != nil {
		return nil, err
	}
	if cfg.ShakeThreshold, err = envFloat("SHAKE_THRESHOLD", 18.0); err != nil {
		return nil, err
	}

	if cfg.AutoCall, err = envBool("AUTO_CALL", false); err != nil {
		return nil, err
	}
	if cfg.LocationUpdates, err = envBool("LOCATION_UPDATES", true); err != nil {
		return nil, err
	}

	if cfg.LocationUpdateInterval < 5*time.Second {
		cfg.LocationUpdateInterval = 5 * time.Second
	}
	if cfg.LocationUpdateInterval > 60*time.Second {
		cfg.LocationUpdateInterval = 60 * time.Second
	}

	seq := envStr("BUTTON_SEQUENCE", "volume_up,volume_up,volume_down,volume_down")
	for _, key := range strings.Split(seq, ",") {
		key = strings.TrimSpace(key)
		if key != "" {
			cfg.ButtonSequence = append(cfg.ButtonSequence, key)
		}
	}
	if len(cfg.ButtonSequence) < 2 {
		return nil, fmt.Errorf("BUTTON_SEQUENCE needs at least 2 keys, got %q", seq)
	}

	cfg.EnabledTriggers = make(map[string]bool, 4)
	for name, key := range map[string]string{
		"button":   "TRIGGER_BUTTON",
		"shake":    "TRIGGER_SHAKE",
		"voice":    "TRIGGER_VOICE",
		"wearable": "TRIGGER_WEARABLE",
	} {
		if cfg.EnabledTriggers[name], err = envBool(key, true); err != nil {
			return nil, err
		}
	}

	origins := os.Getenv("ALLOWED_ORIGINS")
	if origins != "" {
		cfg.AllowedOrigins = strings.Split(origins, ",")
	} else {
		cfg.AllowedOrigins = []string{"http://localhost:3000"}
	}

	return cfg, nil
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func envBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
