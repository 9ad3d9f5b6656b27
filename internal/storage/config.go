// Manages server configuration stored in server_config.json.

package storage

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/maruel/eduapi/internal/email"
)

// ServerConfig stores all server-wide configuration.
// Loaded from server_config.json, created with defaults if missing.
type ServerConfig struct {
	// JWTSecret is the secret used to verify bearer tokens.
	// Auto-generated if empty on first load.
	JWTSecret []byte `json:"jwt_secret"`

	// SMTP holds email configuration. Empty host disables email delivery.
	SMTP email.Config `json:"smtp"`

	// StaffEmails receives review notifications and the daily review summary.
	StaffEmails []string `json:"staff_emails"`

	// VAPID holds the web push key pair. Auto-generated if empty.
	VAPID VAPIDConfig `json:"vapid"`

	// RateLimits defines rate limiting configuration.
	RateLimits RateLimits `json:"rate_limits"`

	// Publishing configures the background publishing jobs.
	Publishing Publishing `json:"publishing"`

	// Notify sizes the asynchronous notification dispatcher.
	Notify NotifyConfig `json:"notify"`

	// MaxRequestBodyBytes limits the size of any single HTTP request body.
	MaxRequestBodyBytes int64 `json:"max_request_body_bytes"`
}

// VAPIDConfig is the VAPID key pair used to sign web push messages.
type VAPIDConfig struct {
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
	// Subscriber is the contact (mailto: or https: URL) sent to push services.
	Subscriber string `json:"subscriber"`
}

// Enabled returns true when both keys are set.
func (v *VAPIDConfig) Enabled() bool {
	return v.PublicKey != "" && v.PrivateKey != ""
}

// RateLimits defines rate limiting configuration (requests per minute).
type RateLimits struct {
	// WriteRatePerMin limits write operations (POST/PATCH/DELETE) per user.
	// 0 means unlimited.
	WriteRatePerMin int `json:"write_rate_per_min"`

	// ReadRatePerMin limits authenticated read operations per user.
	// 0 means unlimited.
	ReadRatePerMin int `json:"read_rate_per_min"`
}

// Validate checks that rate limit values are non-negative.
func (r *RateLimits) Validate() error {
	if r.WriteRatePerMin < 0 {
		return errors.New("write_rate_per_min must be non-negative")
	}
	if r.ReadRatePerMin < 0 {
		return errors.New("read_rate_per_min must be non-negative")
	}
	return nil
}

// DefaultRateLimits returns the default rate limits.
func DefaultRateLimits() RateLimits {
	return RateLimits{
		WriteRatePerMin: 120,
		ReadRatePerMin:  30000,
	}
}

// Publishing configures scheduled publishing.
type Publishing struct {
	// SweepIntervalSec is how often ready projects past their minimum publish
	// date are published. 0 disables the sweep.
	SweepIntervalSec int `json:"sweep_interval_sec"`

	// ReviewSummaryIntervalSec is how often staff receive the list of projects
	// in review. 0 disables the summary.
	ReviewSummaryIntervalSec int `json:"review_summary_interval_sec"`

	// ReviewSummaryLimit caps the number of projects listed in the summary.
	ReviewSummaryLimit int `json:"review_summary_limit"`
}

// SweepInterval returns the sweep period.
func (p *Publishing) SweepInterval() time.Duration {
	return time.Duration(p.SweepIntervalSec) * time.Second
}

// ReviewSummaryInterval returns the staff summary period.
func (p *Publishing) ReviewSummaryInterval() time.Duration {
	return time.Duration(p.ReviewSummaryIntervalSec) * time.Second
}

// Validate checks that intervals and limits are non-negative.
func (p *Publishing) Validate() error {
	if p.SweepIntervalSec < 0 {
		return errors.New("sweep_interval_sec must be non-negative")
	}
	if p.ReviewSummaryIntervalSec < 0 {
		return errors.New("review_summary_interval_sec must be non-negative")
	}
	if p.ReviewSummaryLimit < 0 {
		return errors.New("review_summary_limit must be non-negative")
	}
	return nil
}

// DefaultPublishing returns the default publishing schedule.
func DefaultPublishing() Publishing {
	return Publishing{
		SweepIntervalSec:         60,
		ReviewSummaryIntervalSec: 24 * 60 * 60,
		ReviewSummaryLimit:       5,
	}
}

// NotifyConfig sizes the notification dispatcher.
type NotifyConfig struct {
	// QueueSize is the number of events buffered before new ones are dropped.
	QueueSize int `json:"queue_size"`
	// Workers is the number of goroutines draining the queue.
	Workers int `json:"workers"`
	// Fanout bounds concurrent deliveries for a single event.
	Fanout int `json:"fanout"`
	// MaxAttempts bounds retries per delivery channel.
	MaxAttempts int `json:"max_attempts"`
}

// Validate checks that every size is positive.
func (n *NotifyConfig) Validate() error {
	if n.QueueSize <= 0 {
		return errors.New("queue_size must be positive")
	}
	if n.Workers <= 0 {
		return errors.New("workers must be positive")
	}
	if n.Fanout <= 0 {
		return errors.New("fanout must be positive")
	}
	if n.MaxAttempts <= 0 {
		return errors.New("max_attempts must be positive")
	}
	return nil
}

// DefaultNotifyConfig returns the default dispatcher sizing.
func DefaultNotifyConfig() NotifyConfig {
	return NotifyConfig{QueueSize: 256, Workers: 2, Fanout: 8, MaxAttempts: 3}
}

// Validate checks that the configuration is valid.
func (c *ServerConfig) Validate() error {
	if len(c.JWTSecret) == 0 {
		return errors.New("jwt_secret is required")
	}
	if len(c.JWTSecret) < 32 {
		return errors.New("jwt_secret must be at least 32 bytes")
	}
	if c.SMTP.Enabled() {
		if err := c.SMTP.Validate(); err != nil {
			return fmt.Errorf("smtp: %w", err)
		}
	}
	if err := c.RateLimits.Validate(); err != nil {
		return fmt.Errorf("rate_limits: %w", err)
	}
	if err := c.Publishing.Validate(); err != nil {
		return fmt.Errorf("publishing: %w", err)
	}
	if err := c.Notify.Validate(); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	if c.MaxRequestBodyBytes < 0 {
		return errors.New("max_request_body_bytes must be non-negative")
	}
	return nil
}

// DefaultServerConfig returns a configuration with defaults and no secrets.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		RateLimits:          DefaultRateLimits(),
		Publishing:          DefaultPublishing(),
		Notify:              DefaultNotifyConfig(),
		MaxRequestBodyBytes: 1024 * 1024, // 1 MiB
	}
}

// LoadServerConfig loads configuration from dataDir/server_config.json.
// Creates the file with defaults if it doesn't exist.
// Auto-generates JWTSecret and the VAPID key pair if empty.
func LoadServerConfig(dataDir string) (*ServerConfig, error) {
	path := filepath.Join(dataDir, "server_config.json")

	cfg := DefaultServerConfig()

	data, err := os.ReadFile(path) //nolint:gosec // G304: path is constructed from dataDir, not user input
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read server_config.json: %w", err)
		}
	} else if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse server_config.json: %w", err)
	}

	modified := false
	if len(cfg.JWTSecret) == 0 {
		cfg.JWTSecret = make([]byte, 32)
		if _, err := rand.Read(cfg.JWTSecret); err != nil {
			return nil, fmt.Errorf("failed to generate JWT secret: %w", err)
		}
		modified = true
	}
	if !cfg.VAPID.Enabled() {
		priv, pub, err := webpush.GenerateVAPIDKeys()
		if err != nil {
			return nil, fmt.Errorf("failed to generate VAPID keys: %w", err)
		}
		cfg.VAPID.PrivateKey = priv
		cfg.VAPID.PublicKey = pub
		modified = true
	}

	if modified || errors.Is(err, os.ErrNotExist) {
		if err := cfg.Save(dataDir); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server_config.json: %w", err)
	}
	return &cfg, nil
}

// Save saves configuration to dataDir/server_config.json.
func (c *ServerConfig) Save(dataDir string) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(filepath.Join(dataDir, "server_config.json"), data, 0o600); err != nil {
		return fmt.Errorf("failed to write server_config.json: %w", err)
	}
	return nil
}
