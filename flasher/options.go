package flasher

import "github.com/charmbracelet/log"

// Config holds the ambient, non-protocol knobs a flash job accepts:
// progress reporting and logging. The protocol's own timing and retry
// budgets (port-open backoff, ready-handshake retries, per-block ACK
// timeout, and so on) are not configurable — they are exact constants
// a real device depends on, not tuning knobs.
type Config struct {
	// ProgressCallback receives the job's monotonic event sequence.
	ProgressCallback ProgressCallback

	// Logger receives structured debug/info/error output for every
	// protocol step. A nil Logger is valid — nothing is logged.
	Logger *log.Logger

	// Confirm asks the embedding UI to approve the bootloader-updater
	// sub-flash when the device reports an obsolete version. A nil
	// Confirm proceeds without asking.
	Confirm func(question string) bool
}

func defaultConfig() Config {
	return Config{}
}

// Option is a functional option for configuring a flash job.
type Option func(*Config)

// WithProgressCallback sets the callback invoked for every progress
// event the job emits.
func WithProgressCallback(callback ProgressCallback) Option {
	return func(c *Config) {
		c.ProgressCallback = callback
	}
}

// WithLogger sets the logger used for this job's protocol-level
// tracing.
func WithLogger(logger *log.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithConfirm sets the callback used to approve the bootloader-updater
// sub-flash.
func WithConfirm(confirm func(question string) bool) Option {
	return func(c *Config) {
		c.Confirm = confirm
	}
}

// NewConfig builds a Config from functional options, starting from
// defaultConfig.
func NewConfig(opts ...Option) Config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func (c Config) emit(p Progress) {
	if c.ProgressCallback != nil {
		c.ProgressCallback(p)
	}
}

func (c Config) logDebug(msg string, kv ...interface{}) {
	if c.Logger != nil {
		c.Logger.Debug(msg, kv...)
	}
}

func (c Config) logInfo(msg string, kv ...interface{}) {
	if c.Logger != nil {
		c.Logger.Info(msg, kv...)
	}
}

func (c Config) logError(msg string, kv ...interface{}) {
	if c.Logger != nil {
		c.Logger.Error(msg, kv...)
	}
}
