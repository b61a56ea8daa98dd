package spool

import "time"

// Config holds the spooler configuration.
type Config struct {
	Enabled        bool          `env:"SPOOL_ENABLED" envDefault:"true"`
	Period         time.Duration `env:"SPOOL_PERIOD" envDefault:"30s"`
	SyncRetryDelay time.Duration `env:"SPOOL_SYNC_RETRY_DELAY" envDefault:"1s"`
	Queue          string        `env:"SPOOL_QUEUE" envDefault:"default"`
}
