// Package config populates configuration structs from environment variables.
//
// Structs declare their variables with caarlos0/env tags:
//
//	type Config struct {
//	    Period time.Duration `env:"SPOOL_PERIOD" envDefault:"30s"`
//	}
//
// Load reads a .env file from the working directory once per process (missing
// files are fine), parses the struct, and caches the parsed value per type so
// that every component asking for the same struct sees the same values.
// LoadFiles loads additional dotenv files explicitly, for example a path given
// on the command line of cmd/spooler.
package config
