// Package config loads application configuration from environment variables.
//
// It wraps github.com/joho/godotenv and github.com/caarlos0/env/v11:
//
//   - LoadEnv reads one or more .env files into the process environment.
//   - Parse fills any struct from `env` field tags.
//   - Load does the same but caches the result per configuration type, so
//     the environment is parsed once for the lifetime of the process.
//
// # Usage
//
//	type Settings struct {
//	    Strategy string   `env:"TENANCY_STRATEGY,required"`
//	    Tenants  []string `env:"TENANCY_TENANTS" envSeparator:","`
//	}
//
//	var s Settings
//	if err := config.Load(&s); err != nil {
//	    log.Fatalf("parsing env: %v", err)
//	}
//
// # Error Handling
//
// Errors can be compared with errors.Is against ErrParsingConfig,
// ErrLoadingEnvFile and ErrNilPointer.
//
// # Testing Helpers
//
// ResetCache clears the cache between tests. Parse never caches and is the
// better fit when the environment changes during a test.
package config
