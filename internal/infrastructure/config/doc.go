// Package config handles loading and validating readingd configuration.
//
// This package manages:
//   - Loading configuration from a YAML file
//   - Overriding with READINGD_* environment variables
//   - Validation, reporting every problem at once
//
// Credentials (Postgres DSN, Redis URL, MQTT password, InfluxDB token) are
// best supplied through the environment rather than the file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.Addr())
package config
