// Package config handles loading and validating remapd configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (REMAPD_*)
//   - Validation of required fields
//
// Sensitive values (MQTT password, InfluxDB token) should be set via
// environment variables or a .env file loaded before Load is called.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Database.Path)
package config
