// Package config handles loading and validating the wattfleet daemon configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (WATTFLEET_*)
//   - Validation of required fields
//   - Default value handling
//
// The fleet's runtime JSON documents (device status, sampling settings,
// uplink settings) are owned by their own packages; config only locates
// them on disk.
//
// Security Considerations:
//   - Sensitive values (InfluxDB tokens) should be set via environment variables
//   - A local .env file is honoured for development convenience
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Database.Path)
package config
