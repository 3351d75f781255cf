// Package config handles loading and validating sqlitestore configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (MQTT password, InfluxDB token) should be set via
//     environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/sqlitestore.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, key := range cfg.DatabaseKeys() {
//	    fmt.Println(key, cfg.Databases[key].Path)
//	}
package config
