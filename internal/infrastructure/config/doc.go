// Package config handles loading and validating Gray Logic Hub configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with GLHUB_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (JWT secret, cloud token, MQTT password) should be set via
//     environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Server.Name, cfg.ActionTimeout())
package config
