// Package config handles loading and validating shadecore configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields and dispatch timing invariants
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (broker passwords, API tokens) should be set via environment variables
//   - The config file should have restricted permissions (0600)
//   - The ticket signing secret must be changed from defaults before production use
//
// Performance Characteristics:
//   - Configuration is loaded once at startup
//   - No runtime overhead after initial load
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.MQTT.Broker.Host)
package config
