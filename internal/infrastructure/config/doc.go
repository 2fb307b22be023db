// Package config handles loading and validating the relay agent configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with MIOT_* environment variables
//   - Overlaying command-line options
//   - Validation of required fields (ErrInvalidConfig)
//   - Client identifier generation
//
// Security Considerations:
//   - Broker and InfluxDB credentials should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml", func(c *config.Config) {
//	    c.MQTT.Topic = "home/relay"
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.MQTT.BrokerURL())
package config
