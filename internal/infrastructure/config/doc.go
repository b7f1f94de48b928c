// Package config handles loading and validating timetabled configuration.
//
// This package manages:
//   - Loading configuration from YAML files, on top of built-in defaults
//   - Overriding with TIMETABLED_* environment variables
//   - Validation of required fields and of the read-only timetable IDs
//   - Watching the file and handing each valid new version to a callback
//
// Security Considerations:
//   - Sensitive values (MQTT password, InfluxDB token, JWT secret) should be
//     set via environment variables
//   - The config file should have restricted permissions (0600)
//   - An empty JWT secret disables API authentication
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, def := range cfg.TimetableDefinitions() {
//	    fmt.Println(def.ID, def.Name)
//	}
//
// Only the timetables section is applied on reload; every other setting is
// read once at startup.
package config
