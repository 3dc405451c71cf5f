// Package config loads and validates Room Sync Core configuration.
//
// Values come from three layers, later ones winning:
//  1. Built-in defaults (Default)
//  2. The YAML file
//  3. ROOMSYNC_<SECTION>_<KEY> environment variables, for example
//     ROOMSYNC_MQTT_URL or ROOMSYNC_SYNC_DEFAULT_ROOM
//
// Load runs Validate on the result. LoadUnvalidated skips it so callers
// can apply command-line overrides first.
//
// Broker passwords and InfluxDB tokens belong in ROOMSYNC_MQTT_PASSWORD and
// ROOMSYNC_INFLUXDB_TOKEN rather than the file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Sync.RootPrefix)
package config
