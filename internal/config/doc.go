// Package config provides configuration management for wsagent.
//
// Configuration is layered. Later sources override earlier ones:
//
//  1. Default configuration (compiled in)
//  2. User configuration (~/.config/wsagent/config.yaml)
//  3. Project configuration (./.wsagent/config.yaml)
//  4. Environment (SUPERVISOR_ADDR)
//
// A single explicit file can be loaded instead with LoadConfigFromPath; it is
// still layered on top of the defaults.
//
// # Configuration Structure
//
//	supervisor:
//	  address: localhost:22999
//	deadlines:
//	  long: 30s
//	  normal: 15s
//	  short: 5s
//	  respond: 5s
//	backoff:
//	  interval: 1s
//	  factor: 1.0
//	mcp:
//	  enabled: true
//	  port: 8095
//	metrics:
//	  enabled: true
//	  address: localhost:9464
//
// A factor of 1.0 keeps the reconnect interval flat, which is what a
// co-located supervisor wants. Larger factors grow the interval up to cap.
package config
