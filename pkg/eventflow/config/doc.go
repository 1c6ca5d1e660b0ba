/*
Package config provides type-safe configuration extraction for eventflow.

# Overview

config wraps a map[string]any and provides typed accessor methods that handle
missing keys and type mismatches gracefully by returning default values.
The dispatcher reads its two timeouts through it:

	timeout.blocking  per-listener budget for blocking listeners (default 30000 ms)
	timeout.event     budget for one tier's blocking listeners (default 3x blocking)

# Sources

	cfg := config.New(map[string]any{"timeout.blocking": 500})

	cfg, err := config.FromFile("eventflow.yaml") // .yaml, .yml, .json
	cfg, err = config.FromYAML(yamlBytes)
	cfg, err = config.FromJSON(jsonBytes)

	cfg = config.FromEnv(config.EnvPrefix) // EVENTFLOW_TIMEOUT_BLOCKING=500

Process combines them the way a service starts up: an optional .env file,
then the file named by EVENTFLOW_CONFIG, then EVENTFLOW_* variables on top.

# Units

Millis reads bare numbers as milliseconds and strings either as integers
(milliseconds) or Go durations ("1.5s"). Duration keeps the seconds
convention for bare numbers.

# Thread Safety

Config is safe for concurrent read access. The underlying map is not
modified after creation.
*/
package config
