package topic

// Standard MQTT wildcard definitions.
const (
	// Wildcard is the single-level wildcard "+".
	// Example: "gcs/v1/telemetry/+" matches "gcs/v1/telemetry/sitl-1".
	Wildcard = "+"

	// MultiWildcard is the multi-level wildcard "#". It must be the last
	// character in the topic filter.
	MultiWildcard = "#"
)
