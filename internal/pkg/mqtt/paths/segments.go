package paths

// Topic segments shared by the station and the vehicle backend bridge.
// Every topic follows {root}/{segment}/{vehicleID}.

// Downstream: Station -> Backend
const (
	// Command carries control frames such as rc_override.
	// Pattern: {root}/command/{vehicleID}
	Command = "command"
)

// Upstream: Backend -> Station
const (
	// Telemetry carries every JSON frame the backend emits for a vehicle:
	// telemetry, statustext and log.
	// Pattern: {root}/telemetry/{vehicleID}
	Telemetry = "telemetry"

	// Online reports vehicle link presence, usually as a retained message
	// backed by the bridge's will message.
	// Payload: { "online": true/false, "name": "..." }
	// Pattern: {root}/online/{vehicleID}
	Online = "online"
)
