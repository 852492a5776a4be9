package input

// Channel indexes a position in model.Channels.
type Channel int

const (
	Roll Channel = iota
	Pitch
	Throttle
	Yaw
)

var channelNames = [...]string{"roll", "pitch", "throttle", "yaw"}

func (c Channel) String() string {
	if c < Roll || c > Yaw {
		return "unknown"
	}
	return channelNames[c]
}

// ParseChannel is the inverse of Channel.String.
func ParseChannel(s string) (Channel, bool) {
	for i, n := range channelNames {
		if n == s {
			return Channel(i), true
		}
	}
	return 0, false
}

// Binding moves one channel by Delta while its key or button is held.
type Binding struct {
	Channel Channel
	Delta   int
}

// AxisBinding maps a gamepad axis onto a channel.
type AxisBinding struct {
	Axis    int
	Channel Channel
	Invert  bool
}

// DefaultKeyMap binds WASD to pitch and roll and the arrow keys to throttle
// and yaw. q and e are alternatives for yaw.
func DefaultKeyMap() map[string]Binding {
	return map[string]Binding{
		"w":          {Pitch, -KeyStep},
		"s":          {Pitch, KeyStep},
		"a":          {Roll, -KeyStep},
		"d":          {Roll, KeyStep},
		"ArrowUp":    {Throttle, KeyStep},
		"ArrowDown":  {Throttle, -KeyStep},
		"ArrowLeft":  {Yaw, -KeyStep},
		"ArrowRight": {Yaw, KeyStep},
		"q":          {Yaw, -KeyStep},
		"e":          {Yaw, KeyStep},
	}
}

// DefaultAxes is the standard mapping layout: left stick yaw/throttle,
// right stick roll/pitch. Pushing a stick forward reports a negative value.
func DefaultAxes() []AxisBinding {
	return []AxisBinding{
		{Axis: 0, Channel: Yaw},
		{Axis: 1, Channel: Throttle, Invert: true},
		{Axis: 2, Channel: Roll},
		{Axis: 3, Channel: Pitch},
	}
}

// DefaultButtons binds the d-pad like the arrow keys.
func DefaultButtons() map[int]Binding {
	return map[int]Binding{
		12: {Throttle, KeyStep},
		13: {Throttle, -KeyStep},
		14: {Yaw, -KeyStep},
		15: {Yaw, KeyStep},
	}
}
