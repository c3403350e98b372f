package events

const (
	TopicConnStatus    = "conn.status"
	TopicMidiIn        = "midi.in"
	TopicMidiOut       = "midi.out"
	TopicPresetChanged = "preset.changed"
	TopicSettingsSaved = "settings.saved"
	TopicDeviceRestart = "device.restart"
)

// HighRateTopics carry per-message MIDI traffic and are not logged on publish.
var HighRateTopics = []string{TopicMidiIn, TopicMidiOut}
