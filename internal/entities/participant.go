package entities

import "time"

// Participant is a viewer on the broadcast (spec §3, Participant). Indexed
// twice by the Mirror: by MixerID (host-facing) and by SessionID (the
// service's routing key for giveInput).
type Participant struct {
	MixerID     uint32
	SessionID   string
	Username    string
	Level       uint32
	GroupID     string
	Disabled    bool
	ConnectedAt time.Time
	LastInputAt time.Time
	Etag        string
}
