package protocol

// Wire payload shapes for the RPC methods recognized in spec §4.4.

// GetTimeResult is the reply to getTime.
type GetTimeResult struct {
	Time int64 `json:"time"`
}

// GroupWire mirrors a single group entry as sent on getGroups/createGroups/
// updateGroups/onGroupCreate/onGroupUpdate.
type GroupWire struct {
	ID      string `json:"groupID"`
	SceneID string `json:"sceneID"`
	Etag    string `json:"etag,omitempty"`
}

// GetGroupsResult is the reply to getGroups.
type GetGroupsResult struct {
	Groups []GroupWire `json:"groups"`
}

// CreateOrUpdateGroupsParams is the params shape for createGroups/updateGroups.
type CreateOrUpdateGroupsParams struct {
	Groups []GroupWire `json:"groups"`
}

// ControlWire mirrors one control entry within a scene, covering both
// buttons and joysticks; unused fields are simply omitted on the wire.
type ControlWire struct {
	ControlID string `json:"controlID"`
	Kind      string `json:"kind"`
	Etag      string `json:"etag,omitempty"`
	Disabled  *bool  `json:"disabled,omitempty"`

	// button
	Cost             *uint32  `json:"cost,omitempty"`
	Progress         *float64 `json:"progress,omitempty"`
	CooldownDeadline *int64   `json:"cooldown,omitempty"`

	// joystick
	X *float64 `json:"x,omitempty"`
	Y *float64 `json:"y,omitempty"`
}

// SceneWire mirrors one scene entry within a getScenes reply.
type SceneWire struct {
	ID       string        `json:"sceneID"`
	Controls []ControlWire `json:"controls"`
}

// GetScenesResult is the reply to getScenes.
type GetScenesResult struct {
	Scenes []SceneWire `json:"scenes"`
}

// UpdateControlsParams is the params shape for updateControls/onControlUpdate.
type UpdateControlsParams struct {
	SceneID  string        `json:"sceneID"`
	Controls []ControlWire `json:"controls"`
}

// ParticipantWire mirrors one participant entry on the wire.
type ParticipantWire struct {
	SessionID   string `json:"sessionID"`
	UserID      uint32 `json:"userID"`
	Username    string `json:"username"`
	Level       uint32 `json:"level"`
	GroupID     string `json:"groupID"`
	Disabled    bool   `json:"disabled"`
	ConnectedAt int64  `json:"connectedAt"`
	LastInputAt int64  `json:"lastInputAt,omitempty"`
	Etag        string `json:"etag,omitempty"`
}

// UpdateParticipantsParams is the params shape for updateParticipants.
type UpdateParticipantsParams struct {
	Participants []ParticipantWire `json:"participants"`
}

// OnParticipantJoinParams is the params shape for onParticipantJoin.
type OnParticipantJoinParams struct {
	Participants []ParticipantWire `json:"participants"`
}

// OnParticipantLeaveParams is the params shape for onParticipantLeave.
type OnParticipantLeaveParams struct {
	Participants []ParticipantWire `json:"participants"`
}

// OnParticipantUpdateParams is the params shape for onParticipantUpdate.
type OnParticipantUpdateParams struct {
	Participants []ParticipantWire `json:"participants"`
}

// ReadyParams is the params shape for the outbound "ready" method.
type ReadyParams struct {
	IsReady bool `json:"isReady"`
}

// OnReadyParams is the params shape for the inbound "onReady" method.
type OnReadyParams struct {
	IsReady bool `json:"isReady"`
}

// CaptureParams is the params shape for the outbound "capture" method.
type CaptureParams struct {
	TransactionID string `json:"transactionID"`
}

// GiveInputParams is the params shape for the inbound "giveInput" method.
type GiveInputParams struct {
	ControlID     string  `json:"controlID"`
	ParticipantID string  `json:"participantID"` // a sessionID
	Event         string  `json:"event"`
	TransactionID string  `json:"transactionID,omitempty"`
	X             float64 `json:"x,omitempty"`
	Y             float64 `json:"y,omitempty"`
}
