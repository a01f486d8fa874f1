package entities

import (
	"fmt"
	"time"

	"github.com/mixer/interactive-go/internal/protocol"
	"github.com/mixer/interactive-go/internal/sanitize"
)

// Mirror is the in-memory shadow of service state: scenes, groups, controls
// and the doubly-indexed participant set (spec §3). All methods assume the
// caller already holds the owning session's mutex; Mirror itself performs
// no locking, mirroring the teacher's convention of "Locked"-suffixed Hub
// helpers that document the same assumption (internal/ws/hub.go).
type Mirror struct {
	Scenes   map[string]*Scene
	Groups   map[string]*Group
	Controls map[string]*Control // keyed by ControlID, spans all scenes

	participantsByMixerID   map[uint32]*Participant
	participantsBySessionID map[string]*Participant
	participantsByGroupID   map[string]map[uint32]*Participant
}

// New builds an empty Mirror seeded with the well-known default scene/group,
// matching the service's implicit "default"/"default" cohort.
func New() *Mirror {
	m := &Mirror{
		Scenes:                  make(map[string]*Scene),
		Groups:                  make(map[string]*Group),
		Controls:                make(map[string]*Control),
		participantsByMixerID:   make(map[uint32]*Participant),
		participantsBySessionID: make(map[string]*Participant),
		participantsByGroupID:   make(map[string]map[uint32]*Participant),
	}
	m.Scenes["default"] = newScene("default")
	m.Groups["default"] = newDefaultGroup()
	return m
}

// ApplyGetGroups installs the getGroups reply (spec §4.7).
func (m *Mirror) ApplyGetGroups(groups []protocol.GroupWire) {
	for _, g := range groups {
		m.Groups[g.ID] = &Group{ID: g.ID, SceneID: g.SceneID, Etag: g.Etag}
	}
}

// ApplyGetScenes installs the getScenes reply, creating scenes and their
// controls (spec §4.7).
func (m *Mirror) ApplyGetScenes(scenes []protocol.SceneWire) {
	for _, sw := range scenes {
		scene := newScene(sw.ID)
		m.Scenes[sw.ID] = scene
		for _, cw := range sw.Controls {
			control := m.controlFromWire(sw.ID, cw)
			scene.Controls[control.ID] = control
			m.Controls[control.ID] = control
		}
	}
}

func (m *Mirror) controlFromWire(sceneID string, cw protocol.ControlWire) *Control {
	var c *Control
	switch cw.Kind {
	case string(KindJoystick):
		c = newJoystick(cw.ControlID, sceneID)
		if cw.X != nil {
			c.X = *cw.X
		}
		if cw.Y != nil {
			c.Y = *cw.Y
		}
	default:
		c = newButton(cw.ControlID, sceneID)
		if cw.Cost != nil {
			c.Cost = *cw.Cost
		}
		if cw.CooldownDeadline != nil {
			c.CooldownDeadline = *cw.CooldownDeadline
		}
	}
	c.Etag = cw.Etag
	if cw.Disabled != nil {
		c.Disabled = *cw.Disabled
	}
	return c
}

// UpsertGroups applies createGroups/updateGroups replies and onGroupCreate/
// onGroupUpdate notifications: for each group with a matching id, replace
// SceneID and Etag (spec §4.7). Idempotent: applying the same payload twice
// yields the same result (spec §8).
func (m *Mirror) UpsertGroups(groups []protocol.GroupWire) {
	for _, g := range groups {
		existing, ok := m.Groups[g.ID]
		if !ok {
			m.Groups[g.ID] = &Group{ID: g.ID, SceneID: g.SceneID, Etag: g.Etag}
			continue
		}
		existing.SceneID = g.SceneID
		existing.Etag = g.Etag
	}
}

// UpdateControls dispatches each wire control to the matching Button/
// Joystick update by kind (spec §4.7, updateControls/onControlUpdate).
func (m *Mirror) UpdateControls(controls []protocol.ControlWire) {
	for _, cw := range controls {
		existing, ok := m.Controls[cw.ControlID]
		if !ok {
			continue
		}
		existing.Etag = cw.Etag
		if cw.Disabled != nil {
			existing.Disabled = *cw.Disabled
		}
		switch existing.Kind {
		case KindButton:
			if cw.Cost != nil {
				existing.Cost = *cw.Cost
			}
			if cw.CooldownDeadline != nil {
				existing.CooldownDeadline = *cw.CooldownDeadline
			}
		case KindJoystick:
			if cw.X != nil {
				existing.X = *cw.X
			}
			if cw.Y != nil {
				existing.Y = *cw.Y
			}
		}
	}
}

// JoinParticipant builds and indexes a new participant (spec §4.7,
// onParticipantJoin).
func (m *Mirror) JoinParticipant(pw protocol.ParticipantWire) *Participant {
	p := &Participant{
		MixerID:     pw.UserID,
		SessionID:   pw.SessionID,
		Username:    sanitize.Text(pw.Username),
		Level:       pw.Level,
		GroupID:     pw.GroupID,
		Disabled:    pw.Disabled,
		ConnectedAt: time.UnixMilli(pw.ConnectedAt),
		Etag:        pw.Etag,
	}
	m.indexParticipant(p)
	return p
}

func (m *Mirror) indexParticipant(p *Participant) {
	m.participantsByMixerID[p.MixerID] = p
	m.participantsBySessionID[p.SessionID] = p
	bucket, ok := m.participantsByGroupID[p.GroupID]
	if !ok {
		bucket = make(map[uint32]*Participant)
		m.participantsByGroupID[p.GroupID] = bucket
	}
	bucket[p.MixerID] = p
}

// LeaveParticipant removes a participant from the group index (spec §4.7,
// onParticipantLeave). The participant record itself (and its per-control
// button/joystick state) is left in place; only its group membership is
// cleared, preserving history for any in-flight event still referencing it.
func (m *Mirror) LeaveParticipant(sessionID string) *Participant {
	p, ok := m.participantsBySessionID[sessionID]
	if !ok {
		return nil
	}
	if bucket, ok := m.participantsByGroupID[p.GroupID]; ok {
		delete(bucket, p.MixerID)
	}
	return p
}

// UpdateParticipant merges fields onto an existing participant looked up by
// mixerID (updateParticipants, spec §4.7) or sessionID (onParticipantUpdate,
// spec §4.7). Moving between groups re-indexes participantsByGroupID so the
// invariant "exactly one bucket contains the participant" holds (spec §3,
// §8).
func (m *Mirror) UpdateParticipant(p *Participant, pw protocol.ParticipantWire) {
	oldGroup := p.GroupID
	p.Username = sanitize.Text(pw.Username)
	p.Level = pw.Level
	p.Disabled = pw.Disabled
	p.Etag = pw.Etag
	if pw.GroupID != "" && pw.GroupID != oldGroup {
		m.MoveParticipantGroup(p, oldGroup, pw.GroupID)
	}
}

// ByMixerID looks up a participant by host-facing id.
func (m *Mirror) ByMixerID(id uint32) (*Participant, bool) {
	p, ok := m.participantsByMixerID[id]
	return p, ok
}

// BySessionID looks up a participant by the service-facing session id
// (used to route giveInput, spec §4.8).
func (m *Mirror) BySessionID(id string) (*Participant, bool) {
	p, ok := m.participantsBySessionID[id]
	return p, ok
}

// Participants returns every participant currently known, for the host
// query surface (spec §6, get_participants).
func (m *Mirror) Participants() []*Participant {
	out := make([]*Participant, 0, len(m.participantsByMixerID))
	for _, p := range m.participantsByMixerID {
		out = append(out, p)
	}
	return out
}

// ParticipantsInGroup returns the participants currently assigned to a
// group, satisfying the invariant that this set always matches each
// participant's own GroupID (spec §3, §8).
func (m *Mirror) ParticipantsInGroup(groupID string) []*Participant {
	bucket := m.participantsByGroupID[groupID]
	out := make([]*Participant, 0, len(bucket))
	for _, p := range bucket {
		out = append(out, p)
	}
	return out
}

// MoveParticipantGroup rewrites the group index for a participant (spec
// §4.9, move_participant_group). Moving A->B then B->A restores the
// original index contents (spec §8, round-trip property).
func (m *Mirror) MoveParticipantGroup(p *Participant, oldGroupID, newGroupID string) error {
	if _, ok := m.Groups[newGroupID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownGroup, newGroupID)
	}
	if bucket, ok := m.participantsByGroupID[oldGroupID]; ok {
		delete(bucket, p.MixerID)
	}
	bucket, ok := m.participantsByGroupID[newGroupID]
	if !ok {
		bucket = make(map[uint32]*Participant)
		m.participantsByGroupID[newGroupID] = bucket
	}
	bucket[p.MixerID] = p
	p.GroupID = newGroupID
	return nil
}

// SetGroupScene updates a group's SceneID in the local mirror. Spec §9
// documents this as the fix for the source's try_set_current_scene bug:
// the mutator must apply this locally before enqueuing the updateGroups
// RPC, not only send the RPC and hope the service's reply catches up.
func (m *Mirror) SetGroupScene(groupID, sceneID string) error {
	group, ok := m.Groups[groupID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownGroup, groupID)
	}
	if _, ok := m.Scenes[sceneID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownScene, sceneID)
	}
	group.SceneID = sceneID
	return nil
}
