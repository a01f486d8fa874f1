package entities

import (
	"testing"

	"github.com/mixer/interactive-go/internal/protocol"
)

func TestJoinIndexesByBothIDsAndGroup(t *testing.T) {
	m := New()

	p := m.JoinParticipant(protocol.ParticipantWire{
		SessionID: "s1",
		UserID:    42,
		Username:  "Alice",
		GroupID:   "default",
	})

	if got, ok := m.ByMixerID(42); !ok || got != p {
		t.Fatalf("ByMixerID(42) = %v, %v; want %v, true", got, ok, p)
	}
	if got, ok := m.BySessionID("s1"); !ok || got != p {
		t.Fatalf("BySessionID(s1) = %v, %v; want %v, true", got, ok, p)
	}
	inGroup := m.ParticipantsInGroup("default")
	if len(inGroup) != 1 || inGroup[0] != p {
		t.Fatalf("ParticipantsInGroup(default) = %v, want [%v]", inGroup, p)
	}
}

func TestMoveParticipantGroupRoundTrip(t *testing.T) {
	m := New()
	m.Groups["b"] = &Group{ID: "b", SceneID: "default"}

	p := m.JoinParticipant(protocol.ParticipantWire{SessionID: "s1", UserID: 1, GroupID: "default"})

	if err := m.MoveParticipantGroup(p, "default", "b"); err != nil {
		t.Fatalf("move to b: %v", err)
	}
	if err := m.MoveParticipantGroup(p, "b", "default"); err != nil {
		t.Fatalf("move back to default: %v", err)
	}

	inDefault := m.ParticipantsInGroup("default")
	if len(inDefault) != 1 || inDefault[0] != p {
		t.Fatalf("after round trip, ParticipantsInGroup(default) = %v, want [%v]", inDefault, p)
	}
	inB := m.ParticipantsInGroup("b")
	if len(inB) != 0 {
		t.Fatalf("after round trip, ParticipantsInGroup(b) = %v, want empty", inB)
	}
}

func TestMoveParticipantGroupUnknownGroupFails(t *testing.T) {
	m := New()
	p := m.JoinParticipant(protocol.ParticipantWire{SessionID: "s1", UserID: 1, GroupID: "default"})

	if err := m.MoveParticipantGroup(p, "default", "nonexistent"); err == nil {
		t.Fatalf("expected error moving to unknown group")
	}
	if p.GroupID != "default" {
		t.Fatalf("GroupID changed to %q despite failed move", p.GroupID)
	}
}

func TestLeaveParticipantRemovesFromGroupButKeepsRecord(t *testing.T) {
	m := New()
	p := m.JoinParticipant(protocol.ParticipantWire{SessionID: "s1", UserID: 1, GroupID: "default"})

	left := m.LeaveParticipant("s1")
	if left != p {
		t.Fatalf("LeaveParticipant returned %v, want %v", left, p)
	}
	if len(m.ParticipantsInGroup("default")) != 0 {
		t.Fatalf("participant still in group bucket after leave")
	}
	if _, ok := m.BySessionID("s1"); !ok {
		t.Fatalf("participant record removed from sessionID index after leave")
	}
}

func TestUpsertGroupsIdempotent(t *testing.T) {
	m := New()
	groups := []protocol.GroupWire{{ID: "g1", SceneID: "scene-a", Etag: "e1"}}

	m.UpsertGroups(groups)
	first := *m.Groups["g1"]

	m.UpsertGroups(groups)
	second := *m.Groups["g1"]

	if first != second {
		t.Fatalf("UpsertGroups not idempotent: %+v != %+v", first, second)
	}
}

func TestSetGroupSceneUpdatesMirrorLocally(t *testing.T) {
	m := New()
	m.Scenes["arena"] = newScene("arena")

	if err := m.SetGroupScene("default", "arena"); err != nil {
		t.Fatalf("SetGroupScene: %v", err)
	}
	if m.Groups["default"].SceneID != "arena" {
		t.Fatalf("group scene = %q, want arena", m.Groups["default"].SceneID)
	}
}

func TestSetGroupSceneUnknownSceneFails(t *testing.T) {
	m := New()
	if err := m.SetGroupScene("default", "nonexistent"); err == nil {
		t.Fatalf("expected error for unknown scene")
	}
	if m.Groups["default"].SceneID != "default" {
		t.Fatalf("group scene changed despite unknown target scene")
	}
}

func TestJoinParticipantSanitizesUsername(t *testing.T) {
	m := New()
	p := m.JoinParticipant(protocol.ParticipantWire{
		SessionID: "s1",
		UserID:    1,
		Username:  "<script>alert(1)</script>Bob",
		GroupID:   "default",
	})
	if p.Username == "<script>alert(1)</script>Bob" {
		t.Fatalf("username was not sanitized: %q", p.Username)
	}
}
