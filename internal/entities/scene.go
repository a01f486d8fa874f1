// Package entities is the local shadow of service state (spec §3): scenes,
// groups, controls and participants, plus the Mirror that owns them. The
// Mirror assumes its caller holds the session mutex — it has no locking of
// its own, the same contract the teacher's Hub methods suffixed "Locked"
// assume of their callers in internal/ws/hub.go.
package entities

// Scene is a named collection of controls (spec §3, Scene). Scenes are
// never destroyed client-side. A scene's controls come from the getScenes
// reply; onControlUpdate only updates controls already known and never adds
// new ones.
type Scene struct {
	ID       string
	Controls map[string]*Control
}

func newScene(id string) *Scene {
	return &Scene{ID: id, Controls: make(map[string]*Control)}
}
