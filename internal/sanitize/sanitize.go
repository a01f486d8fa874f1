// Package sanitize strips HTML/script content from strings the service
// forwards on behalf of viewers (participant usernames, as they enter the
// mirror) before they reach host callbacks. This is the same defensive posture as
// the teacher's htmlPolicy.Sanitize on chat message content
// (internal/ws/client.go, handleMessageSend), applied here to viewer-
// controlled interactive metadata instead of chat text.
package sanitize

import "github.com/microcosm-cc/bluemonday"

var policy = bluemonday.StrictPolicy()

// Text strips all markup, returning plain text safe to hand to a host UI
// that might render it without further escaping.
func Text(s string) string {
	return policy.Sanitize(s)
}
