package event

import (
	"linscore/internal/score"
)

// Event is one raw transport-service event, e.g.
// {"service_id": "S1", "start_delay_min": 2, "play_pressed": true}.
type Event map[string]any

// Key returns the entity key stored in field. Events without the field,
// or with a null or empty value, have no key.
func (e Event) Key(field string) (string, bool) {
	v, found := e[field]
	if !found || v == nil {
		return "", false
	}
	key := score.KeyString(v)
	if key == "" {
		return "", false
	}
	return key, true
}
