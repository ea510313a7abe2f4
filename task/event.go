package task

import "encoding/json"

// EventName is the wire name of a task event.
type EventName string

const (
	EventProgress  EventName = "progress"
	EventStream    EventName = "stream"
	EventResult    EventName = "result"
	EventComplete  EventName = "complete"
	EventError     EventName = "error"
	EventCancelled EventName = "cancelled"
)

// Event is the envelope pushed to a task's queue. It marshals as
// {"event": name, "data": {...}}.
type Event struct {
	Name EventName      `json:"event"`
	Data map[string]any `json:"data"`
}

// JSONData returns the data payload encoded as JSON, as written to an SSE
// data line.
func (e Event) JSONData() ([]byte, error) {
	return json.Marshal(e.Data)
}

// Final reports whether a listener should stop after forwarding e.
func (e Event) Final() bool {
	switch e.Name {
	case EventComplete, EventCancelled:
		return true
	case EventError:
		recoverable, _ := e.Data["recoverable"].(bool)
		return !recoverable
	default:
		return false
	}
}

// Extra is an additional payload field attached to progress and error
// events, such as the current page number.
type Extra struct {
	Key   string
	Value any
}

// KV builds an Extra.
func KV(key string, value any) Extra {
	return Extra{Key: key, Value: value}
}

func withExtra(data map[string]any, extra []Extra) map[string]any {
	for _, e := range extra {
		if _, reserved := data[e.Key]; reserved {
			continue
		}
		data[e.Key] = e.Value
	}
	return data
}
