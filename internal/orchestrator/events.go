package orchestrator

import (
	"encoding/json"
	"fmt"
)

// EventType names the kind of an Event on the wire.
type EventType string

const (
	EventAgentThinking  EventType = "agent_thinking"
	EventAgentResult    EventType = "agent_result"
	EventError          EventType = "error"
	EventTriageComplete EventType = "triage_complete"
)

// Event is one progress or result notification of a run. Which fields are
// meaningful depends on Type; MarshalJSON emits only those.
type Event struct {
	Type EventType

	// agent_thinking, agent_result
	Agent  string
	Avatar string
	Index  int

	// agent_result
	Content    string
	Confidence int

	// error
	Message string

	// triage_complete
	Summary    string
	AgentCount int
}

// ThinkingEvent announces that the stage at index is about to be invoked.
func ThinkingEvent(role, avatar string, index int) Event {
	return Event{Type: EventAgentThinking, Agent: role, Avatar: avatar, Index: index}
}

// ResultEvent carries a completed stage's raw output.
func ResultEvent(role, avatar string, index int, content string, confidence int) Event {
	return Event{
		Type:       EventAgentResult,
		Agent:      role,
		Avatar:     avatar,
		Index:      index,
		Content:    content,
		Confidence: confidence,
	}
}

// ErrorEvent reports the failure that ended a run.
func ErrorEvent(message string) Event {
	return Event{Type: EventError, Message: message}
}

// CompleteEvent carries the final summary and the number of ordinary stages.
func CompleteEvent(summary string, agentCount int) Event {
	return Event{Type: EventTriageComplete, Summary: summary, AgentCount: agentCount}
}

// Terminal reports whether no further events follow e in its run.
func (e Event) Terminal() bool {
	return e.Type == EventError || e.Type == EventTriageComplete
}

// ---------------------------------------------------------------------------
// Wire encoding
// ---------------------------------------------------------------------------

type thinkingWire struct {
	Type   EventType `json:"type"`
	Agent  string    `json:"agent"`
	Avatar string    `json:"avatar"`
	Index  int       `json:"index"`
}

type resultWire struct {
	Type       EventType `json:"type"`
	Agent      string    `json:"agent"`
	Avatar     string    `json:"avatar"`
	Index      int       `json:"index"`
	Content    string    `json:"content"`
	Confidence int       `json:"confidence"`
}

type errorWire struct {
	Type    EventType `json:"type"`
	Message string    `json:"message"`
}

type completeWire struct {
	Type       EventType `json:"type"`
	Summary    string    `json:"summary"`
	AgentCount int       `json:"agent_count"`
}

// anyWire accepts every field of every event shape.
type anyWire struct {
	Type       EventType `json:"type"`
	Agent      string    `json:"agent"`
	Avatar     string    `json:"avatar"`
	Index      int       `json:"index"`
	Content    string    `json:"content"`
	Confidence int       `json:"confidence"`
	Message    string    `json:"message"`
	Summary    string    `json:"summary"`
	AgentCount int       `json:"agent_count"`
}

// MarshalJSON encodes e in the shape its type defines.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventAgentThinking:
		return json.Marshal(thinkingWire{e.Type, e.Agent, e.Avatar, e.Index})
	case EventAgentResult:
		return json.Marshal(resultWire{e.Type, e.Agent, e.Avatar, e.Index, e.Content, e.Confidence})
	case EventError:
		return json.Marshal(errorWire{e.Type, e.Message})
	case EventTriageComplete:
		return json.Marshal(completeWire{e.Type, e.Summary, e.AgentCount})
	default:
		return nil, fmt.Errorf("orchestrator: cannot encode event type %q", e.Type)
	}
}

// UnmarshalJSON decodes any of the event shapes.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w anyWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Type {
	case EventAgentThinking, EventAgentResult, EventError, EventTriageComplete:
	default:
		return fmt.Errorf("orchestrator: unknown event type %q", w.Type)
	}
	*e = Event(w)
	return nil
}
