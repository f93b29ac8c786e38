package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Type is the kind tag carried by every event on the wire.
type Type string

const (
	TypeRunStarted    Type = "run_started"
	TypePlannerOutput Type = "planner_output"
	TypeStepStarted   Type = "step_started"
	TypeStepResult    Type = "step_result"
	TypeReason        Type = "reason"
	TypeNeedInput     Type = "need_input"
	TypeFileDownload  Type = "file_download"
	TypeEvaluation    Type = "evaluation"
	TypeAgentStopped  Type = "agent_stopped"
	TypeNextSteps     Type = "next_steps"
	TypeRunComplete   Type = "run_complete"
	TypeIngest        Type = "ingest"
)

// Payload is the kind-specific body of an event.
type Payload interface {
	Kind() Type
}

// Event is an immutable, timestamped fact. On the wire it is a single flat
// JSON object: {"type": ..., "timestamp": ..., "run_id": ..., ...payload}.
type Event struct {
	Type      Type
	Timestamp int64
	RunID     string
	Payload   Payload
}

// New stamps a payload with the current Unix time.
func New(runID string, p Payload) Event {
	return Event{
		Type:      p.Kind(),
		Timestamp: time.Now().Unix(),
		RunID:     runID,
		Payload:   p,
	}
}

// Emitter accepts events. Implementations must not block the caller for long
// and must never surface failures to it.
type Emitter interface {
	Emit(Event)
}

// Discard drops every event.
var Discard Emitter = discard{}

type discard struct{}

func (discard) Emit(Event) {}

type runIDKey struct{}

// WithRunID attaches the run id so tools deep in a call chain can tag the
// events they emit.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFrom returns the run id attached by WithRunID, or "".
func RunIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

type PlannerOutput struct {
	Raw     string `json:"raw"`
	Attempt int    `json:"attempt"`
}

type StepStarted struct {
	StepID int            `json:"step_id"`
	Title  string         `json:"title"`
	Tool   string         `json:"tool"`
	Input  map[string]any `json:"input"`
}

type StepResult struct {
	StepID        int    `json:"step_id"`
	Title         string `json:"title"`
	Tool          string `json:"tool"`
	OK            bool   `json:"ok"`
	Logs          string `json:"logs"`
	OutputPreview string `json:"output_preview"`
}

type Reason struct {
	StepID int    `json:"step_id"`
	Title  string `json:"title"`
}

type NeedInput struct {
	StepID int      `json:"step_id"`
	Title  string   `json:"title"`
	Fields []string `json:"fields"`
	Prompt string   `json:"prompt"`
}

type FileDownload struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

type Evaluation struct {
	Success bool   `json:"success"`
	Summary string `json:"summary"`
	Sources []any  `json:"sources"`
}

type AgentStopped struct {
	Reason string `json:"reason"`
	StepID int    `json:"step_id,omitempty"`
}

type NextSteps struct {
	NextSteps []string `json:"next_steps"`
}

type RunComplete struct {
	Success bool   `json:"success"`
	Summary string `json:"summary"`
	Status  string `json:"status,omitempty"`
}

type RunStarted struct {
	Goal string `json:"goal"`
}

// Ingest records one stage or attempt of the corpus ingestion agent.
type Ingest struct {
	Action   string  `json:"action"`
	Target   string  `json:"target,omitempty"`
	Status   string  `json:"status,omitempty"`
	Attempt  int     `json:"attempt,omitempty"`
	Error    string  `json:"error,omitempty"`
	Reason   string  `json:"reason,omitempty"`
	Duration float64 `json:"duration,omitempty"`
	Count    int     `json:"count,omitempty"`
}

// Raw holds lines whose type is unknown or which failed to decode.
type Raw map[string]any

func (PlannerOutput) Kind() Type { return TypePlannerOutput }
func (StepStarted) Kind() Type   { return TypeStepStarted }
func (StepResult) Kind() Type    { return TypeStepResult }
func (Reason) Kind() Type        { return TypeReason }
func (NeedInput) Kind() Type     { return TypeNeedInput }
func (FileDownload) Kind() Type  { return TypeFileDownload }
func (Evaluation) Kind() Type    { return TypeEvaluation }
func (AgentStopped) Kind() Type  { return TypeAgentStopped }
func (NextSteps) Kind() Type     { return TypeNextSteps }
func (RunComplete) Kind() Type   { return TypeRunComplete }
func (RunStarted) Kind() Type    { return TypeRunStarted }
func (Ingest) Kind() Type        { return TypeIngest }
func (r Raw) Kind() Type {
	t, _ := r["type"].(string)
	return Type(t)
}

// MarshalJSON flattens the payload next to the envelope fields.
func (e Event) MarshalJSON() ([]byte, error) {
	fields := map[string]any{}
	if e.Payload != nil {
		body, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", e.Type, err)
		}
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, fmt.Errorf("flatten %s payload: %w", e.Type, err)
		}
	}
	fields["type"] = e.Type
	fields["timestamp"] = e.Timestamp
	if e.RunID != "" {
		fields["run_id"] = e.RunID
	}
	return json.Marshal(fields)
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var head struct {
		Type      Type   `json:"type"`
		Timestamp int64  `json:"timestamp"`
		RunID     string `json:"run_id"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}

	payload, err := decodePayload(head.Type, data)
	if err != nil {
		return fmt.Errorf("decode %s event: %w", head.Type, err)
	}

	e.Type = head.Type
	e.Timestamp = head.Timestamp
	e.RunID = head.RunID
	e.Payload = payload
	return nil
}

func decodePayload(t Type, data []byte) (Payload, error) {
	switch t {
	case TypePlannerOutput:
		return decodeAs[PlannerOutput](data)
	case TypeStepStarted:
		return decodeAs[StepStarted](data)
	case TypeStepResult:
		return decodeAs[StepResult](data)
	case TypeReason:
		return decodeAs[Reason](data)
	case TypeNeedInput:
		return decodeAs[NeedInput](data)
	case TypeFileDownload:
		return decodeAs[FileDownload](data)
	case TypeEvaluation:
		return decodeAs[Evaluation](data)
	case TypeAgentStopped:
		return decodeAs[AgentStopped](data)
	case TypeNextSteps:
		return decodeAs[NextSteps](data)
	case TypeRunComplete:
		return decodeAs[RunComplete](data)
	case TypeRunStarted:
		return decodeAs[RunStarted](data)
	case TypeIngest:
		return decodeAs[Ingest](data)
	default:
		var raw Raw
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		delete(raw, "timestamp")
		delete(raw, "run_id")
		return raw, nil
	}
}

func decodeAs[T Payload](data []byte) (Payload, error) {
	var p T
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return p, nil
}

// Decode parses one log line. Lines that are not valid events are returned
// as a Raw payload carrying the original text so nothing is silently lost.
func Decode(line []byte) Event {
	var evt Event
	if err := json.Unmarshal(line, &evt); err != nil {
		return Event{Payload: Raw{"raw": string(line)}}
	}
	return evt
}
