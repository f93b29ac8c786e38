package events

import (
	"context"
	"encoding/json"
	"testing"
)

func TestEventMarshalIsFlat(t *testing.T) {
	evt := Event{
		Type:      TypeStepResult,
		Timestamp: 1700000000,
		RunID:     "run-1",
		Payload: StepResult{
			StepID:        2,
			Title:         "extract dates",
			Tool:          "regex_extract",
			OK:            false,
			Logs:          "regex error",
			OutputPreview: "",
		},
	}

	data, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if fields["type"] != "step_result" {
		t.Errorf("type = %v", fields["type"])
	}
	if fields["timestamp"] != float64(1700000000) {
		t.Errorf("timestamp = %v", fields["timestamp"])
	}
	if fields["step_id"] != float64(2) {
		t.Errorf("step_id = %v", fields["step_id"])
	}
	if ok, present := fields["ok"]; !present || ok != false {
		t.Errorf("ok must be present and false, got %v (present=%v)", ok, present)
	}
	if _, present := fields["payload"]; present {
		t.Error("payload must be flattened, not nested")
	}
}

func TestEventDecodeRestoresPayloadType(t *testing.T) {
	original := New("run-9", FileDownload{Filename: "out.pdf", URL: "/api/docgen/download/out.pdf"})

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatal(err)
	}

	decoded := Decode(data)
	if decoded.Type != TypeFileDownload {
		t.Fatalf("type = %s", decoded.Type)
	}
	p, ok := decoded.Payload.(FileDownload)
	if !ok {
		t.Fatalf("payload type = %T", decoded.Payload)
	}
	if p.Filename != "out.pdf" || decoded.RunID != "run-9" {
		t.Errorf("decoded = %+v run=%s", p, decoded.RunID)
	}
}

func TestDecodeUnknownAndGarbage(t *testing.T) {
	unknown := Decode([]byte(`{"type":"custom","timestamp":5,"x":1}`))
	raw, ok := unknown.Payload.(Raw)
	if !ok {
		t.Fatalf("payload type = %T", unknown.Payload)
	}
	if raw["x"] != float64(1) || unknown.Type != "custom" {
		t.Errorf("unexpected raw decode: %+v", unknown)
	}

	garbage := Decode([]byte(`not json`))
	raw, ok = garbage.Payload.(Raw)
	if !ok || raw["raw"] != "not json" {
		t.Errorf("garbage line should be preserved, got %+v", garbage)
	}
}

func TestRunIDContext(t *testing.T) {
	ctx := WithRunID(context.Background(), "abc")
	if got := RunIDFrom(ctx); got != "abc" {
		t.Errorf("RunIDFrom = %q", got)
	}
	if got := RunIDFrom(context.Background()); got != "" {
		t.Errorf("RunIDFrom(empty) = %q", got)
	}
}
