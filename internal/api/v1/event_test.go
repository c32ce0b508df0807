package v1

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestEventValidate(t *testing.T) {
	valid := Event{
		ID:         "evt-1",
		Stream:     "stockStream",
		Timestamp:  int64(1496289950000),
		IngestedAt: time.Now().UTC(),
		Data:       map[string]interface{}{"symbol": "IBM", "price": 50.0},
	}

	tests := []struct {
		name    string
		mutate  func(e *Event)
		wantErr bool
	}{
		{name: "valid", mutate: func(e *Event) {}},
		{name: "missing id is allowed", mutate: func(e *Event) { e.ID = "" }},
		{name: "missing timestamp is allowed", mutate: func(e *Event) { e.Timestamp = nil }},
		{name: "missing stream", mutate: func(e *Event) { e.Stream = "" }, wantErr: true},
		{name: "missing data", mutate: func(e *Event) { e.Data = nil }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := valid
			tt.mutate(&e)
			err := e.Validate()
			if tt.wantErr && err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestEvent_JSONKeepsTimestampForm(t *testing.T) {
	raw := `{"stream":"stockStream","timestamp":"2017-06-01 04:05:50 +05:30","data":{"symbol":"IBM","price":50}}`

	var e Event
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&e); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if e.Timestamp != "2017-06-01 04:05:50 +05:30" {
		t.Errorf("timestamp = %#v", e.Timestamp)
	}
	if _, ok := e.Data["price"].(json.Number); !ok {
		t.Errorf("price should decode as json.Number, got %T", e.Data["price"])
	}
}
