package bus_test

import (
	"testing"

	"github.com/barnqueue/barn/internal/bus"
)

func TestChannel_TemplateRendering(t *testing.T) {
	tests := []struct {
		template string
		app      string
		model    string
		want     string
	}{
		{bus.DefaultChannelTemplate, "barn", "task", "barn_barn_task"},
		{bus.DefaultChannelTemplate, "my.app", "schedule", "barn_my_app_schedule"},
		{"barn_events", "barn", "task", "barn_events"},
	}
	for _, tt := range tests {
		if got := bus.Channel(tt.template, tt.app, tt.model); got != tt.want {
			t.Errorf("Channel(%q, %q, %q) = %q, want %q", tt.template, tt.app, tt.model, got, tt.want)
		}
	}
}

func TestPayload_RoundTrip(t *testing.T) {
	p := bus.Payload{Version: bus.PayloadVersion, Model: "barn.task", PK: 42, Event: bus.EventCreate}
	raw, err := p.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	got, err := bus.Unmarshal(raw)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != p {
		t.Fatalf("got %+v, want %+v", got, p)
	}

	if _, err := bus.Unmarshal([]byte("not json")); err == nil {
		t.Fatal("Unmarshal accepted garbage")
	}
}
