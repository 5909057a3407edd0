package nav

import "testing"

func TestIntentURL(t *testing.T) {
	tests := []struct {
		name   string
		intent Intent
		want   string
	}{
		{
			name:   "plain thread",
			intent: Intent{ProjectID: "p1", ThreadID: "t1"},
			want:   "/p1/t1",
		},
		{
			name:   "adaptive trigger",
			intent: Intent{ProjectID: "p2", ThreadID: "t2", TriggerAdaptive: true},
			want:   "/p2/t2?trigger_adaptive=true",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.intent.URL(); got != tt.want {
				t.Errorf("URL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHandoffIsOneShot(t *testing.T) {
	reg := NewHandoffRegistry()
	reg.Put("t1", Handoff{Prompt: "refactor this repo", AgentID: "a1"})

	h, ok := reg.Take("t1")
	if !ok || h.Prompt != "refactor this repo" {
		t.Fatalf("Take() = %+v, %v", h, ok)
	}

	if _, ok := reg.Take("t1"); ok {
		t.Error("second Take must miss")
	}
	if _, ok := reg.Take("never"); ok {
		t.Error("Take on unknown thread must miss")
	}
}

func TestRecorderCollectsIntents(t *testing.T) {
	r := &Recorder{}
	r.Navigate(Intent{ProjectID: "p", ThreadID: "t"})
	got := r.Intents()
	if len(got) != 1 || got[0].ThreadID != "t" {
		t.Errorf("Intents() = %v", got)
	}
}
