package guardian

import "testing"

func TestDecision_KindAndString(t *testing.T) {
	tests := []struct {
		d       Decision
		kind    Kind
		str     string
		conf    int
		hasConf bool
	}{
		{AutoMerge{Confidence: 95}, KindAutoMerge, "auto-merge (confidence 95)", 95, true},
		{Escalate{Confidence: 40, Threshold: 70}, KindEscalate, "escalate (confidence 40 < threshold 70)", 40, true},
		{Blocked{Reason: "high-stakes"}, KindBlocked, "blocked: high-stakes", 0, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if tt.d.Kind() != tt.kind {
				t.Errorf("Kind() = %q, want %q", tt.d.Kind(), tt.kind)
			}
			if tt.d.String() != tt.str {
				t.Errorf("String() = %q, want %q", tt.d.String(), tt.str)
			}
			conf, ok := Confidence(tt.d)
			if conf != tt.conf || ok != tt.hasConf {
				t.Errorf("Confidence() = %d, %v", conf, ok)
			}
		})
	}
}
