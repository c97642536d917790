package cache

import "testing"

func TestKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		parts []string
		want  string
	}{
		{parts: []string{"workorders", "detail", "WO-1"}, want: "workorders:detail:WO-1"},
		{parts: []string{"workorders", " list ", "status=completed"}, want: "workorders:list:status=completed"},
		{parts: []string{"workorders", "detail", "A:B"}, want: "workorders:detail:A_B"},
	}

	for _, tt := range tests {
		if got := Key(tt.parts...); got != tt.want {
			t.Errorf("Key(%v) = %q, want %q", tt.parts, got, tt.want)
		}
	}
}
