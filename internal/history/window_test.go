package history

import (
	"testing"
	"time"
)

func TestParseWindow(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Window
		wantErr bool
	}{
		{name: "empty defaults to one", in: "", want: 1},
		{name: "min", in: "1", want: 1},
		{name: "max", in: "6", want: 6},
		{name: "mid", in: "3", want: 3},
		{name: "zero", in: "0", wantErr: true},
		{name: "too large", in: "7", wantErr: true},
		{name: "negative", in: "-2", wantErr: true},
		{name: "not a number", in: "two", wantErr: true},
		{name: "float", in: "1.5", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseWindow(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseWindow(%q) = %d, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseWindow(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseWindow(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestCutoffAt(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	got := Window(2).CutoffAt(now)
	want := float64(now.Add(-60 * 24 * time.Hour).Unix())
	if got != want {
		t.Errorf("CutoffAt = %f, want %f", got, want)
	}
	// Wider windows reach further back.
	if Window(6).CutoffAt(now) >= Window(1).CutoffAt(now) {
		t.Error("six-month cutoff should precede one-month cutoff")
	}
}
