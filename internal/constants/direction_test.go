package constants

import "testing"

func TestDirection_Valid(t *testing.T) {
	tests := []struct {
		name string
		dir  Direction
		want bool
	}{
		{name: "incoming is valid", dir: DirectionIncoming, want: true},
		{name: "outgoing is valid", dir: DirectionOutgoing, want: true},
		{name: "empty string is invalid", dir: Direction(""), want: false},
		{name: "both is invalid", dir: Direction("both"), want: false},
		{name: "uppercase is invalid", dir: Direction("INCOMING"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.dir.Valid(); got != tt.want {
				t.Errorf("Direction(%q).Valid() = %v, want %v", tt.dir, got, tt.want)
			}
		})
	}
}

func TestDirection_String(t *testing.T) {
	if got := DirectionOutgoing.String(); got != "outgoing" {
		t.Errorf("DirectionOutgoing.String() = %q, want %q", got, "outgoing")
	}
}
