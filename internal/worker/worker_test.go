package worker

import (
	"testing"

	"github.com/strainlabs/strain/internal/spawn"
)

func TestDecodeSpec(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"valid", `{"stressor":"vm","instance":2,"vmBytes":1048576}`, false},
		{"empty env", "", true},
		{"not json", "{", true},
		{"no stressor name", `{"instance":1}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := decodeSpec(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeSpec: %v", err)
			}
			want := spawn.Spec{Stressor: "vm", Instance: 2, VMBytes: 1 << 20}
			if spec != want {
				t.Fatalf("spec = %+v, want %+v", spec, want)
			}
		})
	}
}
