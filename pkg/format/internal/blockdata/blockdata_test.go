package blockdata

import (
	"testing"
)

func TestUnpack(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		n       int
		want    []uint32
		wantErr bool
	}{
		{"round trip", Pack([]uint32{0, 1, 300, 70000}), 4, []uint32{0, 1, 300, 70000}, false},
		{"empty", nil, 0, []uint32{}, false},
		{"more cells than bytes", []byte{0, 0}, 3, nil, true},
		{"huge count", []byte{0}, 1 << 30, nil, true},
		{"negative count", []byte{0}, -1, nil, true},
		{"truncated varint", []byte{0x80, 0x80}, 1, nil, true},
		{"trailing bytes", []byte{0, 0, 0}, 2, nil, true},
		{"value past uint32", []byte{0x80, 0x80, 0x80, 0x80, 0x10}, 1, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Unpack(tt.data, tt.n)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Unpack() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Unpack() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Unpack()[%d] = %d, want %d", i, got[i], tt.want[i])
				}
			}
		})
	}
}
