package mmd

import "testing"

func TestDefaultPan_IsCenterForEveryTrack(t *testing.T) {
	for i := 0; i < 8; i++ {
		if got := DefaultPan(i); got != 0 {
			t.Errorf("DefaultPan(%d) = %f, want 0", i, got)
		}
	}
}
