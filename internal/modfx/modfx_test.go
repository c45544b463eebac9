package modfx

import "testing"

func TestClampVolume(t *testing.T) {
	cases := []struct{ in, want int }{{-5, 0}, {0, 0}, {32, 32}, {64, 64}, {70, 64}}
	for _, c := range cases {
		if got := ClampVolume(c.in); got != c.want {
			t.Errorf("ClampVolume(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestVolumeSlide_UpTakesPrecedenceOverDown(t *testing.T) {
	// param 0x00 means neither nibble set: no change.
	if got := VolumeSlide(30, 0x00); got != 30 {
		t.Errorf("VolumeSlide(30, 0x00) = %d, want 30 (no-op)", got)
	}
	if got := VolumeSlide(30, 0x40); got != 34 {
		t.Errorf("VolumeSlide(30, 0x40) = %d, want 34", got)
	}
	if got := VolumeSlide(30, 0x04); got != 26 {
		t.Errorf("VolumeSlide(30, 0x04) = %d, want 26", got)
	}
	if got := VolumeSlide(30, 0x44); got != 34 {
		t.Errorf("VolumeSlide(30, 0x44) = %d, want 34 (up nibble wins)", got)
	}
	if got := VolumeSlide(62, 0x40); got != 64 {
		t.Errorf("VolumeSlide should clamp at 64, got %d", got)
	}
}

func TestBCD(t *testing.T) {
	cases := []struct {
		param byte
		want  int
	}{{0x00, 0}, {0x12, 12}, {0x45, 45}, {0x99, 99}}
	for _, c := range cases {
		if got := BCD(c.param); got != c.want {
			t.Errorf("BCD(%#x) = %d, want %d", c.param, got, c.want)
		}
	}
}

func TestPortaTowards_ClampsAtTarget(t *testing.T) {
	if got := PortaTowards(400, 420, 5); got != 405 {
		t.Errorf("PortaTowards(400,420,5) = %d, want 405", got)
	}
	if got := PortaTowards(418, 420, 5); got != 420 {
		t.Errorf("PortaTowards should clamp exactly at target, got %d want 420", got)
	}
	if got := PortaTowards(420, 400, 5); got != 415 {
		t.Errorf("PortaTowards(420,400,5) = %d, want 415", got)
	}
	if got := PortaTowards(420, 420, 5); got != 420 {
		t.Errorf("PortaTowards at target should stay put, got %d", got)
	}
}
