package ahx

import "testing"

// newTestSong builds a one-track, one-position song driving voice 0 with a
// single instrument, for player-behavior tests.
func newTestSong(trackLen int, steps []Step) *Song {
	tracks := make([][]Step, 1)
	tracks[0] = make([]Step, trackLen)
	copy(tracks[0], steps)

	return &Song{
		Revision:        1,
		SpeedMultiplier: 1,
		TrackLength:     trackLen,
		Positions: []Position{
			{Track: [4]int{0, -1, -1, -1}},
		},
		Tracks: tracks,
		Instruments: []Instrument{
			{}, // index 0 unused
			{
				Volume:     64,
				WaveLength: 0,
				Envelope: Envelope{
					AttackFrames:  1,
					AttackVolume:  64,
					DecayFrames:   1,
					DecayVolume:   64,
					SustainFrames: 100,
					ReleaseFrames: 1,
					ReleaseVolume: 0,
				},
				FilterLowerLimit: 100,
			},
		},
	}
}

func TestPlayer_TriggerAndRenderProducesSound(t *testing.T) {
	song := newTestSong(4, []Step{{Note: 30, Instrument: 1}})
	p := NewPlayer(song, 44100)
	p.Start()

	left := make([]float64, 200)
	right := make([]float64, 200)
	n := p.RenderStereo(left, right)
	if n != 200 {
		t.Fatalf("RenderStereo returned %d, want 200", n)
	}
	nonZero := false
	for _, s := range left {
		if s != 0 {
			nonZero = true
		}
	}
	if !nonZero {
		t.Error("expected non-silent output after triggering a note")
	}
}

func TestPlayer_ChannelMuteSilencesOutput(t *testing.T) {
	song := newTestSong(4, []Step{{Note: 30, Instrument: 1}})
	p := NewPlayer(song, 44100)
	p.Start()
	p.SetChannelMute(0, true)

	left := make([]float64, 100)
	right := make([]float64, 100)
	p.RenderStereo(left, right)
	for i, s := range left {
		if s != 0 || right[i] != 0 {
			t.Fatalf("muted channel produced non-silent output at frame %d", i)
		}
	}
}

func TestPlayer_NoteCutSilencesVoice(t *testing.T) {
	song := newTestSong(4, []Step{
		{Note: 30, Instrument: 1},
		{FX: FXEnhanced, FXParam: 0xC0}, // ExNoteCut, param 0
	})
	p := NewPlayer(song, 44100)
	p.Start()

	// Speed 6 at 44100Hz/50Hz frame rate means row 0 lasts 6*882=5292 samples;
	// render past that so row 1's note-cut effect has fired.
	left := make([]float64, 8000)
	right := make([]float64, 8000)
	p.RenderStereo(left, right)
	if p.voices[0].volume != 0 {
		t.Errorf("expected note-cut to zero channel volume, got %f", p.voices[0].volume)
	}
}

func TestPlayer_SpeedZeroStopsSong(t *testing.T) {
	song := newTestSong(2, []Step{{FX: FXSpeed, FXParam: 0}})
	p := NewPlayer(song, 44100)
	p.Start()

	left := make([]float64, 1000)
	right := make([]float64, 1000)
	p.RenderStereo(left, right)
	if p.IsPlaying() {
		t.Error("FXSpeed with param 0 should stop the song")
	}
}

func TestPlayer_PositionJumpSeeksOrder(t *testing.T) {
	song := newTestSong(2, []Step{{FX: FXPositionJump, FXParam: 1}})
	song.Positions = append(song.Positions, Position{Track: [4]int{0, -1, -1, -1}})
	p := NewPlayer(song, 44100)
	p.Start()

	left := make([]float64, 1)
	right := make([]float64, 1)
	order := -1
	for i := 0; i < 20000 && p.IsPlaying(); i++ {
		p.RenderStereo(left, right)
		o, _, _ := p.Position()
		if o == 1 {
			order = o
			break
		}
	}
	if order != 1 {
		t.Errorf("expected FXPositionJump param=1 to move playback to order 1, got %d", order)
	}
}

func TestDefaultPan_HardPansLikeAmigaLRRL(t *testing.T) {
	if defaultPan(0) != -1 || defaultPan(3) != -1 {
		t.Error("voices 0 and 3 should pan hard left")
	}
	if defaultPan(1) != 1 || defaultPan(2) != 1 {
		t.Error("voices 1 and 2 should pan hard right")
	}
}
