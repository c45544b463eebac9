package mod

import (
	"testing"

	clone "github.com/huandu/go-clone/generic"

	"github.com/groovehaus/groovecore/period"
)

// newTestSong builds a minimal one-pattern, one-sample song so effect tests
// can focus on a single channel's behavior, in the spirit of the testSong
// fixture in helpers_test.go, adapted to this package's Note/Song shapes.
func newTestSong(channels int, pattern []Note) *Song {
	data := make([]int8, 2000)
	for i := range data {
		data[i] = int8((i % 200) - 100)
	}
	return &Song{
		Title:    "test",
		Channels: channels,
		Orders:   []int{0},
		Patterns: [][]Note{pattern},
		Samples: [NumSamples]Sample{
			0: {Name: "s1", Length: len(data), Volume: 64, Data: data},
		},
	}
}

func row(notes ...Note) []Note { return notes }

func flattenRows(rows ...[]Note) []Note {
	var out []Note
	for _, r := range rows {
		out = append(out, r...)
	}
	// pad to RowsPerPattern
	for len(out) < RowsPerPattern*len(rows[0]) {
		out = append(out, make([]Note, len(rows[0]))...)
	}
	return out
}

func advanceOneRow(p *Player) {
	_, _, startRow := p.Position()
	left := make([]float64, 1)
	right := make([]float64, 1)
	for {
		p.RenderStereo(left, right)
		_, _, r := p.Position()
		if r != startRow || !p.IsPlaying() {
			return
		}
	}
}

func TestLoadFromBytes_RejectsShortFile(t *testing.T) {
	if _, err := LoadFromBytes([]byte("too short")); err == nil {
		t.Fatal("expected error for short file")
	}
}

func TestPlayer_TriggerAndRenderSample(t *testing.T) {
	pat := flattenRows(row(Note{Sample: 1, Period: period.Table[8][24]}))
	song := newTestSong(1, pat)
	p := NewPlayer(song, 44100)
	p.Start()

	left := make([]float64, 100)
	right := make([]float64, 100)
	n := p.RenderStereo(left, right)
	if n != 100 {
		t.Fatalf("RenderStereo returned %d, want 100", n)
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

func TestPlayer_SetVolumeEffect(t *testing.T) {
	pat := flattenRows(row(Note{Sample: 1, Period: period.Table[8][24], Effect: EffSetVolume, Param: 0x20}))
	song := newTestSong(1, pat)
	p := NewPlayer(song, 44100)
	p.Start()
	if p.channels[0].volume != 0x20 {
		t.Fatalf("expected volume set at row-parse time, got %d", p.channels[0].volume)
	}
}

func TestPlayer_VolumeSlideAppliesFromTickOne(t *testing.T) {
	pat := flattenRows(row(Note{Sample: 1, Period: period.Table[8][24], Effect: EffVolumeSlide, Param: 0x04}))
	song := newTestSong(1, pat)
	song.Samples[0].Volume = 32
	p := NewPlayer(song, 44100)
	p.Start()
	startVol := p.channels[0].volume
	p.onTick(0)
	if p.channels[0].volume != startVol {
		t.Errorf("volume slide must not apply on tick 0, got %d want %d", p.channels[0].volume, startVol)
	}
	p.onTick(1)
	if p.channels[0].volume != startVol-4 {
		t.Errorf("volume slide should apply on tick 1, got %d want %d", p.channels[0].volume, startVol-4)
	}
}

func TestPlayer_ArpeggioCyclesTickMod3(t *testing.T) {
	base := period.Table[8][24]
	pat := flattenRows(row(Note{Sample: 1, Period: base, Effect: EffArpeggio, Param: 0x47}))
	song := newTestSong(1, pat)
	p := NewPlayer(song, 44100)
	p.Start()

	p.onTick(0)
	if p.channels[0].arpPeriod != base {
		t.Errorf("tick 0 arpeggio should play the base note, got %d want %d", p.channels[0].arpPeriod, base)
	}
	p.onTick(1)
	want1 := period.Table[p.channels[0].finetune&0xF][period.NoteIndexForPeriod(base)+4]
	if p.channels[0].arpPeriod != want1 {
		t.Errorf("tick 1 arpeggio +4 semitones: got %d want %d", p.channels[0].arpPeriod, want1)
	}
	p.onTick(2)
	want2 := period.Table[p.channels[0].finetune&0xF][period.NoteIndexForPeriod(base)+7]
	if p.channels[0].arpPeriod != want2 {
		t.Errorf("tick 2 arpeggio +7 semitones: got %d want %d", p.channels[0].arpPeriod, want2)
	}
}

func TestPlayer_PatternBreakUsesBCD(t *testing.T) {
	pat := flattenRows(row(Note{Effect: EffPatternBreak, Param: 0x12})) // BCD -> row 12
	song := newTestSong(1, pat)
	song.Orders = []int{0, 0}
	p := NewPlayer(song, 44100)
	p.Start()
	advanceOneRow(p)
	_, _, r := p.Position()
	if r != 12 {
		t.Errorf("pattern break 0x12 should land on row 12 (BCD), got row %d", r)
	}
}

func TestPlayer_SetSpeedVsBPMSplit(t *testing.T) {
	pat := flattenRows(row(Note{Effect: EffSetSpeed, Param: 3}))
	song := newTestSong(1, pat)
	p := NewPlayer(song, 44100)
	p.Start()
	if p.seq.Speed() != 3 {
		t.Errorf("param < 0x20 must set speed, got speed=%d", p.seq.Speed())
	}

	pat2 := flattenRows(row(Note{Effect: EffSetSpeed, Param: 140}))
	song2 := newTestSong(1, pat2)
	p2 := NewPlayer(song2, 44100)
	p2.Start()
	if p2.seq.BPM() != 140 {
		t.Errorf("param >= 0x20 must set BPM, got bpm=%d", p2.seq.BPM())
	}
}

func TestPlayer_ChannelMuteSilencesOutput(t *testing.T) {
	pat := flattenRows(row(Note{Sample: 1, Period: period.Table[8][24]}))
	song := newTestSong(1, pat)
	p := NewPlayer(song, 44100)
	p.Start()
	p.SetChannelMute(0, true)

	left := make([]float64, 50)
	right := make([]float64, 50)
	p.RenderStereo(left, right)
	for i, s := range left {
		if s != 0 || right[i] != 0 {
			t.Fatalf("muted channel produced non-silent output at frame %d", i)
		}
	}
}

func TestPlayer_CloneIndependence(t *testing.T) {
	pat := flattenRows(row(Note{Sample: 1, Period: period.Table[8][24]}))
	song := newTestSong(1, pat)
	copySong := clone.Clone(song)
	copySong.Samples[0].Volume = 10

	if song.Samples[0].Volume == copySong.Samples[0].Volume {
		t.Fatal("clone.Clone should deep copy sample data, not alias it")
	}
}
