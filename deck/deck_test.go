package deck

import (
	"encoding/binary"
	"testing"
)

// buildMinimalMOD assembles the smallest valid M.K. 4-channel ProTracker
// file: a title, 31 empty sample descriptors, a 1-entry order list, the
// "M.K." tag, and one empty pattern.
func buildMinimalMOD() []byte {
	const numSamples = 31
	const sampleDescSz = 30
	buf := make([]byte, 20) // title
	for i := 0; i < numSamples; i++ {
		s := make([]byte, sampleDescSz)
		binary.BigEndian.PutUint16(s[22:24], 0) // length words
		buf = append(buf, s...)
	}
	buf = append(buf, 1) // song length
	buf = append(buf, 0) // restart byte
	orders := make([]byte, 128)
	buf = append(buf, orders...)
	buf = append(buf, []byte("M.K.")...)

	rowBytes := 64 * 4 * 4 // rows * channels * bytes-per-cell
	buf = append(buf, make([]byte, rowBytes)...)
	return buf
}

// buildMinimalAHX assembles a single-track (saved), single-position,
// single-instrument AHX1 file with one triggering step, mirroring
// ahx/load_test.go's buildMinimalAHX layout.
func buildMinimalAHX() []byte {
	const (
		headerLen = 14
		posLen    = 8 // 1 position, 4 voices * 2 bytes
		trackRows = 2
		trackLen  = trackRows * 3
		instrHdr  = 22
		plistLen  = 1
		plistSz   = plistLen * 4
	)
	trackPos := headerLen + posLen
	instrPos := trackPos + trackLen
	nameOffset := instrPos + instrHdr + plistSz
	buf := make([]byte, nameOffset+2)

	buf[0], buf[1], buf[2], buf[3] = 'T', 'H', 'X', 1 // AHX1
	buf[4] = byte(nameOffset >> 8)
	buf[5] = byte(nameOffset)

	// byte6: track0NotSaved(0, cleared) | speedMultiplier bits | positionNr hi nibble
	positionNr := 1
	buf[6] = byte((positionNr >> 8) & 0x0F)
	buf[7] = byte(positionNr)

	binary.BigEndian.PutUint16(buf[8:10], 0) // Restart
	buf[10] = trackRows                      // TrackLength
	buf[11] = 0                              // TrackNr (only track 0)
	buf[12] = 1                              // InstrumentNr
	buf[13] = 0                              // SubsongNr

	// Position 0: voice 0 plays track 0, transpose 0; other voices silent.
	p := headerLen
	buf[p+0] = 0
	buf[p+1] = 0
	for v := 1; v < 4; v++ {
		buf[p+v*2] = 0xFF
		buf[p+v*2+1] = 0
	}

	// Track 0, row 0: note 30 on instrument 1. Row 1: empty.
	note, instrument := 30, 1
	buf[trackPos+0] = byte(note << 2) | byte((instrument>>4)&0x03)
	buf[trackPos+1] = byte((instrument & 0x0F) << 4)
	buf[trackPos+2] = 0

	buf[instrPos+0] = 64 // Volume
	buf[instrPos+1] = 0  // filterSpeed/waveLength bits
	buf[instrPos+2] = 4  // AttackFrames
	buf[instrPos+3] = 64 // AttackVolume
	buf[instrPos+4] = 4  // DecayFrames
	buf[instrPos+5] = 32 // DecayVolume
	buf[instrPos+6] = 10 // SustainFrames
	buf[instrPos+7] = 4  // ReleaseFrames
	buf[instrPos+8] = 0    // ReleaseVolume
	buf[instrPos+12] = 32  // FilterLowerLimit bits
	buf[instrPos+20] = 0   // PList.Speed
	buf[instrPos+21] = 1   // PList.Length

	plPos := instrPos + instrHdr
	var v uint32 = uint32(note) << 16
	buf[plPos+0] = byte(v >> 24)
	buf[plPos+1] = byte(v >> 16)
	buf[plPos+2] = byte(v >> 8)
	buf[plPos+3] = byte(v)

	n := nameOffset
	buf[n] = 0
	buf[n+1] = 0
	return buf
}

func TestLoad_DetectsMOD(t *testing.T) {
	d := New(44100)
	if !d.Load(buildMinimalMOD()) {
		t.Fatal("Load rejected a well-formed MOD file")
	}
	if d.Type() != SongTypeMOD {
		t.Errorf("Type() = %v, want SongTypeMOD", d.Type())
	}
	if d.TypeName() != "mod" {
		t.Errorf("TypeName() = %q, want mod", d.TypeName())
	}
}

func TestLoad_DetectsAHX(t *testing.T) {
	d := New(44100)
	if !d.Load(buildMinimalAHX()) {
		t.Fatal("Load rejected a well-formed AHX file")
	}
	if d.Type() != SongTypeAHX {
		t.Errorf("Type() = %v, want SongTypeAHX", d.Type())
	}
}

func TestLoad_RejectsGarbage(t *testing.T) {
	d := New(44100)
	if d.Load([]byte("not a tracker module")) {
		t.Error("Load accepted unrecognized data")
	}
	if d.Type() != SongTypeNone {
		t.Errorf("Type() = %v, want SongTypeNone after a failed Load", d.Type())
	}
}

func TestUnsetDeck_RenderStereoIsSilent(t *testing.T) {
	d := New(44100)
	left := make([]float64, 32)
	right := make([]float64, 32)
	left[0], right[0] = 1, 1 // poison to confirm the zero-fill actually runs
	n := d.RenderStereo(left, right)
	if n != 0 {
		t.Errorf("RenderStereo on an unloaded Deck returned %d frames, want 0", n)
	}
	for i, s := range left {
		if s != 0 || right[i] != 0 {
			t.Fatalf("expected silence at frame %d, got left=%f right=%f", i, s, right[i])
		}
	}
}

func TestRenderPerChannel_ZeroFillsOutOfRangeChannels(t *testing.T) {
	d := New(44100)
	if !d.Load(buildMinimalAHX()) {
		t.Fatal("Load rejected a well-formed AHX file")
	}
	d.Start()

	left := make([]float64, 64)
	right := make([]float64, 64)
	var chans [4][]float64
	for i := range chans {
		chans[i] = make([]float64, 64)
		chans[i][0] = 1 // poison
	}
	d.RenderPerChannel(left, right, chans)

	numCh := d.NumChannels()
	if numCh <= 0 || numCh > 4 {
		t.Fatalf("NumChannels() = %d, want 1..4", numCh)
	}
	for ch := numCh; ch < 4; ch++ {
		for i, s := range chans[ch] {
			if s != 0 {
				t.Fatalf("channel %d frame %d not zero-filled: %f", ch, i, s)
			}
		}
	}
}

func TestRenderPerChannel_MatchesRenderStereoAdvance(t *testing.T) {
	// A correct RenderPerChannel must advance the sequencer by exactly the
	// same number of rows as an equal-length RenderStereo call; a prior
	// implementation re-rendered each channel through an extra RenderStereo
	// pass and advanced several times too fast.
	const frames = 20000

	dRef := New(44100)
	dRef.Load(buildMinimalAHX())
	dRef.Start()
	left := make([]float64, frames)
	right := make([]float64, frames)
	dRef.RenderStereo(left, right)
	wantOrder, wantPattern, wantRow := dRef.Position()

	dTest := New(44100)
	dTest.Load(buildMinimalAHX())
	dTest.Start()
	var chans [4][]float64
	for i := range chans {
		chans[i] = make([]float64, frames)
	}
	dTest.RenderPerChannel(left, right, chans)
	gotOrder, gotPattern, gotRow := dTest.Position()

	if gotOrder != wantOrder || gotPattern != wantPattern || gotRow != wantRow {
		t.Errorf("RenderPerChannel left playback at (%d,%d,%d), want (%d,%d,%d) matching RenderStereo",
			gotOrder, gotPattern, gotRow, wantOrder, wantPattern, wantRow)
	}
}

func TestSetChannelMute_CachedAcrossLoad(t *testing.T) {
	d := New(44100)
	d.SetChannelMute(1, true)
	if !d.ChannelMute(1) {
		t.Fatal("ChannelMute(1) should be true immediately after SetChannelMute")
	}

	if !d.Load(buildMinimalMOD()) {
		t.Fatal("Load rejected a well-formed MOD file")
	}
	if !d.ChannelMute(1) {
		t.Error("channel mute cache was not reapplied after Load")
	}
	if d.ChannelMute(0) {
		t.Error("channel 0 should not be muted")
	}
}

func TestSetMasterGain_ScalesStereoOutput(t *testing.T) {
	d := New(44100)
	d.Load(buildMinimalAHX())
	d.Start()

	left := make([]float64, 4000)
	right := make([]float64, 4000)
	d.RenderStereo(left, right)

	d2 := New(44100)
	d2.Load(buildMinimalAHX())
	d2.Start()
	d2.SetMasterGain(0.5)
	left2 := make([]float64, 4000)
	right2 := make([]float64, 4000)
	d2.RenderStereo(left2, right2)

	for i := range left {
		want := left[i] * 0.5
		if want != left2[i] {
			t.Fatalf("frame %d: masterGain not applied, got %f want %f", i, left2[i], want)
		}
	}
}

func TestAHXPosition_RemapsToPatternZero(t *testing.T) {
	d := New(44100)
	d.Load(buildMinimalAHX())
	d.Start()
	_, pattern, _ := d.Position()
	if pattern != 0 {
		t.Errorf("AHX Position() pattern = %d, want 0 (AHX has no pattern axis)", pattern)
	}
}
