// Package ahx implements an AHX/HVL synthetic tracker loader and player.
// Unlike mod/mmd, AHX instruments describe synth voices — waveform family,
// ADSR envelope, filter, vibrato — rather than PCM, so the player is a
// small generator-based synthesizer instead of a sample player.
//
// The on-disk layout (header, position list, tracks, instrument/playlist
// records) is grounded on IntuitionEngine's ahx_parser.go. The synthesis
// model deliberately does not reproduce that project's full AHX replayer
// (filter sweep, square-wave sliding, playlist-driven waveform stepping):
// it implements the simpler generator/ADSR/filter/vibrato model this
// package's rendering pipeline calls for, documented per effect below.
package ahx

import "errors"

var (
	ErrFormatMismatch  = errors.New("ahx: format signature not recognized")
	ErrCorrupt         = errors.New("ahx: corrupt or truncated file")
	ErrInvalidArgument = errors.New("ahx: invalid argument")
)

// Waveform selects the generator function for a voice. AHX instruments
// select their waveform dynamically through the playlist (PList); this
// player renders each voice with the instrument's base waveform (its
// first PList entry, or sawtooth if it has none) for the note's whole
// duration rather than stepping the playlist (see PList doc comment).
type Waveform int

const (
	WaveTriangle Waveform = iota
	WaveSawtooth
	WaveSquare
	WaveNoise
)

// Envelope holds the ADSR frame counts and stage volumes (0..64) an
// AHX instrument specifies, at the base tick rate (50Hz * SpeedMultiplier).
type Envelope struct {
	AttackFrames  int
	AttackVolume  int
	DecayFrames   int
	DecayVolume   int
	SustainFrames int
	ReleaseFrames int
	ReleaseVolume int
}

// Instrument is a synth voice definition: no PCM, only generator and
// envelope parameters.
type Instrument struct {
	Name       string
	Volume     int // 0..64
	WaveLength int // 0..5; wavetable length L = 4 << WaveLength

	Envelope Envelope

	FilterLowerLimit int
	FilterUpperLimit int
	FilterSpeed      int

	SquareLowerLimit int
	SquareUpperLimit int
	SquareSpeed      int

	VibratoDelay int
	VibratoDepth int
	VibratoSpeed int

	HardCutRelease       int
	HardCutReleaseFrames int

	PList PList
}

// PList is an instrument's playlist, parsed for format fidelity but not
// stepped during playback (Open Question: AHX arpeggio / instrument-list
// stepping is left unimplemented).
type PList struct {
	Speed   int
	Length  int
	Entries []PListEntry
}

// PListEntry is one step of an instrument playlist.
type PListEntry struct {
	Note     int
	Fixed    int
	Waveform int
	FX       [2]int
	FXParam  [2]int
}

// Position is one entry of the song's position list: for each of the 4
// voices, which track to play and what transpose to apply.
type Position struct {
	Track     [4]int
	Transpose [4]int8
}

// Step is a single track row: note, instrument, and one synth-specific
// effect command.
type Step struct {
	Note       int // 0 = no note, else 1..60 (AHX's internal note numbering)
	Instrument int // 0 = no change, else 1..InstrumentNr
	FX         int // 0x0..0xF
	FXParam    int
}

// Song is a fully parsed AHX module.
type Song struct {
	Name            string
	Revision        int // 0 = AHX0 (always 50Hz), 1 = AHX1 (scalable rate)
	SpeedMultiplier int // 1..4, ×50Hz
	Restart         int // position index to loop back to
	TrackLength     int // rows per track
	Positions       []Position
	Tracks          [][]Step // Tracks[trackIdx][row]
	Instruments     []Instrument // 1-indexed; Instruments[0] is unused
	SubsongNr       int
	Subsongs        []int
}

// Effect numbers recognized by Player.onRow. Only the commands that affect
// sequencing or audible per-note state are implemented; commands tied to
// the playlist-driven square/filter sweep the original engine supports
// (0x4 override filter, 0x9 set square offset, the PList-stepping side of
// 0x3/0x5 tone portamento) are parsed but intentionally left as no-ops.
const (
	FXPositionJumpHi = 0x0
	FXPortaUp        = 0x1
	FXPortaDown      = 0x2
	FXPositionJump   = 0xB
	FXVolume         = 0xC
	FXPatternBreak   = 0xD
	FXEnhanced       = 0xE
	FXSpeed          = 0xF
)

const (
	ExNoteCut   = 0xC
	ExNoteDelay = 0xD
)
