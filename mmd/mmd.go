// Package mmd implements an OctaMED MMD2/MMD3 file loader and player.
// Its effect engine reuses internal/modfx and follows ProTracker semantics
// for the note/effect subset the two formats share, since MMD2's encoding
// is ProTracker-compatible there. The pointer-chasing loader shape is
// grounded on s3m.go's paragraph-pointer seeks (bytes.Reader.Seek
// to an absolute offset table entry), generalized via internal/bread.Reader.At.
package mmd

import "errors"

var (
	ErrFormatMismatch    = errors.New("mmd: format signature not recognized")
	ErrCorrupt           = errors.New("mmd: corrupt or truncated file")
	ErrUnsupportedVariant = errors.New("mmd: unsupported variant")
	ErrInvalidArgument   = errors.New("mmd: invalid argument")
)

const NumInstruments = 63

// Note is one cell of a block. NoteNum is OctaMED's MIDI-style numbering
// (1..132); 0 means "no new note". Subtract 12 before indexing into
// period.Table.
type Note struct {
	NoteNum    int
	Instrument int
	Command    byte
	Param      byte
}

// Instrument holds pre-normalized PCM: 8-bit samples are scaled by 1/128,
// 16-bit by 1/32768, and stereo-flagged samples are downmixed to mono at
// load time, so the player never branches on bit depth at render time.
type Instrument struct {
	Length    int
	FineTune  int
	Volume    int
	LoopStart int
	LoopLen   int
	Data      []float64
}

// Song is a fully parsed MMD2/MMD3 module.
type Song struct {
	Tracks      int
	Orders      []int // play sequence: block index per order
	Blocks      [][]Note
	BlockRows   []int // rows per block, parallel to Blocks
	Instruments [NumInstruments]Instrument
	BPM         int
	Speed       int
}

// Effect numbers, identical in meaning to MOD's for the shared subset.
// Declared separately from the mod package's constants to keep mod and mmd
// independent of each other; only internal/modfx is shared.
const (
	EffArpeggio        = 0x0
	EffSlideUp         = 0x1
	EffSlideDown       = 0x2
	EffTonePorta       = 0x3
	EffVibrato         = 0x4
	EffTonePortaVolSld = 0x5
	EffVibratoVolSld   = 0x6
	EffTremolo         = 0x7
	EffSetPan          = 0x8
	EffSampleOffset    = 0x9
	EffVolumeSlide     = 0xA
	EffPositionJump    = 0xB
	EffSetVolume       = 0xC
	EffPatternBreak    = 0xD
	EffExtended        = 0xE
	EffSetSpeed        = 0xF
)

const (
	ExFinePortaUp   = 0x1
	ExFinePortaDown = 0x2
	ExSetFinetune   = 0x5
	ExPatternLoop   = 0x6
	ExRetrigger     = 0x9
	ExFineVolUp     = 0xA
	ExFineVolDown   = 0xB
	ExNoteCut       = 0xC
	ExNoteDelay     = 0xD
	ExPatternDelay  = 0xE
)

// DefaultPan centers every MMD track; OctaMED has no fixed-hardware pan
// layout the way Amiga MOD does, so unset tracks start dead center until
// an 0x8 effect moves them.
func DefaultPan(i int) float64 { return 0 }
