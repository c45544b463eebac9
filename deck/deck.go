// Package deck implements a type-tagged facade over the three format
// players: on Load it sniffs the format by trying, in fixed order, MOD
// (tag at offset 1080), MMD (magic at offset 0), then AHX (signature at
// offset 0), and binds to the first match. A fourth tagged variant,
// SongTypeSID, exists for forward compatibility but has no player behind
// it (Open Question decision recorded in DESIGN.md): Load never selects
// it, and rendering with no song loaded already produces silence.
//
// Grounded on cmd/moddump's extension-based dispatch (a switch over file
// extension picking a loader), generalized here to signature-sniffing
// since Deck works from in-memory bytes rather than file paths. Each Load
// builds a new player for the detected format and drops the players of the
// other formats; players are not created ahead of time or reused across
// loads.
package deck

import (
	"github.com/groovehaus/groovecore/ahx"
	"github.com/groovehaus/groovecore/mmd"
	"github.com/groovehaus/groovecore/mod"
	"github.com/groovehaus/groovecore/sequencer"
)

// SongType tags which inner player, if any, is active.
type SongType int

const (
	SongTypeNone SongType = iota
	SongTypeMOD
	SongTypeMMD
	SongTypeAHX
	SongTypeSID // stub: never selected by Load; reserved for a future player
)

func (t SongType) String() string {
	switch t {
	case SongTypeMOD:
		return "mod"
	case SongTypeMMD:
		return "mmd"
	case SongTypeAHX:
		return "ahx"
	case SongTypeSID:
		return "sid"
	default:
		return "none"
	}
}

// Deck is a tagged-union facade over *mod.Player, *mmd.Player, and
// *ahx.Player. Exactly one of modPlayer/mmdPlayer/ahxPlayer is non-nil
// once a song is loaded; all three are nil beforehand (SongTypeNone).
type Deck struct {
	songType SongType

	modPlayer *mod.Player
	mmdPlayer *mmd.Player
	ahxPlayer *ahx.Player

	sampleRate int
	masterGain float64

	channelMute [4]bool
}

// New creates an empty Deck rendering at sampleRate. Call Load before
// Start.
func New(sampleRate int) *Deck {
	return &Deck{
		sampleRate: sampleRate,
		masterGain: 1,
	}
}

// Load tries MOD, then MMD, then AHX, in that order, and binds the Deck to
// the first format whose loader accepts data. Cached channel-mute flags
// are reapplied to the newly bound player. Returns false if none of the
// three loaders recognize data.
func (d *Deck) Load(data []byte) bool {
	if song, err := mod.LoadFromBytes(data); err == nil {
		d.modPlayer = mod.NewPlayer(song, d.sampleRate)
		d.mmdPlayer = nil
		d.ahxPlayer = nil
		d.songType = SongTypeMOD
		d.applyCachedMutes()
		return true
	}
	if song, err := mmd.LoadFromBytes(data); err == nil {
		d.mmdPlayer = mmd.NewPlayer(song, d.sampleRate)
		d.modPlayer = nil
		d.ahxPlayer = nil
		d.songType = SongTypeMMD
		d.applyCachedMutes()
		return true
	}
	if song, err := ahx.LoadFromBytes(data); err == nil {
		d.ahxPlayer = ahx.NewPlayer(song, d.sampleRate)
		d.modPlayer = nil
		d.mmdPlayer = nil
		d.songType = SongTypeAHX
		d.applyCachedMutes()
		return true
	}
	return false
}

func (d *Deck) applyCachedMutes() {
	for ch, muted := range d.channelMute {
		d.setChannelMuteInner(ch, muted)
	}
}

// Type reports which format is currently bound.
func (d *Deck) Type() SongType { return d.songType }

// TypeName reports Type's human-readable name.
func (d *Deck) TypeName() string { return d.songType.String() }

func (d *Deck) Start() {
	switch d.songType {
	case SongTypeMOD:
		d.modPlayer.Start()
	case SongTypeMMD:
		d.mmdPlayer.Start()
	case SongTypeAHX:
		d.ahxPlayer.Start()
	}
}

func (d *Deck) Stop() {
	switch d.songType {
	case SongTypeMOD:
		d.modPlayer.Stop()
	case SongTypeMMD:
		d.mmdPlayer.Stop()
	case SongTypeAHX:
		d.ahxPlayer.Stop()
	}
}

func (d *Deck) IsPlaying() bool {
	switch d.songType {
	case SongTypeMOD:
		return d.modPlayer.IsPlaying()
	case SongTypeMMD:
		return d.mmdPlayer.IsPlaying()
	case SongTypeAHX:
		return d.ahxPlayer.IsPlaying()
	default:
		return false
	}
}

// Position returns the unified (order, pattern, row) triple. AHX has no
// separate pattern concept, so it reports (position, 0, row).
func (d *Deck) Position() (order, pattern, row int) {
	switch d.songType {
	case SongTypeMOD:
		return d.modPlayer.Position()
	case SongTypeMMD:
		return d.mmdPlayer.Position()
	case SongTypeAHX:
		position, _, row := d.ahxPlayer.Position()
		return position, 0, row
	default:
		return 0, 0, 0
	}
}

func (d *Deck) SetPosition(order, row int) {
	if seq := d.sequencer(); seq != nil {
		seq.SetPosition(order, row)
	}
}

func (d *Deck) NumChannels() int {
	switch d.songType {
	case SongTypeMOD:
		return d.modPlayer.NumChannels()
	case SongTypeMMD:
		return d.mmdPlayer.NumChannels()
	case SongTypeAHX:
		return d.ahxPlayer.NumChannels()
	default:
		return 0
	}
}

func (d *Deck) BPM() int {
	if seq := d.sequencer(); seq != nil {
		return seq.BPM()
	}
	return 0
}

func (d *Deck) SetBPM(bpm int) {
	if seq := d.sequencer(); seq != nil {
		seq.SetBPM(bpm)
	}
}

func (d *Deck) SetLoopRange(startOrder, endOrder int) {
	if seq := d.sequencer(); seq != nil {
		seq.SetLoopRange(startOrder, endOrder)
	}
}

func (d *Deck) SetDisableLooping(disable bool) {
	if seq := d.sequencer(); seq != nil {
		seq.SetLooping(!disable)
	}
}

// sequencer returns the active player's Sequencer, or nil if no song is
// loaded. The exported Sequencer method hands it to regroove.Controller.
func (d *Deck) sequencer() *sequencer.Sequencer {
	switch d.songType {
	case SongTypeMOD:
		return d.modPlayer.Seq()
	case SongTypeMMD:
		return d.mmdPlayer.Seq()
	case SongTypeAHX:
		return d.ahxPlayer.Seq()
	default:
		return nil
	}
}

// Sequencer exposes the active player's Sequencer for regroove.Controller
// to wrap; nil if no song is loaded.
func (d *Deck) Sequencer() *sequencer.Sequencer { return d.sequencer() }

func (d *Deck) setChannelMuteInner(ch int, mute bool) {
	switch d.songType {
	case SongTypeMOD:
		d.modPlayer.SetChannelMute(ch, mute)
	case SongTypeMMD:
		d.mmdPlayer.SetChannelMute(ch, mute)
	case SongTypeAHX:
		d.ahxPlayer.SetChannelMute(ch, mute)
	}
}

// SetChannelMute applies and caches a mute flag for one of up to 4
// user-visible channels; the cache is reapplied on the next Load.
func (d *Deck) SetChannelMute(ch int, mute bool) {
	if ch < 0 || ch >= len(d.channelMute) {
		return
	}
	d.channelMute[ch] = mute
	d.setChannelMuteInner(ch, mute)
}

func (d *Deck) ChannelMute(ch int) bool {
	if ch < 0 || ch >= len(d.channelMute) {
		return false
	}
	return d.channelMute[ch]
}

// SetMasterGain sets an additional scale applied after the mixer's
// headroom, for boost/attenuation independent of any per-song volume.
func (d *Deck) SetMasterGain(gain float64) { d.masterGain = gain }

// RenderStereo mixes the active player's output into left/right, applying
// SetMasterGain on top. Returns the number of frames rendered; 0 if no
// song is loaded or playback has stopped.
func (d *Deck) RenderStereo(left, right []float64) int {
	var n int
	switch d.songType {
	case SongTypeMOD:
		n = d.modPlayer.RenderStereo(left, right)
	case SongTypeMMD:
		n = d.mmdPlayer.RenderStereo(left, right)
	case SongTypeAHX:
		n = d.ahxPlayer.RenderStereo(left, right)
	default:
		for i := range left {
			left[i] = 0
		}
		for i := range right {
			right[i] = 0
		}
		return 0
	}
	if d.masterGain != 1 {
		for i := 0; i < n; i++ {
			left[i] *= d.masterGain
			right[i] *= d.masterGain
		}
	}
	return n
}

// RenderPerChannel advances playback once (like RenderStereo) and
// additionally fills up to 4 mono channelOuts buffers with each channel's
// gain-applied contribution before panning. Channels beyond NumChannels
// (e.g. a 3-voice source asked for all 4 outputs, or an empty Deck) are
// zero-filled.
func (d *Deck) RenderPerChannel(left, right []float64, channelOuts [4][]float64) int {
	var n int
	switch d.songType {
	case SongTypeMOD:
		n = d.modPlayer.RenderPerChannel(left, right, channelOuts[:])
	case SongTypeMMD:
		n = d.mmdPlayer.RenderPerChannel(left, right, channelOuts[:])
	case SongTypeAHX:
		n = d.ahxPlayer.RenderPerChannel(left, right, channelOuts[:])
	default:
		for i := range left {
			left[i] = 0
		}
		for i := range right {
			right[i] = 0
		}
	}
	numCh := d.NumChannels()
	for ch := 0; ch < 4; ch++ {
		buf := channelOuts[ch]
		if buf == nil {
			continue
		}
		if ch >= numCh {
			for i := range buf {
				buf[i] = 0
			}
		}
	}
	if d.masterGain != 1 {
		for i := 0; i < n; i++ {
			left[i] *= d.masterGain
			right[i] *= d.masterGain
		}
	}
	return n
}
