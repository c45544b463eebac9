package mod

import (
	"math"

	"github.com/groovehaus/groovecore/internal/modfx"
	"github.com/groovehaus/groovecore/mixer"
	"github.com/groovehaus/groovecore/period"
	"github.com/groovehaus/groovecore/sequencer"
)

// channel is one voice's live playback state. Grounded on the channel
// struct in player.go, extended with a fuller effect-memory set (vibrato/
// tremolo phase, retrigger, note cut/delay, sample-offset memory) than
// that original partial player implemented.
type channel struct {
	sampleIdx int // -1 = none
	period    int
	targetPeriod int
	portaSpeed   int
	finetune     int
	volume       int // 0..64
	pan          float64

	pos float64 // fractional offset into the sample's PCM, in frames
	on  bool

	effect byte
	param  byte

	vibPos, vibSpeed, vibDepth    int
	memVibSpeed, memVibDepth      byte
	tremPos, tremSpeed, tremDepth int
	memTremSpeed, memTremDepth    byte
	memPortaUp, memPortaDown      byte
	memOffset                     int

	arpPeriod  int
	vibOffset  int
	tremOffset int

	pendingNote   *Note
	noteDelayTick int // -1 = none
	noteCutTick   int // -1 = none

	mute     bool
	userGain float64
}

// Player renders a Song tick-by-tick through a generic Sequencer. It owns
// no goroutines or blocking I/O: every call is synchronous and bounded by
// the caller's buffer size.
type Player struct {
	song       *Song
	seq        *sequencer.Sequencer
	sampleRate int
	channels   []channel
	headroom   float64

	curOrder, curPattern, curRow int
}

// NewPlayer builds a Player for song at sampleRate (Hz), paused at the
// start of the song. Call Start to begin playback.
func NewPlayer(song *Song, sampleRate int) *Player {
	p := &Player{
		song:       song,
		sampleRate: sampleRate,
		channels:   make([]channel, song.Channels),
		// Constant-power headroom so adding channels doesn't change
		// perceived loudness; the mixer itself never clips internally.
		headroom: 1 / math.Sqrt(float64(song.Channels)),
	}
	for i := range p.channels {
		p.channels[i] = channel{
			sampleIdx:     -1,
			pan:           DefaultPan(i),
			userGain:      1,
			noteDelayTick: -1,
			noteCutTick:   -1,
		}
	}
	p.seq = sequencer.New(sequencer.Callbacks{
		OnTick:          p.onTick,
		OnRow:           p.onRow,
		OnPatternChange: p.onPatternChange,
		OnSongEnd:       func() bool { return true },
	})
	p.seq.SetMode(sequencer.ModeTick)
	p.seq.SetSong(song.Orders, RowsPerPattern)
	return p
}

func (p *Player) Start()          { p.seq.Start() }
func (p *Player) Stop()           { p.seq.Stop() }
func (p *Player) IsPlaying() bool { return p.seq.IsPlaying() }
func (p *Player) SetLooping(v bool) { p.seq.SetLooping(v) }

// Position returns the current (order_index, pattern_number, row).
func (p *Player) Position() (order, pattern, row int) { return p.seq.Position() }

func (p *Player) NumChannels() int { return len(p.channels) }

func (p *Player) SetChannelMute(ch int, mute bool) {
	if ch >= 0 && ch < len(p.channels) {
		p.channels[ch].mute = mute
	}
}

func (p *Player) SetChannelGain(ch int, gain float64) {
	if ch >= 0 && ch < len(p.channels) {
		p.channels[ch].userGain = gain
	}
}

// Seq exposes the underlying Sequencer for callers (deck, regroove) that
// need direct transport control (JumpTo, SetPosition, pattern looping).
func (p *Player) Seq() *sequencer.Sequencer { return p.seq }

func (p *Player) onPatternChange(orderIdx, patternNum int) {
	p.curOrder, p.curPattern = orderIdx, patternNum
}

// triggerNote starts a new note. It resets the vibrato/tremolo LFO phase
// unless the row's effect is one of tone-porta, vibrato, tone-porta+volume
// slide, vibrato+volume slide, or tremolo (3-7), which carry the LFO phase
// through the retrigger instead.
func (p *Player) triggerNote(c *channel, per int, effect byte) {
	c.period = per
	c.targetPeriod = per
	c.pos = 0
	c.on = true
	switch effect {
	case EffTonePorta, EffVibrato, EffTonePortaVolSld, EffVibratoVolSld, EffTremolo:
	default:
		c.vibPos = 0
		c.tremPos = 0
	}
}

func (p *Player) onRow(orderIdx, patternNum, row int) {
	p.curOrder, p.curPattern, p.curRow = orderIdx, patternNum, row
	pat := p.song.Patterns[patternNum]
	n := p.song.Channels
	for ch := 0; ch < n; ch++ {
		note := pat[row*n+ch]
		c := &p.channels[ch]
		c.effect = note.Effect
		c.param = note.Param
		c.noteCutTick = -1

		if note.Effect == EffExtended && note.Param>>4 == ExNoteDelay {
			nc := note
			c.pendingNote = &nc
			c.noteDelayTick = int(note.Param & 0x0F)
			continue
		}
		c.noteDelayTick = -1

		if note.Sample > 0 && note.Sample-1 < len(p.song.Samples) {
			c.sampleIdx = note.Sample - 1
			c.volume = p.song.Samples[c.sampleIdx].Volume
			c.finetune = p.song.Samples[c.sampleIdx].FineTune
		}

		if note.Period > 0 {
			if note.Effect == EffTonePorta || note.Effect == EffTonePortaVolSld {
				c.targetPeriod = note.Period
			} else {
				p.triggerNote(c, note.Period, note.Effect)
			}
		}

		p.applyRowEffect(c, note)
	}
}

// applyRowEffect handles the effects that take action once when the row is
// read, rather than once per subsequent tick.
func (p *Player) applyRowEffect(c *channel, note Note) {
	switch note.Effect {
	case EffSetPan:
		c.pan = mixer.NormalizeMODPan(int(note.Param))
	case EffSampleOffset:
		off := int(note.Param)
		if off != 0 {
			c.memOffset = off
		} else {
			off = c.memOffset
		}
		if c.sampleIdx >= 0 && c.sampleIdx < len(p.song.Samples) {
			start := float64(off) * 256
			if start >= float64(len(p.song.Samples[c.sampleIdx].Data)) {
				c.on = false
			} else {
				c.pos = start
			}
		}
	case EffPositionJump:
		p.seq.PositionJump(int(note.Param))
	case EffSetVolume:
		c.volume = modfx.ClampVolume(int(note.Param))
	case EffPatternBreak:
		p.seq.PatternBreak(modfx.BCD(note.Param))
	case EffSetSpeed:
		if note.Param < 0x20 {
			p.seq.SetSpeed(int(note.Param))
		} else {
			p.seq.SetBPM(int(note.Param))
		}
	case EffExtended:
		sub := note.Param >> 4
		val := int(note.Param & 0x0F)
		switch sub {
		case ExFinePortaUp:
			c.period = period.Clamp(c.period - val)
		case ExFinePortaDown:
			c.period = period.Clamp(c.period + val)
		case ExSetFinetune:
			c.finetune = (val & 7) - (val & 8) + 8
		case ExPatternLoop:
			if val == 0 {
				p.seq.SetPatternLoopStart()
			} else {
				p.seq.ExecutePatternLoop(val)
			}
		case ExFineVolUp:
			c.volume = modfx.ClampVolume(c.volume + val)
		case ExFineVolDown:
			c.volume = modfx.ClampVolume(c.volume - val)
		case ExNoteCut:
			c.noteCutTick = val
		case ExPatternDelay:
			p.seq.PatternDelay(val)
		}
	}
}

func (p *Player) onTick(tick int) {
	for i := range p.channels {
		c := &p.channels[i]
		c.arpPeriod = c.period
		c.vibOffset = 0
		c.tremOffset = 0

		if c.noteDelayTick == tick && c.pendingNote != nil {
			n := *c.pendingNote
			c.pendingNote = nil
			c.noteDelayTick = -1
			if n.Sample > 0 && n.Sample-1 < len(p.song.Samples) {
				c.sampleIdx = n.Sample - 1
				c.volume = p.song.Samples[c.sampleIdx].Volume
				c.finetune = p.song.Samples[c.sampleIdx].FineTune
			}
			if n.Period > 0 {
				p.triggerNote(c, n.Period, n.Effect)
			}
		}

		if c.noteCutTick == tick {
			c.volume = 0
			c.noteCutTick = -1
		}

		switch c.effect {
		case EffArpeggio:
			if c.param != 0 {
				shift := 0
				switch tick % 3 {
				case 1:
					shift = int(c.param >> 4)
				case 2:
					shift = int(c.param & 0x0F)
				}
				if shift != 0 {
					idx := period.NoteIndexForPeriod(c.period) + shift
					if idx > 35 {
						idx = 35
					}
					c.arpPeriod = period.Table[c.finetune&0xF][idx]
				}
			}
		case EffSlideUp:
			if tick > 0 {
				if c.param != 0 {
					c.memPortaUp = c.param
				}
				c.period = period.Clamp(c.period - int(c.memPortaUp))
			}
		case EffSlideDown:
			if tick > 0 {
				if c.param != 0 {
					c.memPortaDown = c.param
				}
				c.period = period.Clamp(c.period + int(c.memPortaDown))
			}
		case EffTonePorta:
			if c.param != 0 {
				c.portaSpeed = int(c.param)
			}
			if tick > 0 {
				c.period = modfx.PortaTowards(c.period, c.targetPeriod, c.portaSpeed)
			}
		case EffTonePortaVolSld:
			if tick > 0 {
				c.period = modfx.PortaTowards(c.period, c.targetPeriod, c.portaSpeed)
				c.volume = modfx.VolumeSlide(c.volume, c.param)
			}
		case EffVibrato:
			p.stepVibrato(c)
		case EffVibratoVolSld:
			p.stepVibrato(c)
			if tick > 0 {
				c.volume = modfx.VolumeSlide(c.volume, c.param)
			}
		case EffTremolo:
			p.stepTremolo(c)
		case EffVolumeSlide:
			if tick > 0 {
				c.volume = modfx.VolumeSlide(c.volume, c.param)
			}
		case EffExtended:
			sub := c.param >> 4
			val := int(c.param & 0x0F)
			if sub == ExRetrigger && val > 0 && tick > 0 && tick%val == 0 {
				c.pos = 0
			}
		}
	}
}

func (p *Player) stepVibrato(c *channel) {
	if c.param != 0 {
		sp := int(c.param >> 4)
		dp := int(c.param & 0x0F)
		if sp != 0 {
			c.memVibSpeed = byte(sp)
		}
		if dp != 0 {
			c.memVibDepth = byte(dp)
		}
	}
	c.vibOffset = (int(period.Sine[c.vibPos&63]) * int(c.memVibDepth)) / 128
	c.vibPos += int(c.memVibSpeed)
}

func (p *Player) stepTremolo(c *channel) {
	if c.param != 0 {
		sp := int(c.param >> 4)
		dp := int(c.param & 0x0F)
		if sp != 0 {
			c.memTremSpeed = byte(sp)
		}
		if dp != 0 {
			c.memTremDepth = byte(dp)
		}
	}
	c.tremOffset = (int(period.Sine[c.tremPos&63]) * int(c.memTremDepth)) / 64
	c.tremPos += int(c.memTremSpeed)
}

// advance returns the next interpolated, volume/tremolo-scaled sample for
// c and steps its playback position by one output frame.
func (p *Player) advance(c *channel) float64 {
	if !c.on || c.sampleIdx < 0 || c.sampleIdx >= len(p.song.Samples) {
		return 0
	}
	smp := &p.song.Samples[c.sampleIdx]
	if len(smp.Data) == 0 {
		c.on = false
		return 0
	}

	eff := period.Clamp(c.arpPeriod + c.vibOffset)
	step := period.HzFromPeriod(eff) / float64(p.sampleRate)

	i0 := int(c.pos)
	if i0 >= len(smp.Data) {
		c.on = false
		return 0
	}
	s0 := float64(smp.Data[i0]) / 128
	s1 := s0
	if i0+1 < len(smp.Data) {
		s1 = float64(smp.Data[i0+1]) / 128
	} else if smp.LoopLen > 0 {
		s1 = float64(smp.Data[smp.LoopStart]) / 128
	}
	frac := c.pos - float64(i0)
	sample := s0 + (s1-s0)*frac

	c.pos += step
	if smp.LoopLen > 0 {
		loopEnd := float64(smp.LoopStart + smp.LoopLen)
		for c.pos >= loopEnd {
			c.pos -= float64(smp.LoopLen)
		}
	} else if c.pos >= float64(len(smp.Data)) {
		c.on = false
	}

	effVolume := c.volume + c.tremOffset
	if effVolume < 0 {
		effVolume = 0
	} else if effVolume > 64 {
		effVolume = 64
	}
	return sample * (float64(effVolume) / 64)
}

// RenderStereo advances playback by up to len(left) frames, writing
// interleaved-free stereo into left/right, and returns the number of
// frames actually rendered (less than requested only if the song stopped
// and is not looping).
func (p *Player) RenderStereo(left, right []float64) int {
	return p.render(left, right, nil)
}

// RenderPerChannel behaves like RenderStereo, and additionally writes each
// channel's gain-applied mono contribution (pre-pan) into channelOuts[ch]
// for ch < NumChannels; entries beyond NumChannels or a nil slot are left
// untouched by this call (deck.Deck zero-fills those itself).
func (p *Player) RenderPerChannel(left, right []float64, channelOuts []([]float64)) int {
	return p.render(left, right, channelOuts)
}

func (p *Player) render(left, right []float64, channelOuts []([]float64)) int {
	frames := len(left)
	voices := make([]mixer.Voice, 0, len(p.channels))
	for i := 0; i < frames; i++ {
		if !p.seq.IsPlaying() {
			return i
		}
		p.seq.Process(1, p.sampleRate)

		voices = voices[:0]
		for ch := range p.channels {
			c := &p.channels[ch]
			s := p.advance(c)
			gain := c.userGain
			if c.mute {
				gain = 0
			}
			mono := s * gain
			if ch < len(channelOuts) && channelOuts[ch] != nil && i < len(channelOuts[ch]) {
				channelOuts[ch][i] = mono
			}
			voices = append(voices, mixer.Voice{Sample: s, Pan: c.pan, Gain: gain})
		}
		l, r := mixer.MixFrame(voices, p.headroom)
		left[i], right[i] = l, r
	}
	return frames
}
