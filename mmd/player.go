package mmd

import (
	"math"

	"github.com/groovehaus/groovecore/internal/modfx"
	"github.com/groovehaus/groovecore/mixer"
	"github.com/groovehaus/groovecore/period"
	"github.com/groovehaus/groovecore/sequencer"
)

// channel mirrors mod.channel's shape, adapted for OctaMED's richer
// instrument model (pre-normalized float64 PCM, no 8-bit/16-bit branching
// at render time) and its 1-132 MIDI-style note numbering.
type channel struct {
	sampleIdx    int
	period       int
	targetPeriod int
	portaSpeed   int
	finetune     int
	volume       int // 0..64, OctaMED's volume range matches ProTracker's
	pan          float64

	pos float64
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
	noteDelayTick int
	noteCutTick   int

	mute     bool
	userGain float64
}

// Player renders an MMD Song tick-by-tick through the shared Sequencer,
// reusing internal/modfx for the effect arithmetic ProTracker and OctaMED
// have in common. Its own advance/onRow exist because Instrument.Data is
// already-normalized []float64, unlike mod.Sample's raw []int8.
type Player struct {
	song       *Song
	seq        *sequencer.Sequencer
	sampleRate int
	channels   []channel
	headroom   float64

	curOrder, curBlock, curRow int
}

// NewPlayer builds a Player for song at sampleRate (Hz), paused at the
// start of the song.
func NewPlayer(song *Song, sampleRate int) *Player {
	p := &Player{
		song:       song,
		sampleRate: sampleRate,
		channels:   make([]channel, song.Tracks),
		headroom:   1 / math.Sqrt(float64(song.Tracks)),
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
	p.seq.SetSong(song.Orders, 0)
	p.seq.SetRowsPerOrderFunc(func(order int) int {
		if order < 0 || order >= len(song.Orders) {
			return 1
		}
		return song.BlockRows[song.Orders[order]]
	})
	p.seq.SetBPM(song.BPM)
	p.seq.SetSpeed(song.Speed)
	return p
}

func (p *Player) Start()            { p.seq.Start() }
func (p *Player) Stop()             { p.seq.Stop() }
func (p *Player) IsPlaying() bool   { return p.seq.IsPlaying() }
func (p *Player) SetLooping(v bool) { p.seq.SetLooping(v) }

// Position returns the current (order_index, block_number, row).
func (p *Player) Position() (order, block, row int) { return p.seq.Position() }

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

// Seq exposes the underlying Sequencer for callers needing direct transport
// control (JumpTo, SetPosition, pattern looping).
func (p *Player) Seq() *sequencer.Sequencer { return p.seq }

func (p *Player) onPatternChange(orderIdx, blockNum int) {
	p.curOrder, p.curBlock = orderIdx, blockNum
}

func (p *Player) triggerNote(c *channel, per int) {
	c.period = per
	c.targetPeriod = per
	c.pos = 0
	c.on = true
	c.vibPos = 0
	c.tremPos = 0
}

// periodForNote maps OctaMED's 1-132 note numbering onto the shared Amiga
// period table: OctaMED numbers one octave higher than ProTracker's
// note-index-0 origin, so subtracting 13 lands it in the same table.
func periodForNote(noteNum, finetune int) int {
	idx := noteNum - 13
	if idx < 0 {
		idx = 0
	}
	if idx > 35 {
		idx = 35
	}
	return period.Table[finetune&0xF][idx]
}

func (p *Player) onRow(orderIdx, blockNum, row int) {
	p.curOrder, p.curBlock, p.curRow = orderIdx, blockNum, row
	block := p.song.Blocks[blockNum]
	n := p.song.Tracks
	for ch := 0; ch < n; ch++ {
		idx := row*n + ch
		if idx >= len(block) {
			continue
		}
		note := block[idx]
		c := &p.channels[ch]
		c.effect = note.Command
		c.param = note.Param
		c.noteCutTick = -1

		if note.Command == EffExtended && note.Param>>4 == ExNoteDelay {
			nc := note
			c.pendingNote = &nc
			c.noteDelayTick = int(note.Param & 0x0F)
			continue
		}
		c.noteDelayTick = -1

		if note.Instrument > 0 && note.Instrument-1 < NumInstruments {
			c.sampleIdx = note.Instrument - 1
			c.volume = p.song.Instruments[c.sampleIdx].Volume
			c.finetune = p.song.Instruments[c.sampleIdx].FineTune
		}

		if note.NoteNum > 0 {
			per := periodForNote(note.NoteNum, c.finetune)
			if note.Command == EffTonePorta || note.Command == EffTonePortaVolSld {
				c.targetPeriod = per
			} else {
				vibPos, tremPos := c.vibPos, c.tremPos
				p.triggerNote(c, per)
				if note.Command == EffVibrato || note.Command == EffVibratoVolSld || note.Command == EffTremolo {
					// effects 4, 6 and 7 carry the LFO phase through the retrigger, as in mod
					c.vibPos, c.tremPos = vibPos, tremPos
				}
			}
		}

		p.applyRowEffect(c, note)
	}
}

func (p *Player) applyRowEffect(c *channel, note Note) {
	switch note.Command {
	case EffSetPan:
		c.pan = mixer.NormalizeMMDPan(int(int8(note.Param)))
	case EffSampleOffset:
		off := int(note.Param)
		if off != 0 {
			c.memOffset = off
		} else {
			off = c.memOffset
		}
		if c.sampleIdx >= 0 && c.sampleIdx < NumInstruments {
			start := float64(off) * 256
			if start >= float64(len(p.song.Instruments[c.sampleIdx].Data)) {
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
			c.finetune = val
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
			nn := *c.pendingNote
			c.pendingNote = nil
			c.noteDelayTick = -1
			if nn.Instrument > 0 && nn.Instrument-1 < NumInstruments {
				c.sampleIdx = nn.Instrument - 1
				c.volume = p.song.Instruments[c.sampleIdx].Volume
				c.finetune = p.song.Instruments[c.sampleIdx].FineTune
			}
			if nn.NoteNum > 0 {
				p.triggerNote(c, periodForNote(nn.NoteNum, c.finetune))
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
// c. Unlike mod.Player.advance, the PCM is already float64-normalized, so
// there is no 8-bit/16-bit branch here.
func (p *Player) advance(c *channel) float64 {
	if !c.on || c.sampleIdx < 0 || c.sampleIdx >= NumInstruments {
		return 0
	}
	inst := &p.song.Instruments[c.sampleIdx]
	if len(inst.Data) == 0 {
		c.on = false
		return 0
	}

	eff := period.Clamp(c.arpPeriod + c.vibOffset)
	step := period.HzFromPeriod(eff) / float64(p.sampleRate)

	i0 := int(c.pos)
	if i0 >= len(inst.Data) {
		c.on = false
		return 0
	}
	s0 := inst.Data[i0]
	s1 := s0
	if i0+1 < len(inst.Data) {
		s1 = inst.Data[i0+1]
	} else if inst.LoopLen > 0 {
		s1 = inst.Data[inst.LoopStart]
	}
	frac := c.pos - float64(i0)
	sample := s0 + (s1-s0)*frac

	c.pos += step
	if inst.LoopLen > 0 {
		loopEnd := float64(inst.LoopStart + inst.LoopLen)
		for c.pos >= loopEnd {
			c.pos -= float64(inst.LoopLen)
		}
	} else if c.pos >= float64(len(inst.Data)) {
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

// RenderStereo advances playback by up to len(left) frames and returns the
// number of frames actually rendered.
func (p *Player) RenderStereo(left, right []float64) int {
	return p.render(left, right, nil)
}

// RenderPerChannel behaves like RenderStereo, and additionally writes each
// channel's gain-applied mono contribution (pre-pan) into channelOuts[ch]
// for ch < NumChannels; entries beyond NumChannels or a nil slot are left
// untouched (deck.Deck zero-fills those itself).
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
