package ahx

import (
	"math"

	"github.com/groovehaus/groovecore/mixer"
	"github.com/groovehaus/groovecore/sequencer"
)

// envStage tracks which ADSR segment a voice's envelope is in.
type envStage int

const (
	envAttack envStage = iota
	envDecay
	envSustain
	envRelease
	envIdle
)

// voice is one of the song's 4 synth channels: generator phase, ADSR state,
// vibrato phase, and the one-pole filter's running state.
type voice struct {
	track     int
	transpose int8

	instrument int
	note       int
	on         bool
	mute       bool
	userGain   float64

	freq     float64
	volume   float64 // instrument volume, 0..64, set by FXVolume
	wavePos  float64
	vibPhase float64
	wave     Waveform

	stage     envStage
	envVolume float64 // current stage volume, 0..64

	filterState float64

	noiseSeed uint32

	noteDelayTick int
	noteCutTick   int
	pendingNote   int
	pendingInstr  int
}

// Player renders an AHX/HVL song. It implements the rendering model from
// this package's AHX section: waveform generators, an envelope with linear
// attack and decay, vibrato, and a one-pole filter, driven by the sequencer
// in frame mode. No code path moves a voice into the envelope's release
// stage: a held note stays at its sustain level, and a note cut silences
// the voice through its mix volume instead. It does not
// step PList-driven waveform changes, filter sweep, or square-wave sliding
// (see the Instrument/PList doc comments). FXVolume, FXPositionJump,
// FXPatternBreak, FXSpeed, and the FXEnhanced note-cut/note-delay
// sub-commands are the only effects applied; FXPositionJumpHi, FXPortaUp
// and FXPortaDown are recognized and have no effect.
type Player struct {
	song       *Song
	seq        *sequencer.Sequencer
	sampleRate int

	voices []voice
}

// NewPlayer builds a Player over song, rendering at sampleRate.
func NewPlayer(song *Song, sampleRate int) *Player {
	p := &Player{
		song:       song,
		sampleRate: sampleRate,
		voices:     make([]voice, 4),
	}
	for i := range p.voices {
		p.voices[i].userGain = 1
		p.voices[i].noiseSeed = uint32(0xACE1 + i*7)
	}
	p.seq = sequencer.New(sequencer.Callbacks{
		OnRow:     p.onRow,
		OnTick:    p.onTick,
		OnSongEnd: func() bool { return true },
	})
	p.seq.SetMode(sequencer.ModeFrame)
	orderList := make([]int, len(song.Positions))
	for i := range orderList {
		orderList[i] = i
	}
	p.seq.SetSong(orderList, song.TrackLength)
	if len(song.Positions) > 0 {
		p.seq.SetLoopRange(song.Restart, len(song.Positions)-1)
	}
	p.seq.SetLooping(true)
	p.seq.SetBPM(50 * song.SpeedMultiplier)
	return p
}

func (p *Player) Start()          { p.seq.Start() }
func (p *Player) Stop()           { p.seq.Stop() }
func (p *Player) IsPlaying() bool { return p.seq.IsPlaying() }
func (p *Player) SetLooping(on bool) { p.seq.SetLooping(on) }
func (p *Player) Position() (order, pattern, row int) { return p.seq.Position() }
func (p *Player) NumChannels() int { return 4 }

func (p *Player) SetChannelMute(ch int, mute bool) {
	if ch >= 0 && ch < len(p.voices) {
		p.voices[ch].mute = mute
	}
}

func (p *Player) SetChannelGain(ch int, gain float64) {
	if ch >= 0 && ch < len(p.voices) {
		p.voices[ch].userGain = gain
	}
}

func (p *Player) Seq() *sequencer.Sequencer { return p.seq }

// onRow fetches one step per voice from the current position's tracks and
// applies it.
func (p *Player) onRow(orderIdx, positionIdx, row int) {
	if positionIdx < 0 || positionIdx >= len(p.song.Positions) {
		return
	}
	position := p.song.Positions[positionIdx]
	for ch := 0; ch < 4; ch++ {
		v := &p.voices[ch]
		v.track = position.Track[ch]
		v.transpose = position.Transpose[ch]
		v.noteDelayTick = -1
		v.noteCutTick = -1
		v.pendingNote = 0
		v.pendingInstr = 0

		if v.track < 0 || v.track >= len(p.song.Tracks) || row >= len(p.song.Tracks[v.track]) {
			continue
		}
		step := p.song.Tracks[v.track][row]
		p.applyStep(ch, step)
	}
}

func (p *Player) applyStep(ch int, step Step) {
	v := &p.voices[ch]

	switch step.FX {
	case FXEnhanced:
		sub := (step.FXParam >> 4) & 0xF
		param := step.FXParam & 0xF
		switch sub {
		case ExNoteCut:
			v.noteCutTick = param
		case ExNoteDelay:
			v.noteDelayTick = param
			v.pendingNote = step.Note
			v.pendingInstr = step.Instrument
			return
		}
	case FXPositionJumpHi:
		// high bits of a 12-bit position jump target; this player keeps
		// FXPositionJump's 8-bit param as the full target, so this is a no-op.
	case FXPositionJump:
		p.seq.PositionJump(step.FXParam)
	case FXPatternBreak:
		p.seq.PatternBreak(0)
	case FXSpeed:
		if step.FXParam == 0 {
			p.seq.Stop()
		} else if step.FXParam < 32 {
			p.seq.SetSpeed(step.FXParam)
		} else {
			p.seq.SetBPM(step.FXParam)
		}
	case FXVolume:
		if step.FXParam <= 0x40 {
			v.volume = float64(step.FXParam)
		}
		// params > 0x40 address track-group master volumes in the real
		// engine; this player has no master-volume groups, so they're
		// ignored.
	case FXPortaUp, FXPortaDown:
		// The real engine slides a period-table index toward a target note;
		// this model works directly in frequency with no target-note state,
		// so portamento is not reproduced.
	}

	p.triggerNote(ch, step.Note, step.Instrument)
}

func (p *Player) triggerNote(ch, note, instrument int) {
	v := &p.voices[ch]
	if instrument != 0 && instrument < len(p.song.Instruments) {
		v.instrument = instrument
	}
	if note == 0 {
		return
	}
	v.note = note
	inst := p.currentInstrument(ch)
	if inst == nil {
		return
	}
	v.freq = noteFrequency(note, v.transpose)
	v.volume = float64(inst.Volume)
	v.wavePos = 0
	v.vibPhase = 0
	v.stage = envAttack
	v.envVolume = 0
	v.wave = baseWaveform(inst)
	v.on = true
}

// baseWaveform reports the waveform an instrument renders with before any
// PList-driven waveform stepping (not implemented, see PList doc comment):
// the first playlist entry's waveform, or sawtooth if the instrument has
// no playlist entries at all.
func baseWaveform(inst *Instrument) Waveform {
	if len(inst.PList.Entries) == 0 {
		return WaveSawtooth
	}
	switch inst.PList.Entries[0].Waveform {
	case 0:
		return WaveTriangle
	case 2:
		return WaveSquare
	case 3:
		return WaveNoise
	default:
		return WaveSawtooth
	}
}

func (p *Player) currentInstrument(ch int) *Instrument {
	v := &p.voices[ch]
	if v.instrument <= 0 || v.instrument >= len(p.song.Instruments) {
		return nil
	}
	return &p.song.Instruments[v.instrument]
}

// onTick handles per-frame effects: note-delay triggers and note-cut.
// "Tick" here is one AHX frame (the sequencer runs in ModeFrame).
func (p *Player) onTick(tick int) {
	for ch := range p.voices {
		v := &p.voices[ch]
		if v.noteDelayTick == tick {
			p.triggerNote(ch, v.pendingNote, v.pendingInstr)
			v.noteDelayTick = -1
		}
		if v.noteCutTick == tick {
			v.volume = 0
			v.noteCutTick = -1
		}
	}
}

// noteFrequency maps an AHX note number to Hz using straightforward
// MIDI-style equal temperament, with AHX's transpose applied as semitones.
// AHX's real engine instead looks the note up in a period table; this
// player's generator model works directly in frequency, so it computes Hz
// from the note number the way the simplified rendering model specifies.
func noteFrequency(note int, transpose int8) float64 {
	semitone := float64(note) + float64(transpose) - 69
	return 440 * math.Pow(2, semitone/12)
}

// RenderStereo renders up to len(left) stereo frames, returning the number
// of frames actually produced (0 once playback has stopped and is not
// looping).
func (p *Player) RenderStereo(left, right []float64) int {
	return p.render(left, right, nil)
}

// RenderPerChannel behaves like RenderStereo, and additionally writes each
// voice's gain-applied mono contribution (pre-pan, post-filter) into
// channelOuts[ch] for ch < NumChannels; entries beyond NumChannels or a
// nil slot are left untouched (deck.Deck zero-fills those itself).
func (p *Player) RenderPerChannel(left, right []float64, channelOuts []([]float64)) int {
	return p.render(left, right, channelOuts)
}

func (p *Player) render(left, right []float64, channelOuts []([]float64)) int {
	n := len(left)
	if len(right) < n {
		n = len(right)
	}
	framesPerTick := float64(p.sampleRate) / float64(p.seq.BPM())
	for i := 0; i < n; i++ {
		if !p.seq.IsPlaying() {
			return i
		}
		p.seq.Process(1, p.sampleRate)

		voices := make([]mixer.Voice, 0, 4)
		for ch := range p.voices {
			v := &p.voices[ch]
			if !v.on {
				continue
			}
			inst := p.currentInstrument(ch)
			if inst == nil {
				continue
			}
			p.stepEnvelope(v, inst, framesPerTick)
			if v.stage == envIdle {
				v.on = false
				continue
			}

			freq := p.vibratoFrequency(v, inst, framesPerTick)
			waveLength := 4 << uint(inst.WaveLength)
			sample := p.generate(v, waveLength, freq)
			sample = p.applyFilter(v, inst, sample)

			gain := (v.envVolume / 64) * (v.volume / 64)
			if v.mute {
				gain = 0
			}
			gain *= v.userGain
			if ch < len(channelOuts) && channelOuts[ch] != nil && i < len(channelOuts[ch]) {
				channelOuts[ch][i] = sample * gain
			}
			voices = append(voices, mixer.Voice{
				Sample: sample,
				Pan:    defaultPan(ch),
				Gain:   gain,
			})
		}
		l, r := mixer.MixFrame(voices, 0.5)
		left[i] = l
		right[i] = r
	}
	return n
}

func defaultPan(ch int) float64 {
	switch ch {
	case 0, 3:
		return -1
	default:
		return 1
	}
}

// stepEnvelope advances the ADSR state machine by one sample, using
// framesPerTick (samples per sequencer frame) to convert the instrument's
// frame-count envelope into a per-sample rate.
func (p *Player) stepEnvelope(v *voice, inst *Instrument, framesPerTick float64) {
	perSample := func(frames int, delta float64) float64 {
		totalSamples := float64(frames) * framesPerTick
		if totalSamples <= 0 {
			return delta
		}
		return delta / totalSamples
	}

	switch v.stage {
	case envAttack:
		step := perSample(inst.Envelope.AttackFrames, float64(inst.Envelope.AttackVolume))
		v.envVolume += step
		if v.envVolume >= float64(inst.Envelope.AttackVolume) || inst.Envelope.AttackFrames == 0 {
			v.envVolume = float64(inst.Envelope.AttackVolume)
			v.stage = envDecay
		}
	case envDecay:
		target := float64(inst.Envelope.DecayVolume)
		step := perSample(inst.Envelope.DecayFrames, target-float64(inst.Envelope.AttackVolume))
		v.envVolume += step
		if inst.Envelope.DecayFrames == 0 || (step >= 0 && v.envVolume >= target) || (step < 0 && v.envVolume <= target) {
			v.envVolume = target
			v.stage = envSustain
		}
	case envSustain:
		// holds at DecayVolume. Nothing moves a voice into envRelease: a
		// note cut zeroes v.volume, which scales the mix gain, and leaves
		// the envelope itself in this stage.
	case envRelease:
		step := perSample(inst.Envelope.ReleaseFrames, float64(inst.Envelope.ReleaseVolume)-v.envVolume)
		v.envVolume += step
		if v.envVolume <= 0 || inst.Envelope.ReleaseFrames == 0 {
			v.envVolume = 0
			v.stage = envIdle
		}
	}
}

// vibratoFrequency applies a sine vibrato on top of the voice's base
// frequency. inst.VibratoDelay is not read: there is no delay before the
// vibrato starts.
func (p *Player) vibratoFrequency(v *voice, inst *Instrument, framesPerTick float64) float64 {
	if inst.VibratoDepth == 0 || inst.VibratoSpeed == 0 {
		return v.freq
	}
	v.vibPhase += float64(inst.VibratoSpeed) / float64(p.sampleRate)
	mod := math.Sin(2*math.Pi*v.vibPhase) * (float64(inst.VibratoDepth) * 0.1)
	return v.freq * (1 + mod)
}

// generate advances the voice's wavetable phase by one sample and returns a
// value in -1..1 for the voice's waveform family, evaluated directly at the
// current phase rather than via a precomputed table.
func (p *Player) generate(v *voice, waveLength int, freq float64) float64 {
	v.wavePos += freq * float64(waveLength) / float64(p.sampleRate)
	for v.wavePos >= float64(waveLength) {
		v.wavePos -= float64(waveLength)
	}
	t := v.wavePos / float64(waveLength)

	switch v.waveform() {
	case WaveSawtooth:
		return 2*t - 1
	case WaveSquare:
		if t < 0.5 {
			return 1
		}
		return -1
	case WaveNoise:
		return noiseSample(v)
	default: // WaveTriangle
		if t < 0.5 {
			return 4*t - 1
		}
		return 3 - 4*t
	}
}

// waveform reports which generator a voice renders with: the instrument's
// base waveform, fixed for the note's duration. PList-driven waveform
// switching mid-note is not implemented (see PList doc comment).
func (v *voice) waveform() Waveform { return v.wave }

func noiseSample(v *voice) float64 {
	v.noiseSeed = v.noiseSeed*1664525 + 1013904223
	return float64(int32(v.noiseSeed))/float64(1<<31)
}

// applyFilter runs a one-pole lowpass across sample, using the instrument's
// filter lower limit as a fixed cutoff (filter sweep between lower/upper
// limits is not implemented; see Instrument doc comment).
func (p *Player) applyFilter(v *voice, inst *Instrument, sample float64) float64 {
	cutoffHz := 20 * math.Pow(1000, float64(inst.FilterLowerLimit)/127)
	nyquist := float64(p.sampleRate) / 2
	if cutoffHz > nyquist*0.99 {
		cutoffHz = nyquist * 0.99
	}
	rc := 1 / (2 * math.Pi * cutoffHz)
	dt := 1 / float64(p.sampleRate)
	alpha := dt / (rc + dt)
	v.filterState += alpha * (sample - v.filterState)
	return v.filterState
}
