// Package comb implements a Schroeder/Freeverb-style reverb built from comb
// and allpass filters, plus the streaming Reverber interface cmd/groove and
// cmd/groovewav feed post-render audio through.
package comb

// Reverber is the streaming interface a reverb effect exposes: InputSamples
// pushes interleaved stereo int16 samples in (returning how many were
// accepted, short of len(in) once internal buffering is full), and GetAudio
// drains processed samples out in the same interleaved shape.
type Reverber interface {
	InputSamples(in []int16) int
	GetAudio(out []int16) int
}

// allpassFilter is a single Schroeder allpass section: a delay line with
// feedback and feedforward of equal, opposite-signed gain.
type allpassFilter struct {
	buffer   []int32
	pos      int
	feedback float32
}

func newAllpass(delay int) *allpassFilter {
	if delay < 1 {
		delay = 1
	}
	return &allpassFilter{buffer: make([]int32, delay), feedback: 0.5}
}

func (a *allpassFilter) process(input int32) int32 {
	bufout := a.buffer[a.pos]
	output := -input + bufout
	a.buffer[a.pos] = input + int32(float32(bufout)*a.feedback)
	a.pos++
	if a.pos >= len(a.buffer) {
		a.pos = 0
	}
	return output
}

// combFilter is a feedback delay line with a one-pole lowpass (damping) in
// the feedback path, the building block of a Freeverb-style tank.
type combFilter struct {
	buffer      []int32
	pos         int
	feedback    float32
	damping     float32
	filterStore float32
}

func newCombFilter(delay int, feedback, damping float32) *combFilter {
	if delay < 1 {
		delay = 1
	}
	return &combFilter{buffer: make([]int32, delay), feedback: feedback, damping: damping}
}

func (c *combFilter) process(input int32) int32 {
	output := c.buffer[c.pos]
	c.filterStore = float32(output)*(1-c.damping) + c.filterStore*c.damping
	c.buffer[c.pos] = input + int32(c.filterStore*c.feedback)
	c.pos++
	if c.pos >= len(c.buffer) {
		c.pos = 0
	}
	return output
}

// Base tunings in samples at 44100Hz (Freeverb's tank, trimmed to 4 combs +
// 2 allpasses per channel since groovecore only needs a send effect, not a
// standalone reverb plugin). The right channel is offset by stereoSpread
// samples so the two channels decorrelate.
var (
	combTuningsL   = [...]int{1116, 1188, 1277, 1356}
	allpassTunings = [...]int{556, 441}
)

const stereoSpread = 23

// StereoReverb processes interleaved stereo int16 audio through a bank of
// comb filters in parallel per channel, followed by allpass filters in
// series, blended against the dry signal by mix. It satisfies Reverber.
type StereoReverb struct {
	combsL, combsR []*combFilter
	apL, apR       []*allpassFilter
	mix            float32

	ring             []int16
	head, tail, size int
}

// NewStereoReverb builds a reverb sized for bufferPairs stereo sample pairs
// of internal buffering. decay and damping are in [0,1); mix blends dry
// (0.0) through fully wet (1.0). Filter delay lengths scale with
// sampleRate so the reverb's character stays consistent across rates.
func NewStereoReverb(bufferPairs int, decay, damping, mix float32, sampleRate int) *StereoReverb {
	scale := float64(sampleRate) / 44100.0

	sr := &StereoReverb{
		mix:  mix,
		ring: make([]int16, bufferPairs*2),
	}
	for _, d := range combTuningsL {
		sr.combsL = append(sr.combsL, newCombFilter(scaleDelay(d, scale), decay, damping))
		sr.combsR = append(sr.combsR, newCombFilter(scaleDelay(d+stereoSpread, scale), decay, damping))
	}
	for _, d := range allpassTunings {
		sr.apL = append(sr.apL, newAllpass(scaleDelay(d, scale)))
		sr.apR = append(sr.apR, newAllpass(scaleDelay(d+stereoSpread, scale)))
	}
	return sr
}

// NewCombFixed builds a StereoReverb sized by a single delay-in-ms figure,
// the shape ReverbFromFlag's "light"/"medium"/"silly" presets use: bufferSize
// is the internal buffering capacity in stereo sample pairs, feedback is the
// comb decay, and delayMs derives the filter tap lengths (the Freeverb
// tunings are proportioned to a ~25.3ms primary tap at 44100Hz).
func NewCombFixed(bufferSizePairs int, feedback float32, delayMs int, sampleRate int) *StereoReverb {
	const baseDelayMs = 25.3
	scale := (float64(delayMs) / baseDelayMs) * (float64(sampleRate) / 44100.0)

	sr := &StereoReverb{
		mix:  1,
		ring: make([]int16, bufferSizePairs*2),
	}
	for _, d := range combTuningsL {
		sr.combsL = append(sr.combsL, newCombFilter(scaleDelay(d, scale), feedback, 0.5))
		sr.combsR = append(sr.combsR, newCombFilter(scaleDelay(d+stereoSpread, scale), feedback, 0.5))
	}
	for _, d := range allpassTunings {
		sr.apL = append(sr.apL, newAllpass(scaleDelay(d, scale)))
		sr.apR = append(sr.apR, newAllpass(scaleDelay(d+stereoSpread, scale)))
	}
	return sr
}

func scaleDelay(base int, scale float64) int {
	d := int(float64(base) * scale)
	if d < 1 {
		d = 1
	}
	return d
}

func processChannel(combs []*combFilter, aps []*allpassFilter, input int32) int32 {
	var wet int32
	for _, c := range combs {
		wet += c.process(input)
	}
	wet /= int32(len(combs))
	for _, a := range aps {
		wet = a.process(wet)
	}
	return wet
}

func clampInt16(v float32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

var _ Reverber = (*StereoReverb)(nil)

// InputSamples runs interleaved stereo samples through the reverb tank and
// appends the result to the internal ring buffer, stopping (and returning a
// short count) once that buffer is full; callers must GetAudio to make room.
func (s *StereoReverb) InputSamples(in []int16) int {
	consumed := 0
	for i := 0; i+1 < len(in); i += 2 {
		if s.size+2 > len(s.ring) {
			break
		}
		l := int32(in[i])
		r := int32(in[i+1])
		wetL := processChannel(s.combsL, s.apL, l)
		wetR := processChannel(s.combsR, s.apR, r)
		outL := clampInt16(float32(l)*(1-s.mix) + float32(wetL)*s.mix)
		outR := clampInt16(float32(r)*(1-s.mix) + float32(wetR)*s.mix)

		s.ring[s.tail] = outL
		s.tail = (s.tail + 1) % len(s.ring)
		s.ring[s.tail] = outR
		s.tail = (s.tail + 1) % len(s.ring)
		s.size += 2
		consumed += 2
	}
	return consumed
}

// GetAudio drains up to len(out) processed interleaved samples.
func (s *StereoReverb) GetAudio(out []int16) int {
	n := len(out)
	if n > s.size {
		n = s.size
	}
	for i := 0; i < n; i++ {
		out[i] = s.ring[s.head]
		s.head = (s.head + 1) % len(s.ring)
	}
	s.size -= n
	return n
}
