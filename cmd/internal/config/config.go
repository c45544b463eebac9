// Package config translates a -reverb flag value shared by cmd/groove and
// cmd/groovewav into a comb.Reverber.
package config

import (
	"fmt"

	"github.com/groovehaus/groovecore/internal/comb"
)

// passThrough implements comb.Reverber but leaves the audio untouched; used
// for "-reverb none" so cmd/groove can always pipe audio through a Reverber
// without a special case.
type passThrough struct {
	audio             []int16
	bufSize           int
	readPos, writePos int
	n                 int
}

var _ comb.Reverber = (*passThrough)(nil)

func newPassThrough(bufferSize int) *passThrough {
	return &passThrough{
		audio:   make([]int16, bufferSize),
		bufSize: bufferSize,
	}
}

func (r *passThrough) InputSamples(in []int16) int {
	free := r.bufSize - r.n
	n := len(in)
	if n > free {
		n = free
	}
	if n == 0 {
		return 0
	}

	if r.writePos+n >= r.bufSize {
		n1 := r.bufSize - r.writePos
		n2 := n - n1
		copy(r.audio[r.writePos:r.writePos+n1], in[:n1])
		copy(r.audio[:n2], in[n1:n1+n2])
		r.writePos = n2
	} else {
		copy(r.audio[r.writePos:r.writePos+n], in[:n])
		r.writePos += n
	}
	r.n += n

	return n
}

func (r *passThrough) GetAudio(out []int16) int {
	n := len(out)
	if n > r.n {
		n = r.n
	}
	if n == 0 {
		return 0
	}

	if r.readPos+n > r.bufSize {
		n1 := r.bufSize - r.readPos
		n2 := n - n1
		copy(out[:n1], r.audio[r.readPos:r.readPos+n1])
		copy(out[n1:n], r.audio[:n2])
		r.readPos = n2
	} else {
		copy(out[:n], r.audio[r.readPos:r.readPos+n])
		r.readPos += n
	}
	r.n -= n

	return n
}

const reverbBufferPairs = 10 * 1024

// ReverbFromFlag builds a comb.Reverber from the -reverb flag's value.
func ReverbFromFlag(reverb string, sampleRate int) (r comb.Reverber, err error) {
	rf := float32(0.2)
	rd := 150
	switch reverb {
	case "medium":
		rf = 0.3
		rd = 250
	case "silly":
		rf = 0.5
		rd = 2500
	case "none":
		rf = 0
	case "light":
	default:
		err = fmt.Errorf("unrecognized reverb setting %q", reverb)
	}

	if rf == 0 {
		r = newPassThrough(reverbBufferPairs * 2)
	} else {
		r = comb.NewCombFixed(reverbBufferPairs, rf, rd, sampleRate)
	}

	return r, err
}
