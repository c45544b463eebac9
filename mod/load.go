package mod

import (
	"fmt"
	"strconv"

	"github.com/groovehaus/groovecore/internal/bread"
)

const (
	tagOffset    = 1080
	sampleDescSz = 30
)

// LoadFromBytes parses a ProTracker MOD file, grounded on NewMODSongFromBytes
// (mod.go): fixed-width header, 31 sample descriptors, 1-byte song length,
// 128-byte order table, a 4-byte tag at offset 1080, then pattern data,
// then concatenated sample bodies.
func LoadFromBytes(data []byte) (*Song, error) {
	if len(data) < tagOffset+4 {
		return nil, fmt.Errorf("%w: file too short for MOD header", ErrFormatMismatch)
	}

	channels, err := channelsFromTag(data[tagOffset : tagOffset+4])
	if err != nil {
		return nil, err
	}

	r := bread.NewReader(data)
	title, err := r.String(20)
	if err != nil {
		return nil, fmt.Errorf("%w: title: %v", ErrCorrupt, err)
	}

	song := &Song{Title: title, Channels: channels}
	for i := 0; i < NumSamples; i++ {
		s, err := readSampleInfo(r)
		if err != nil {
			return nil, fmt.Errorf("%w: sample %d info: %v", ErrCorrupt, i, err)
		}
		song.Samples[i] = *s
	}

	songLen, err := r.U8()
	if err != nil {
		return nil, fmt.Errorf("%w: song length: %v", ErrCorrupt, err)
	}
	if _, err := r.U8(); err != nil { // restart byte, unused
		return nil, fmt.Errorf("%w: restart byte: %v", ErrCorrupt, err)
	}
	orderBytes, err := r.Bytes(128)
	if err != nil {
		return nil, fmt.Errorf("%w: order table: %v", ErrCorrupt, err)
	}
	if int(songLen) > 128 {
		return nil, fmt.Errorf("%w: song length %d exceeds order table", ErrCorrupt, songLen)
	}
	song.Orders = make([]int, songLen)
	maxPattern := 0
	for i := 0; i < int(songLen); i++ {
		song.Orders[i] = int(orderBytes[i])
		if song.Orders[i] > maxPattern {
			maxPattern = song.Orders[i]
		}
	}
	numPatterns := maxPattern + 1

	if _, err := r.Bytes(4); err != nil { // re-consume the tag
		return nil, fmt.Errorf("%w: tag: %v", ErrCorrupt, err)
	}

	const bytesPerNote = 4
	rowBytes := RowsPerPattern * channels * bytesPerNote
	song.Patterns = make([][]Note, numPatterns)
	for p := 0; p < numPatterns; p++ {
		raw, err := r.Bytes(rowBytes)
		if err != nil {
			return nil, fmt.Errorf("%w: pattern %d data: %v", ErrCorrupt, p, err)
		}
		pat := make([]Note, RowsPerPattern*channels)
		for i := range pat {
			pat[i] = noteFromBytes(raw[i*4 : i*4+4])
		}
		song.Patterns[p] = pat
	}

	for i := 0; i < NumSamples; i++ {
		length := song.Samples[i].Length
		avail := r.Len()
		if length > avail {
			// Some real-world MOD files declare a sample length longer than
			// what remains in the file; read what's available (teacher's
			// mod.go has the same accommodation).
			length = avail
		}
		data, err := r.Bytes(length)
		if err != nil {
			return nil, fmt.Errorf("%w: sample %d data: %v", ErrCorrupt, i, err)
		}
		pcm := make([]int8, length)
		for j, b := range data {
			pcm[j] = int8(b)
		}
		song.Samples[i].Data = pcm
		song.Samples[i].Length = length
	}

	return song, nil
}

func channelsFromTag(tag []byte) (int, error) {
	s := string(tag)
	switch {
	case s == "M.K." || s == "M!K!" || s == "FLT4":
		return 4, nil
	case s == "4CHN":
		return 4, nil
	case len(s) == 4 && s[1:] == "CHN":
		n, err := strconv.Atoi(s[0:1])
		if err != nil {
			return 0, fmt.Errorf("%w: tag %q", ErrFormatMismatch, s)
		}
		return n, nil
	case len(s) == 4 && s[2:] == "CH":
		n, err := strconv.Atoi(s[0:2])
		if err != nil {
			return 0, fmt.Errorf("%w: tag %q", ErrFormatMismatch, s)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%w: tag %q", ErrFormatMismatch, s)
	}
}

func readSampleInfo(r *bread.Reader) (*Sample, error) {
	name, err := r.String(22)
	if err != nil {
		return nil, err
	}
	lengthWords, err := r.U16()
	if err != nil {
		return nil, err
	}
	fine, err := r.U8()
	if err != nil {
		return nil, err
	}
	vol, err := r.U8()
	if err != nil {
		return nil, err
	}
	loopStartWords, err := r.U16()
	if err != nil {
		return nil, err
	}
	loopLenWords, err := r.U16()
	if err != nil {
		return nil, err
	}

	smp := &Sample{
		Name:      name,
		Length:    int(lengthWords) * 2,
		FineTune:  int(fine&7) - int(fine&8) + 8,
		Volume:    int(vol),
		LoopStart: int(loopStartWords) * 2,
		LoopLen:   int(loopLenWords) * 2,
	}
	if smp.LoopLen < 4 {
		smp.LoopLen = 0
	}
	// Correct loop windows that overshoot the sample, same accommodation
	// readMODSampleInfo makes (an idea it lifted from MilkyTracker).
	if smp.LoopStart+smp.LoopLen > smp.Length {
		dx := smp.LoopStart + smp.LoopLen - smp.Length
		smp.LoopStart -= dx
		if smp.LoopStart < 0 {
			smp.LoopStart = 0
		}
		if smp.LoopStart+smp.LoopLen > smp.Length {
			dx = smp.LoopStart + smp.LoopLen - smp.Length
			smp.LoopLen -= dx
		}
	}
	if smp.LoopLen < 2 {
		smp.LoopLen = 0
	}
	return smp, nil
}

func noteFromBytes(b []byte) Note {
	return Note{
		Sample: int(b[0]&0xF0) | int(b[2]>>4),
		Period: int(b[0]&0x0F)<<8 | int(b[1]),
		Effect: b[2] & 0x0F,
		Param:  b[3],
	}
}
