package mmd

import (
	"fmt"
	"math"

	"github.com/groovehaus/groovecore/internal/bread"
)

const headerSize = 4 + 4*5 // magic + big-endian u32 file length + 4 big-endian u32 pointers

// LoadFromBytes parses an MMD2/MMD3 module: a small fixed header carrying
// absolute big-endian pointers to the song structure, block array, sample
// array, and play sequence, chased with bread.Reader.At the way the
// teacher's s3m.go seeks into its paragraph pointer table.
func LoadFromBytes(data []byte) (*Song, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: file too short for MMD header", ErrFormatMismatch)
	}
	r := bread.NewReader(data)
	magic, err := r.String(4)
	if err != nil {
		return nil, fmt.Errorf("%w: magic: %v", ErrFormatMismatch, err)
	}
	if magic != "MMD2" && magic != "MMD3" {
		return nil, fmt.Errorf("%w: magic %q", ErrFormatMismatch, magic)
	}

	if _, err := r.U32(); err != nil { // file length, unused beyond presence
		return nil, fmt.Errorf("%w: file length: %v", ErrCorrupt, err)
	}
	songOffset, err := r.U32()
	if err != nil {
		return nil, fmt.Errorf("%w: song offset: %v", ErrCorrupt, err)
	}
	blockArrOffset, err := r.U32()
	if err != nil {
		return nil, fmt.Errorf("%w: block array offset: %v", ErrCorrupt, err)
	}
	sampleArrOffset, err := r.U32()
	if err != nil {
		return nil, fmt.Errorf("%w: sample array offset: %v", ErrCorrupt, err)
	}
	playSeqOffset, err := r.U32()
	if err != nil {
		return nil, fmt.Errorf("%w: play sequence offset: %v", ErrCorrupt, err)
	}

	type smallSample struct {
		repeatWords, replenWords uint16
		volume                   int
	}
	songR, err := r.At(int(songOffset))
	if err != nil {
		return nil, fmt.Errorf("%w: song: %v", ErrCorrupt, err)
	}
	smalls := make([]smallSample, NumInstruments)
	for i := range smalls {
		rep, err := songR.U16()
		if err != nil {
			return nil, fmt.Errorf("%w: small sample %d repeat: %v", ErrCorrupt, i, err)
		}
		replen, err := songR.U16()
		if err != nil {
			return nil, fmt.Errorf("%w: small sample %d replen: %v", ErrCorrupt, i, err)
		}
		if _, err := songR.Bytes(2); err != nil { // midi channel/preset, ignored
			return nil, fmt.Errorf("%w: small sample %d midi: %v", ErrCorrupt, i, err)
		}
		vol, err := songR.U8()
		if err != nil {
			return nil, fmt.Errorf("%w: small sample %d volume: %v", ErrCorrupt, i, err)
		}
		if _, err := songR.U8(); err != nil { // transpose, unused
			return nil, fmt.Errorf("%w: small sample %d transpose: %v", ErrCorrupt, i, err)
		}
		smalls[i] = smallSample{repeatWords: rep, replenWords: replen, volume: int(vol)}
	}

	numBlocks, err := songR.U16()
	if err != nil {
		return nil, fmt.Errorf("%w: numblocks: %v", ErrCorrupt, err)
	}
	numTracks, err := songR.U16()
	if err != nil {
		return nil, fmt.Errorf("%w: numtracks: %v", ErrCorrupt, err)
	}
	defTempo, err := songR.U16()
	if err != nil {
		return nil, fmt.Errorf("%w: deftempo: %v", ErrCorrupt, err)
	}
	tempo2, err := songR.U8()
	if err != nil {
		return nil, fmt.Errorf("%w: tempo2: %v", ErrCorrupt, err)
	}
	flags, err := songR.U8()
	if err != nil {
		return nil, fmt.Errorf("%w: flags: %v", ErrCorrupt, err)
	}
	flags2, err := songR.U8()
	if err != nil {
		return nil, fmt.Errorf("%w: flags2: %v", ErrCorrupt, err)
	}
	rowsPerBeat, err := songR.U8()
	if err != nil {
		return nil, fmt.Errorf("%w: rowsperbeat: %v", ErrCorrupt, err)
	}

	song := &Song{Tracks: int(numTracks)}
	song.BPM, song.Speed = decodeTempo(int(defTempo), int(tempo2), flags, flags2, int(rowsPerBeat), int(numTracks))

	// Blocks.
	blockArrR, err := r.At(int(blockArrOffset))
	if err != nil {
		return nil, fmt.Errorf("%w: block array: %v", ErrCorrupt, err)
	}
	song.Blocks = make([][]Note, numBlocks)
	song.BlockRows = make([]int, numBlocks)
	for i := 0; i < int(numBlocks); i++ {
		ptr, err := blockArrR.U32()
		if err != nil {
			return nil, fmt.Errorf("%w: block pointer %d: %v", ErrCorrupt, i, err)
		}
		blk, rows, tracks, err := readBlock(r, int(ptr))
		if err != nil {
			return nil, fmt.Errorf("%w: block %d: %v", ErrCorrupt, i, err)
		}
		if tracks > 64 {
			return nil, fmt.Errorf("%w: block %d declares %d tracks", ErrCorrupt, i, tracks)
		}
		song.Blocks[i] = blk
		song.BlockRows[i] = rows
	}

	// Instruments.
	sampleArrR, err := r.At(int(sampleArrOffset))
	if err != nil {
		return nil, fmt.Errorf("%w: sample array: %v", ErrCorrupt, err)
	}
	for i := 0; i < NumInstruments; i++ {
		ptr, err := sampleArrR.U32()
		if err != nil {
			return nil, fmt.Errorf("%w: sample pointer %d: %v", ErrCorrupt, i, err)
		}
		if ptr == 0 {
			continue
		}
		inst, err := readInstrument(r, int(ptr), smalls[i].repeatWords, smalls[i].replenWords, smalls[i].volume)
		if err != nil {
			return nil, fmt.Errorf("%w: instrument %d: %v", ErrCorrupt, i, err)
		}
		song.Instruments[i] = *inst
	}

	// Play sequence.
	playR, err := r.At(int(playSeqOffset))
	if err != nil {
		return nil, fmt.Errorf("%w: play sequence: %v", ErrCorrupt, err)
	}
	seqLen, err := playR.U16()
	if err != nil {
		return nil, fmt.Errorf("%w: play sequence length: %v", ErrCorrupt, err)
	}
	song.Orders = make([]int, seqLen)
	for i := 0; i < int(seqLen); i++ {
		b, err := playR.U16()
		if err != nil {
			return nil, fmt.Errorf("%w: play sequence entry %d: %v", ErrCorrupt, i, err)
		}
		if int(b) >= len(song.Blocks) {
			return nil, fmt.Errorf("%w: play sequence entry %d references block %d, have %d", ErrCorrupt, i, b, len(song.Blocks))
		}
		song.Orders[i] = int(b)
	}

	return song, nil
}

// decodeTempo reproduces OctaMED's BPM/speed decoding: BPM mode (flags2 bit
// 0x20) scales deftempo by rows-per-beat, otherwise a legacy timer tick count
// is converted through the Amiga CIA tick constant (1/0.264), with a fixed
// 158 BPM fallback for very slow software-mixing deftempo values.
func decodeTempo(defTempo, tempo2 int, flags, flags2 byte, rowsPerBeat, channels int) (bpm, speed int) {
	const flagSoftwareMix = 0x01
	const flag2BPMMode = 0x20

	switch {
	case flags2&flag2BPMMode != 0 && channels != 8:
		bpm = defTempo * rowsPerBeat / 4
	case flags&flagSoftwareMix != 0 && defTempo < 8:
		bpm = 158
	default:
		bpm = int(math.Round(float64(defTempo) / 0.264))
	}
	speed = tempo2
	if speed == 0 {
		speed = 6
	}
	return bpm, speed
}

// readBlock parses a block at an absolute offset and transposes its
// on-disk track-major note layout into the row-major layout the player
// expects (row*tracks+track, matching mod's Patterns layout).
func readBlock(r *bread.Reader, offset int) (notes []Note, rows, tracks int, err error) {
	br, err := r.At(offset)
	if err != nil {
		return nil, 0, 0, err
	}
	nt, err := br.U16()
	if err != nil {
		return nil, 0, 0, err
	}
	nlMinus1, err := br.U16()
	if err != nil {
		return nil, 0, 0, err
	}
	if _, err := br.U32(); err != nil { // reserved
		return nil, 0, 0, err
	}
	tracks = int(nt)
	rows = int(nlMinus1) + 1

	out := make([]Note, rows*tracks)
	for t := 0; t < tracks; t++ {
		for row := 0; row < rows; row++ {
			raw, err := br.Bytes(4)
			if err != nil {
				return nil, 0, 0, err
			}
			out[row*tracks+t] = Note{
				NoteNum:    int(raw[0]),
				Instrument: int(raw[1]),
				Command:    raw[2],
				Param:      raw[3],
			}
		}
	}
	return out, rows, tracks, nil
}

func readInstrument(r *bread.Reader, offset int, repeatWords, replenWords uint16, smallVolume int) (*Instrument, error) {
	ir, err := r.At(offset)
	if err != nil {
		return nil, err
	}
	length, err := ir.U32()
	if err != nil {
		return nil, err
	}
	typeFlags, err := ir.I16()
	if err != nil {
		return nil, err
	}

	inst := &Instrument{Length: int(length), Volume: smallVolume}

	stereo, is16Bit := false, false
	if typeFlags == -2 {
		finetune, err := ir.U8()
		if err != nil {
			return nil, err
		}
		instrFlags, err := ir.U8()
		if err != nil {
			return nil, err
		}
		if _, err := ir.Bytes(2); err != nil { // default pitch + instrVolume, superseded by smallVolume
			return nil, err
		}
		if _, err := ir.U16(); err != nil { // hold/decay, unused
			return nil, err
		}
		loopStart, err := ir.U32()
		if err != nil {
			return nil, err
		}
		loopLen, err := ir.U32()
		if err != nil {
			return nil, err
		}
		if _, err := ir.U32(); err != nil { // reserved
			return nil, err
		}
		inst.FineTune = int(int8(finetune))
		stereo = instrFlags&0x04 != 0
		is16Bit = instrFlags&0x08 != 0
		inst.LoopStart = int(loopStart)
		inst.LoopLen = int(loopLen)
	} else {
		inst.LoopStart = int(repeatWords) * 2
		inst.LoopLen = int(replenWords) * 2
		if inst.LoopLen < 4 {
			inst.LoopLen = 0
		}
	}

	bytesPerFrame := 1
	if is16Bit {
		bytesPerFrame = 2
	}
	if stereo {
		bytesPerFrame *= 2
	}
	nFrames := inst.Length
	if bytesPerFrame > 1 {
		nFrames = inst.Length / bytesPerFrame
	}
	raw, err := ir.Bytes(nFrames * bytesPerFrame)
	if err != nil {
		return nil, err
	}

	data := make([]float64, nFrames)
	for i := 0; i < nFrames; i++ {
		var l, r2 float64
		if is16Bit {
			base := i * bytesPerFrame
			l = float64(int16(uint16(raw[base])<<8|uint16(raw[base+1]))) / 32768
			if stereo {
				r2 = float64(int16(uint16(raw[base+2])<<8|uint16(raw[base+3]))) / 32768
			} else {
				r2 = l
			}
		} else {
			base := i * bytesPerFrame
			l = float64(int8(raw[base])) / 128
			if stereo {
				r2 = float64(int8(raw[base+1])) / 128
			} else {
				r2 = l
			}
		}
		data[i] = (l + r2) / 2
	}
	inst.Data = data
	inst.Length = nFrames
	if inst.LoopStart+inst.LoopLen > inst.Length {
		inst.LoopLen = 0
	}
	return inst, nil
}
