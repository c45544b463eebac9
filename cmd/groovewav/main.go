// Command groovewav renders a MOD, MMD, or AHX module to a WAV file
// non-interactively.
package main

import (
	"flag"
	"log"
	"math"
	"os"

	"github.com/groovehaus/groovecore/cmd/internal/config"
	"github.com/groovehaus/groovecore/deck"
	"github.com/groovehaus/groovecore/wav"
)

var (
	flagHz      = flag.Int("hz", 44100, "output sample rate")
	flagOut     = flag.String("wav", "", "output WAV file path (required)")
	flagStart   = flag.Int("start", 0, "starting order, clamped to the song's length")
	flagBoost   = flag.Float64("boost", 1, "volume boost/attenuation applied after mixing")
	flagReverb  = flag.String("reverb", "none", "reverb preset: none, light, medium, silly")
	renderChunk = 2048
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("groovewav: ")
	flag.Parse()

	if len(flag.Args()) == 0 {
		log.Fatal("missing module filename")
	}
	if *flagOut == "" {
		log.Fatal("-wav is required")
	}

	data, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		log.Fatal(err)
	}

	d := deck.New(*flagHz)
	if !d.Load(data) {
		log.Fatalf("%s: unrecognized module format", flag.Arg(0))
	}
	d.SetMasterGain(*flagBoost)
	d.SetPosition(*flagStart, 0)
	d.Start()

	reverb, err := config.ReverbFromFlag(*flagReverb, *flagHz)
	if err != nil {
		log.Fatal(err)
	}

	outF, err := os.Create(*flagOut)
	if err != nil {
		log.Fatal(err)
	}
	defer outF.Close()

	writer, err := wav.NewWriter(outF, *flagHz)
	if err != nil {
		log.Fatal(err)
	}
	defer writer.Finish()

	left := make([]float64, renderChunk)
	right := make([]float64, renderChunk)
	scratch := make([]int16, renderChunk*2)
	frameL := make([]int16, renderChunk)
	frameR := make([]int16, renderChunk)

	for d.IsPlaying() {
		n := d.RenderStereo(left, right)
		if n == 0 {
			break
		}
		interleave(scratch[:n*2], left[:n], right[:n])
		reverb.InputSamples(scratch[:n*2])
		got := reverb.GetAudio(scratch[:n*2])
		deinterleave(scratch[:got], frameL, frameR)
		if err := writer.WriteFrame([][]int16{frameL[:got/2], frameR[:got/2]}); err != nil {
			log.Fatal(err)
		}
	}

	// Drain whatever the reverb tail still holds.
	for {
		got := reverb.GetAudio(scratch)
		if got == 0 {
			break
		}
		deinterleave(scratch[:got], frameL, frameR)
		if err := writer.WriteFrame([][]int16{frameL[:got/2], frameR[:got/2]}); err != nil {
			log.Fatal(err)
		}
	}
}

func interleave(out []int16, left, right []float64) {
	for i := range left {
		out[2*i] = toInt16(left[i])
		out[2*i+1] = toInt16(right[i])
	}
}

func deinterleave(in []int16, left, right []int16) {
	for i := 0; i*2+1 < len(in); i++ {
		left[i] = in[2*i]
		right[i] = in[2*i+1]
	}
}

func toInt16(s float64) int16 {
	v := s * 32767
	if v > 32767 {
		v = 32767
	}
	if v < -32768 {
		v = -32768
	}
	return int16(math.Round(v))
}
