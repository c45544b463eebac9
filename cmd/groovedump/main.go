// Command groovedump prints a module's parsed structure (orders, pattern
// count, sample/instrument table) for whichever of MOD, MMD, or AHX the
// file sniffs as. Grounded on cmd/moddump's per-format dump, generalized
// from an extension switch to the same fixed-order signature sniff
// deck.Load uses.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/groovehaus/groovecore/ahx"
	"github.com/groovehaus/groovecore/mmd"
	"github.com/groovehaus/groovecore/mod"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("groovedump: ")

	if len(os.Args) <= 1 {
		log.Fatal("missing module filename")
	}

	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		log.Fatal(err)
	}

	switch {
	case dumpMOD(data):
	case dumpMMD(data):
	case dumpAHX(data):
	default:
		log.Fatalf("%s: unrecognized module format", os.Args[1])
	}
}

func dumpMOD(data []byte) bool {
	song, err := mod.LoadFromBytes(data)
	if err != nil {
		return false
	}
	fmt.Printf("format:   MOD\n")
	fmt.Printf("title:    %s\n", song.Title)
	fmt.Printf("channels: %d\n", song.Channels)
	fmt.Printf("orders:   %d\n", len(song.Orders))
	fmt.Printf("patterns: %d\n", len(song.Patterns))
	fmt.Println("samples:")
	for i, s := range song.Samples {
		if s.Length == 0 {
			continue
		}
		fmt.Printf("  %2d %-22s len=%-6d loop=%d/%d vol=%d\n",
			i, s.Name, s.Length, s.LoopStart, s.LoopLen, s.Volume)
	}
	return true
}

func dumpMMD(data []byte) bool {
	song, err := mmd.LoadFromBytes(data)
	if err != nil {
		return false
	}
	fmt.Printf("format:   MMD\n")
	fmt.Printf("channels: %d\n", song.Tracks)
	fmt.Printf("orders:   %d\n", len(song.Orders))
	fmt.Printf("blocks:   %d\n", len(song.Blocks))
	fmt.Printf("bpm/spd:  %d/%d\n", song.BPM, song.Speed)
	fmt.Println("instruments:")
	for i, instr := range song.Instruments {
		if instr.Length == 0 {
			continue
		}
		fmt.Printf("  %2d len=%-6d loop=%d/%d vol=%d\n",
			i, instr.Length, instr.LoopStart, instr.LoopLen, instr.Volume)
	}
	return true
}

func dumpAHX(data []byte) bool {
	song, err := ahx.LoadFromBytes(data)
	if err != nil {
		return false
	}
	fmt.Printf("format:       AHX\n")
	fmt.Printf("title:        %s\n", song.Name)
	fmt.Printf("revision:     %d\n", song.Revision)
	fmt.Printf("positions:    %d\n", len(song.Positions))
	fmt.Printf("tracks:       %d\n", len(song.Tracks))
	fmt.Printf("track length: %d\n", song.TrackLength)
	fmt.Println("instruments:")
	for i, instr := range song.Instruments {
		if i == 0 {
			continue // 1-indexed, Instruments[0] is unused
		}
		fmt.Printf("  %2d %s\n", i, instr.Name)
	}
	return true
}
