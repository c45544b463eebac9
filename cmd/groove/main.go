// Command groove is an interactive tracker-module player: portaudio output,
// a live status line, and keyboard bindings onto regroove.Controller's
// loop/queue/mute-solo operations. Grounded on cmd/modplay's AudioPlayer,
// generalized from a single MOD player to deck.Deck's three-format facade
// and from ad hoc key handling in main to regroove.Controller calls.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"atomicgo.dev/keyboard"
	"atomicgo.dev/keyboard/keys"
	"github.com/fatih/color"
	"github.com/gordonklaus/portaudio"

	"github.com/groovehaus/groovecore/cmd/internal/config"
	"github.com/groovehaus/groovecore/deck"
	"github.com/groovehaus/groovecore/internal/comb"
	"github.com/groovehaus/groovecore/regroove"
)

var (
	flagHz     = flag.Int("hz", 44100, "output sample rate")
	flagBoost  = flag.Float64("boost", 1, "volume boost/attenuation applied after mixing")
	flagStart  = flag.Int("start", 0, "starting order, clamped to the song's length")
	flagReverb = flag.String("reverb", "none", "reverb preset: none, light, medium, silly")
	flagNoUI   = flag.Bool("no-ui", false, "suppress the live status line")
)

const audioBufferFrames = 756 / 2

var (
	blue   = color.New(color.FgHiBlue).SprintfFunc()
	green  = color.New(color.FgGreen).SprintfFunc()
	red    = color.New(color.FgRed).SprintfFunc()
	yellow = color.New(color.FgYellow).SprintfFunc()
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("groove: ")
	flag.Parse()

	if len(flag.Args()) == 0 {
		log.Fatal("missing module filename")
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

	reverb, err := config.ReverbFromFlag(*flagReverb, *flagHz)
	if err != nil {
		log.Fatal(err)
	}

	dj := newDJSession(d, reverb, *flagHz, *flagNoUI)
	if err := dj.Run(); err != nil {
		log.Fatal(err)
	}
}

// djSession owns portaudio I/O, keyboard input, and a regroove.Controller
// bound to the loaded Deck.
type djSession struct {
	deck       *deck.Deck
	controller *regroove.Controller
	reverb     comb.Reverber
	sampleRate int
	noUI       bool

	selectedChannel int
	soloChannel     int // -1 if no channel is soloed

	left, right   []float64
	scratchStereo []int16

	ctx      context.Context
	cancelFn context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
	keyDone  chan struct{}
	stream   *portaudio.Stream
}

func newDJSession(d *deck.Deck, reverb comb.Reverber, sampleRate int, noUI bool) *djSession {
	ctx, cancel := context.WithCancel(context.Background())
	dj := &djSession{
		deck:          d,
		reverb:        reverb,
		sampleRate:    sampleRate,
		noUI:          noUI,
		soloChannel:   -1,
		left:          make([]float64, audioBufferFrames),
		right:         make([]float64, audioBufferFrames),
		scratchStereo: make([]int16, audioBufferFrames*2),
		ctx:           ctx,
		cancelFn:      cancel,
		keyDone:       make(chan struct{}),
	}
	dj.controller = regroove.New(d.Sequencer(), d, regroove.Callbacks{})
	return dj
}

func (dj *djSession) Run() error {
	if err := portaudio.Initialize(); err != nil {
		return err
	}
	defer portaudio.Terminate()

	stream, err := portaudio.OpenDefaultStream(0, 2, float64(dj.sampleRate), audioBufferFrames, dj.streamCallback)
	if err != nil {
		return err
	}
	dj.stream = stream
	if err := stream.Start(); err != nil {
		stream.Close()
		return err
	}
	defer stream.Close()
	defer stream.Stop()

	dj.setupSignalHandlers()
	dj.setupKeyboardHandlers()
	dj.deck.Start()

	lastOrder, lastRow := -1, -1
loop:
	for {
		select {
		case <-dj.ctx.Done():
			break loop
		default:
		}

		order, _, row := dj.deck.Position()
		if !dj.noUI && (order != lastOrder || row != lastRow) {
			dj.renderStatus(order, row)
			lastOrder, lastRow = order, row
		}
	}

	// Wait for the keyboard listener to fully exit and restore terminal
	// state, but don't hang forever if it's blocked on a pending read.
	select {
	case <-dj.keyDone:
	case <-time.After(500 * time.Millisecond):
	}

	dj.wg.Wait()
	return nil
}

// streamCallback renders one device-requested block: deck audio (float -1..1
// stereo) converted to interleaved int16, pushed through the reverb send,
// and drained back into out.
func (dj *djSession) streamCallback(out []int16) {
	n := len(out) / 2
	if n > len(dj.left) {
		n = len(dj.left)
	}
	left, right := dj.left[:n], dj.right[:n]

	if dj.deck.IsPlaying() {
		dj.deck.RenderStereo(left, right)
	} else {
		for i := range left {
			left[i], right[i] = 0, 0
		}
	}

	interleave(dj.scratchStereo[:n*2], left, right)
	dj.reverb.InputSamples(dj.scratchStereo[:n*2])
	got := dj.reverb.GetAudio(out)
	for i := got; i < len(out); i++ {
		out[i] = 0
	}

	if !dj.deck.IsPlaying() && got == 0 {
		dj.Stop()
	}
}

func interleave(out []int16, left, right []float64) {
	for i := range left {
		out[2*i] = toInt16(left[i])
		out[2*i+1] = toInt16(right[i])
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

func (dj *djSession) setupSignalHandlers() {
	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, syscall.SIGINT)
	dj.wg.Add(1)
	go func() {
		defer dj.wg.Done()
		select {
		case <-dj.ctx.Done():
		case <-sigch:
			dj.Stop()
		}
	}()
}

func (dj *djSession) setupKeyboardHandlers() {
	dj.wg.Add(1)
	go func() {
		defer dj.wg.Done()
		keyboard.Listen(func(key keys.Key) (bool, error) {
			if key.Code == keys.CtrlC || key.Code == keys.Escape {
				dj.Stop()
				return true, nil
			}
			dj.handleKeyPress(key)
			return false, nil
		})
		close(dj.keyDone)
	}()
}

func (dj *djSession) handleKeyPress(key keys.Key) {
	numCh := dj.deck.NumChannels()

	switch key.Code {
	case keys.Left:
		if dj.selectedChannel > 0 {
			dj.selectedChannel--
		}
	case keys.Right:
		if dj.selectedChannel < numCh-1 {
			dj.selectedChannel++
		}
	case keys.Space:
		if dj.deck.IsPlaying() {
			dj.deck.Stop()
		} else {
			dj.deck.Start()
		}
	case keys.RuneKey:
		if len(key.Runes) == 0 {
			return
		}
		switch key.Runes[0] {
		case 'q':
			dj.controller.Queue(regroove.Command{Kind: regroove.CmdToggleChannelMute, Param1: dj.selectedChannel})
		case 's':
			dj.controller.Queue(regroove.Command{Kind: regroove.CmdSetChannelSolo, Param1: dj.selectedChannel})
			if dj.soloChannel == dj.selectedChannel {
				dj.soloChannel = -1
			} else {
				dj.soloChannel = dj.selectedChannel
			}
		case 'n':
			dj.controller.Queue(regroove.Command{Kind: regroove.CmdNextOrder})
		case 'p':
			dj.controller.Queue(regroove.Command{Kind: regroove.CmdPrevOrder})
		case 'l':
			if dj.controller.LoopState() == regroove.LoopOff {
				order, _, row := dj.deck.Position()
				dj.controller.SetLoopRangeRows(order, row, order, row+16)
				dj.controller.ArmLoop()
			} else {
				dj.controller.DisarmLoop()
			}
		}
	}
}

func (dj *djSession) renderStatus(order, row int) {
	loop := "off"
	switch dj.controller.LoopState() {
	case regroove.LoopArmed:
		loop = yellow("armed")
	case regroove.LoopActive:
		loop = green("active")
	}

	fmt.Printf("\r%s %03d %s %03d %s %d %s %s   ",
		blue("order"), order, blue("row"), row, blue("bpm"), dj.deck.BPM(), blue("loop"), loop)

	for ch := 0; ch < dj.deck.NumChannels(); ch++ {
		label := fmt.Sprintf("%d", ch+1)
		if ch == dj.selectedChannel {
			label = "[" + label + "]"
		}
		if dj.deck.ChannelMute(ch) {
			fmt.Print(red(label), " ")
		} else if ch == dj.soloChannel {
			fmt.Print(green(label), " ")
		} else {
			fmt.Print(label, " ")
		}
	}
}

func (dj *djSession) Stop() {
	dj.stopOnce.Do(func() {
		dj.deck.Stop()
		dj.cancelFn()
		if dj.stream != nil {
			dj.stream.Stop()
			dj.stream.Close()
		}
	})
}
