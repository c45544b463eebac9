package regroove

import (
	"testing"

	"github.com/groovehaus/groovecore/sequencer"
)

// fakeMuter records SetChannelMute calls for assertions.
type fakeMuter struct {
	mute [4]bool
}

func (m *fakeMuter) SetChannelMute(ch int, mute bool) { m.mute[ch] = mute }

// newDrivenSequencer builds a Sequencer with speed 1 (one row per tick) over
// a 6-order, 16-row-per-order song, so tests can advance row-by-row with a
// single Process(samplesPerTick, rate) call per row. Each call to
// Process(samplesPerRow(seq), 44100) crosses exactly one tick boundary.
//
// A row's OnRow fires at the START of the stepTick that advances past it,
// which is one Process call after Position() first reports that row (the
// sequencer advances row before the following call's triggerRow announces
// it): tests that assert on Controller callback timing account for this
// one-call lag explicitly rather than comparing directly against Position().
func newDrivenSequencer() *sequencer.Sequencer {
	seq := sequencer.New(sequencer.Callbacks{})
	seq.SetMode(sequencer.ModeTick)
	seq.SetSong([]int{0, 1, 2, 3, 4, 5}, 16)
	seq.SetSpeed(1)
	seq.SetBPM(125)
	seq.SetLooping(true)
	seq.Start()
	return seq
}

// samplesPerRow returns exactly one tick's worth of samples at the
// sequencer's BPM (tick-mode: 2.5*rate/BPM per tick, speed 1 tick per row),
// so each call advances exactly one row: 2.5*44100/125 = 882.
func samplesPerRow(seq *sequencer.Sequencer) int {
	return int(2.5 * 44100 / float64(seq.BPM()))
}

func TestController_LoopArmedActivatesAtStartAndWrapsAtEnd(t *testing.T) {
	seq := newDrivenSequencer()
	seq.SetPosition(2, 0)

	var triggerCount int
	c := New(seq, &fakeMuter{}, Callbacks{
		OnLoopTrigger: func() { triggerCount++ },
	})
	c.SetLoopRangeRows(2, 8, 2, 15)
	c.ArmLoop()

	spr := samplesPerRow(seq)
	// OnRow(row=8) fires on the 9th Process call (see newDrivenSequencer's
	// one-call lag note); the same stepTick then advances the play head, so
	// Position() reports row 9 once that call returns.
	for i := 0; i < 9; i++ {
		seq.Process(spr, 44100)
	}
	if c.LoopState() != LoopActive {
		t.Fatalf("LoopState() = %v, want LoopActive after crossing start", c.LoopState())
	}
	if triggerCount != 1 {
		t.Fatalf("OnLoopTrigger fired %d times, want 1", triggerCount)
	}

	// OnRow(row=15) fires on the 16th call overall (7 more from here), which
	// is where the Controller issues the jump back to (2,8) mid-call.
	for i := 0; i < 7; i++ {
		seq.Process(spr, 44100)
	}
	order, _, row := seq.Position()
	if order != 2 || row != 8 {
		t.Fatalf("expected loop wrap back to (2,8), got (%d,%d)", order, row)
	}
}

func TestController_DisarmStopsWrapping(t *testing.T) {
	seq := newDrivenSequencer()
	seq.SetPosition(2, 0)

	c := New(seq, &fakeMuter{}, Callbacks{})
	c.SetLoopRangeRows(2, 8, 2, 10)
	c.ArmLoop()

	spr := samplesPerRow(seq)
	for i := 0; i < 9; i++ {
		seq.Process(spr, 44100)
	}
	if c.LoopState() != LoopActive {
		t.Fatal("expected loop to activate")
	}
	c.DisarmLoop()
	if c.LoopState() != LoopOff {
		t.Fatalf("LoopState() = %v after Disarm, want LoopOff", c.LoopState())
	}

	for i := 0; i < 10; i++ {
		seq.Process(spr, 44100)
	}
	order, _, row := seq.Position()
	if order == 2 && row <= 10 {
		t.Fatalf("expected playback to pass row 10 after disarm, stuck at (%d,%d)", order, row)
	}
}

func TestController_QueueBoundaryDiscipline(t *testing.T) {
	seq := newDrivenSequencer()
	seq.SetPosition(3, 4)

	var executedCount int
	var executedCmd Command
	muter := &fakeMuter{}
	c := New(seq, muter, Callbacks{
		OnCommandExecuted: func(cmd Command) {
			executedCount++
			executedCmd = cmd
		},
	})
	c.SetExecuteOnPatternBoundary(true)
	c.Queue(Command{Kind: CmdToggleChannelMute, Param1: 1})

	spr := samplesPerRow(seq)
	// Order 3 naturally runs rows 4..15 before advancing to order 4; the
	// queued command must not fire until that pattern boundary is crossed.
	// (11 calls carries the sequencer from row 4 up to, but not past, the
	// boundary — see newDrivenSequencer's one-call lag note.)
	for i := 0; i < 11; i++ {
		seq.Process(spr, 44100)
		if executedCount != 0 {
			t.Fatalf("command executed early on call %d, want it deferred to the pattern boundary", i+1)
		}
	}
	seq.Process(spr, 44100) // crosses into order 4, draining the queue
	order, _, row := seq.Position()
	if order != 4 || row != 0 {
		t.Fatalf("expected order 4 row 0 after the boundary, got (%d,%d)", order, row)
	}
	if executedCount != 1 {
		t.Fatalf("OnCommandExecuted fired %d times, want exactly 1", executedCount)
	}
	if executedCmd.Kind != CmdToggleChannelMute {
		t.Fatalf("executed command kind = %v, want CmdToggleChannelMute", executedCmd.Kind)
	}
	if !muter.mute[1] {
		t.Fatal("expected channel 1 to be muted once the queued command drained")
	}
}

func TestController_QueueImmediateModeExecutesOnCall(t *testing.T) {
	seq := newDrivenSequencer()
	seq.SetPosition(0, 0)

	executed := false
	c := New(seq, &fakeMuter{}, Callbacks{
		OnCommandExecuted: func(Command) { executed = true },
	})
	c.SetExecuteOnPatternBoundary(false)
	c.Queue(Command{Kind: CmdJumpToOrder, Param1: 2, Param2: 3})

	if !executed {
		t.Fatal("expected immediate execution when execute-on-boundary is disabled")
	}
}

func TestController_PatternModeSingleLocksOrder(t *testing.T) {
	seq := newDrivenSequencer()
	seq.SetPosition(1, 0)

	c := New(seq, &fakeMuter{}, Callbacks{})
	c.SetPatternMode(PatternSingle)

	spr := samplesPerRow(seq)
	for i := 0; i < 20; i++ {
		seq.Process(spr, 44100)
	}
	order, _, _ := seq.Position()
	if order != 1 {
		t.Fatalf("PatternSingle allowed playback to leave the locked order, now at %d", order)
	}
}

func TestController_ToggleChannelMute(t *testing.T) {
	seq := newDrivenSequencer()
	muter := &fakeMuter{}
	c := New(seq, muter, Callbacks{})
	c.SetExecuteOnPatternBoundary(false)

	c.Queue(Command{Kind: CmdToggleChannelMute, Param1: 1})
	if !muter.mute[1] {
		t.Fatal("expected channel 1 to be muted after toggle")
	}
	c.Queue(Command{Kind: CmdToggleChannelMute, Param1: 1})
	if muter.mute[1] {
		t.Fatal("expected channel 1 to be unmuted after second toggle")
	}
}

func TestController_SoloMutesOtherChannels(t *testing.T) {
	seq := newDrivenSequencer()
	muter := &fakeMuter{}
	c := New(seq, muter, Callbacks{})
	c.SetExecuteOnPatternBoundary(false)

	c.Queue(Command{Kind: CmdSetChannelSolo, Param1: 2})
	for ch := 0; ch < 4; ch++ {
		want := ch != 2
		if muter.mute[ch] != want {
			t.Errorf("channel %d mute = %v, want %v (soloing channel 2)", ch, muter.mute[ch], want)
		}
	}

	c.Queue(Command{Kind: CmdSetChannelSolo, Param1: 2})
	for ch := 0; ch < 4; ch++ {
		if muter.mute[ch] {
			t.Errorf("channel %d still muted after solo was cleared", ch)
		}
	}
}
