// Package regroove implements the Regroove Controller: a non-owning wrapper
// around a *sequencer.Sequencer that layers row-precise looping, a bounded
// command queue, pattern-lock mode, and channel mute/solo on top of
// playback driven entirely by the sequencer.
//
// Grounded on cmd/modplay/play.go's AudioPlayer: that type already combined
// keyboard-driven channel mute/solo toggling and order navigation ad hoc
// inside a main package (handleKeyPress's 'q'/'s' cases and the Left/Right
// channel selection). Controller promotes that interaction model to a
// reusable library type decoupled from any particular UI or audio backend.
package regroove

import "github.com/groovehaus/groovecore/sequencer"

// LoopState is the Regroove loop state machine's current phase.
type LoopState int

const (
	LoopOff LoopState = iota
	LoopArmed
	LoopActive
)

func (s LoopState) String() string {
	switch s {
	case LoopArmed:
		return "armed"
	case LoopActive:
		return "active"
	default:
		return "off"
	}
}

// PatternMode selects how the Controller reacts to pattern (order)
// boundaries.
type PatternMode int

const (
	PatternOff PatternMode = iota
	PatternSingle
	// PatternChain is reserved; currently behaves identically to PatternOff.
	PatternChain
)

// CommandKind enumerates the Command Queue's command shapes.
type CommandKind int

const (
	CmdJumpToOrder CommandKind = iota
	CmdNextOrder
	CmdPrevOrder
	CmdRetriggerPattern
	CmdToggleChannelMute
	CmdSetChannelSolo
)

// Command is one queued or immediately-executed action.
type Command struct {
	Kind   CommandKind
	Param1 int
	Param2 int
}

// position is an (order, row) pair compared lexicographically by order then
// row, matching the row-precise loop bounds in the data model.
type position struct {
	order, row int
}

func (p position) ge(other position) bool {
	return p.order > other.order || (p.order == other.order && p.row >= other.row)
}

// ChannelMuter is the minimal surface the Controller needs to apply
// TOGGLE_CHANNEL_MUTE/SET_CHANNEL_SOLO commands. *deck.Deck satisfies it.
type ChannelMuter interface {
	SetChannelMute(ch int, mute bool)
}

// Callbacks mirror the four Sequencer callbacks plus the two
// Regroove-specific extensions. OnTick, OnRow and OnPatternChange are
// forwarded to the Controller's own user after its loop/queue/pattern-mode
// logic runs; OnSongEnd is never called by the Controller.
type Callbacks struct {
	OnTick          func(tick int)
	OnRow           func(order, pattern, row int)
	OnPatternChange func(order, pattern int)
	OnSongEnd       func() bool

	// OnLoopTrigger fires once when the loop transitions ARMED -> ACTIVE.
	OnLoopTrigger func()
	// OnCommandExecuted fires once per command actually applied, whether
	// executed immediately or drained from the queue at a boundary.
	OnCommandExecuted func(Command)
}

const queueCapacity = 16

// Controller wraps a Sequencer without owning it: it never advances time
// itself, only requests position changes the Sequencer applies at its own
// next row boundary.
type Controller struct {
	seq   *sequencer.Sequencer
	muter ChannelMuter
	cb    Callbacks

	loopState       LoopState
	loopStart       position
	loopEnd         position
	loopJumpPending bool // guards against re-issuing JumpTo every row once ACTIVE and past end

	patternMode PatternMode
	lockedOrder int

	executeOnPatternBoundary bool
	queue                    []Command

	channelMute [4]bool
	channelSolo [4]bool
	anySolo     bool
}

// New wraps seq, which must already be constructed and driven by its owning
// player; muter applies TOGGLE_CHANNEL_MUTE/SET_CHANNEL_SOLO commands (pass
// the owning deck.Deck). Installs itself as seq's observer, so it must not
// be called twice for the same Sequencer.
func New(seq *sequencer.Sequencer, muter ChannelMuter, cb Callbacks) *Controller {
	c := &Controller{
		seq:                      seq,
		muter:                    muter,
		cb:                       cb,
		executeOnPatternBoundary: true,
	}
	seq.SetObserver(sequencer.Callbacks{
		OnTick:          c.onTick,
		OnRow:           c.onRow,
		OnPatternChange: c.onPatternChange,
	})
	return c
}

// SetExecuteOnPatternBoundary selects the Command Queue's drain policy: true
// drains the queue in FIFO order inside on_pattern_change; false executes
// Queue immediately inside Queue itself instead of holding the command.
func (c *Controller) SetExecuteOnPatternBoundary(enabled bool) {
	c.executeOnPatternBoundary = enabled
}

// ArmLoop begins waiting for the play head to cross the loop's start point.
func (c *Controller) ArmLoop() {
	c.loopState = LoopArmed
	c.loopJumpPending = false
}

// DisarmLoop returns to normal playback immediately.
func (c *Controller) DisarmLoop() {
	c.loopState = LoopOff
	c.loopJumpPending = false
}

// LoopState reports the current loop phase.
func (c *Controller) LoopState() LoopState { return c.loopState }

// SetLoopRangeRows sets the row-precise loop bounds; does not itself arm the
// loop.
func (c *Controller) SetLoopRangeRows(startOrder, startRow, endOrder, endRow int) {
	c.loopStart = position{startOrder, startRow}
	c.loopEnd = position{endOrder, endRow}
}

// SetPatternMode selects pattern-lock behavior. Entering PatternSingle locks
// to the Sequencer's current order.
func (c *Controller) SetPatternMode(mode PatternMode) {
	c.patternMode = mode
	if mode == PatternSingle {
		order, _, _ := c.seq.Position()
		c.lockedOrder = order
	}
}

// Queue submits a command. With SetExecuteOnPatternBoundary(true) (the
// default) it is appended to the bounded FIFO and drained at the next
// pattern boundary; the oldest pending command is dropped if the queue is
// already at capacity. Otherwise it executes immediately, before Queue
// returns.
func (c *Controller) Queue(cmd Command) {
	if !c.executeOnPatternBoundary {
		c.execute(cmd)
		return
	}
	if len(c.queue) >= queueCapacity {
		c.queue = c.queue[1:]
	}
	c.queue = append(c.queue, cmd)
}

func (c *Controller) execute(cmd Command) {
	switch cmd.Kind {
	case CmdJumpToOrder:
		c.seq.JumpTo(cmd.Param1, cmd.Param2)
	case CmdNextOrder:
		order, _, _ := c.seq.Position()
		c.seq.JumpTo(order+1, 0)
	case CmdPrevOrder:
		order, _, _ := c.seq.Position()
		if order > 0 {
			order--
		}
		c.seq.JumpTo(order, 0)
	case CmdRetriggerPattern:
		order, _, _ := c.seq.Position()
		c.seq.JumpTo(order, 0)
	case CmdToggleChannelMute:
		ch := cmd.Param1
		if ch >= 0 && ch < len(c.channelMute) {
			c.channelMute[ch] = !c.channelMute[ch]
			c.applyMute(ch)
		}
	case CmdSetChannelSolo:
		ch := cmd.Param1
		if ch >= 0 && ch < len(c.channelSolo) {
			c.toggleSolo(ch)
		}
	}
	if c.cb.OnCommandExecuted != nil {
		c.cb.OnCommandExecuted(cmd)
	}
}

func (c *Controller) toggleSolo(ch int) {
	if c.channelSolo[ch] {
		c.channelSolo[ch] = false
	} else {
		for i := range c.channelSolo {
			c.channelSolo[i] = false
		}
		c.channelSolo[ch] = true
	}
	c.anySolo = false
	for _, s := range c.channelSolo {
		if s {
			c.anySolo = true
			break
		}
	}
	for i := range c.channelMute {
		c.applyMute(i)
	}
}

// applyMute recomputes the effective mute for ch: muted outright, or muted
// because a different channel is soloed.
func (c *Controller) applyMute(ch int) {
	effective := c.channelMute[ch] || (c.anySolo && !c.channelSolo[ch])
	c.muter.SetChannelMute(ch, effective)
}

func (c *Controller) onTick(tick int) {
	if c.cb.OnTick != nil {
		c.cb.OnTick(tick)
	}
}

func (c *Controller) onRow(order, pattern, row int) {
	cur := position{order, row}
	switch c.loopState {
	case LoopArmed:
		if cur.ge(c.loopStart) {
			c.loopState = LoopActive
			c.loopJumpPending = false
			if c.cb.OnLoopTrigger != nil {
				c.cb.OnLoopTrigger()
			}
		}
	case LoopActive:
		if !c.loopJumpPending && cur.ge(c.loopEnd) {
			c.loopJumpPending = true
			c.seq.JumpTo(c.loopStart.order, c.loopStart.row)
		}
	}

	if c.cb.OnRow != nil {
		c.cb.OnRow(order, pattern, row)
	}
}

func (c *Controller) onPatternChange(order, pattern int) {
	if c.loopState == LoopActive {
		c.loopJumpPending = false
	}

	if c.patternMode == PatternSingle && order != c.lockedOrder {
		c.seq.SetPosition(c.lockedOrder, 0)
		return // the corrective SetPosition above fires its own on_pattern_change
	}

	if c.executeOnPatternBoundary {
		pending := c.queue
		c.queue = nil
		for _, cmd := range pending {
			c.execute(cmd)
		}
	}

	if c.cb.OnPatternChange != nil {
		c.cb.OnPatternChange(order, pattern)
	}
}
