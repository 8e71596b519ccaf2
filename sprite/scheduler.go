package sprite

import (
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// State of a FrameScheduler.
type State int32

const (
	StateUnstarted State = iota
	StateLoading
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateLoading:
		return "loading"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Options tune a FrameScheduler. The zero value is usable.
type Options struct {
	Logger *zerolog.Logger

	// OnFrame is called on the host goroutine after a frame's changes have
	// been drawn.
	OnFrame func(index int)

	// OnLoadError is called if the spritesheet fails to load. Playback
	// never starts in that case.
	OnLoadError func(err error)
}

// FrameScheduler replays a FrameList onto a Surface in step with a Host,
// looping until stopped.
type FrameScheduler struct {
	surface Surface
	host    Host
	frames  FrameList
	opts    Options
	log     zerolog.Logger

	// Owned by the host goroutine once running.
	image    image.Image
	ctx      DrawContext
	epoch    time.Duration
	epochSet bool
	cursor   int

	stopped atomic.Bool
	state   atomic.Int32
	loops   atomic.Int64

	errMu   sync.Mutex
	loadErr error
}

// NewFrameScheduler sizes surface from the first change of frames, then
// starts loading the spritesheet at locator. Playback begins once loading
// completes.
func NewFrameScheduler(surface Surface, loader Loader, host Host, locator string,
	frames FrameList, opts Options) (*FrameScheduler, error) {

	if err := frames.Validate(); err != nil {
		return nil, err
	}

	s := new(FrameScheduler)
	s.surface = surface
	s.host = host
	s.frames = frames
	s.opts = opts
	if opts.Logger != nil {
		s.log = opts.Logger.With().Str("component", "scheduler").Logger()
	} else {
		s.log = zerolog.Nop()
	}

	width, height := frames.SurfaceSize()
	s.surface.SetSize(width, height)

	s.state.Store(int32(StateLoading))
	s.log.Debug().
		Str("spritesheet", locator).
		Int("frames", len(frames)).
		Int("width", width).
		Int("height", height).
		Dur("duration", frames.Duration()).
		Msg("loading spritesheet")
	loader.Load(locator, s.handleLoad)

	return s, nil
}

func (s *FrameScheduler) handleLoad(img image.Image, err error) {
	if err != nil {
		s.errMu.Lock()
		s.loadErr = err
		s.errMu.Unlock()

		s.log.Error().Err(err).Msg("spritesheet failed to load")
		if s.opts.OnLoadError != nil {
			s.opts.OnLoadError(err)
		}
		return
	}

	if s.stopped.Load() {
		s.log.Debug().Msg("stopped before spritesheet loaded")
		return
	}

	s.start(img)
}

func (s *FrameScheduler) start(img image.Image) {
	if !s.state.CompareAndSwap(int32(StateLoading), int32(StateRunning)) {
		return
	}

	s.image = img
	s.ctx = s.surface.Context()
	s.log.Info().Msg("playback started")
	s.host.RequestFrame(s.tick)
}

func (s *FrameScheduler) tick(now time.Duration) {
	if !s.epochSet {
		s.epoch = now
		s.epochSet = true
	}
	if s.stopped.Load() {
		return
	}

	elapsed := now - s.epoch
	base := s.frames[0].Offset()
	for s.cursor < len(s.frames) && elapsed > s.frames[s.cursor].Offset()-base {
		for _, op := range s.frames[s.cursor].Changes {
			s.ctx.CopyRect(s.image, op.SrcX1, op.SrcY1, op.Width(), op.Height(), op.DestX, op.DestY)
		}
		if s.opts.OnFrame != nil {
			s.opts.OnFrame(s.cursor)
		}
		s.cursor++
	}

	if s.cursor == len(s.frames) {
		// Re-anchor on the next tick rather than carrying the overshoot.
		s.epochSet = false
		s.cursor = 0
		n := s.loops.Add(1)
		s.log.Trace().Int64("loop", n).Dur("elapsed", elapsed).Msg("loop complete")
	}

	if !s.stopped.Load() {
		s.host.RequestFrame(s.tick)
	}
}

// Stop ends playback. The next tick exits without drawing. Calling Stop
// again, or before the spritesheet has loaded, is fine.
func (s *FrameScheduler) Stop() {
	if s.stopped.Swap(true) {
		return
	}
	s.state.Store(int32(StateStopped))
	s.log.Info().Msg("playback stopped")
}

// State reports where the scheduler is in its lifecycle.
func (s *FrameScheduler) State() State {
	return State(s.state.Load())
}

// Loops is the number of completed passes over the frame list.
func (s *FrameScheduler) Loops() int64 {
	return s.loops.Load()
}

// Err returns the spritesheet load error, if any.
func (s *FrameScheduler) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.loadErr
}
