// Package engine implements the comparison engine shared by every trainer.
//
// An [Engine] plays one decoded source buffer through several named parallel
// chains at once, each chain ending in its own gain stage, and lets the
// listener switch which chain is audible without interrupting playback. Chain
// parameters can be retuned live. Loading is asynchronous and superseded loads
// never touch state.
//
// The engine is generic over the chain parameter type so that each trainer
// keeps type-safe parameters: an EQ trainer uses [types.FilterSettings], a
// compression trainer [types.CompressionSettings] and so on.
//
// This package lives under internal/ because it encapsulates
// application-private playback logic.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/earmatch/internal/observe"
	"github.com/MrWong99/earmatch/pkg/audio"
	"github.com/MrWong99/earmatch/pkg/audio/mixer"
)

// Errors returned by engine operations.
var (
	// ErrUnknownChain is returned when an operation names a chain the engine
	// was not built with.
	ErrUnknownChain = errors.New("engine: unknown chain")

	// ErrClosed is returned by Load after Close.
	ErrClosed = errors.New("engine: closed")
)

// Loader resolves a URL into a decoded buffer at the output sample rate.
// [asset.Loader] is the production implementation.
type Loader interface {
	Load(ctx context.Context, url string) (*beep.Buffer, error)
}

// Chain declares one parallel processing path.
type Chain[P any] struct {
	// Name identifies the chain in SetParameters and Monitor.
	Name string

	// Params is the initial parameter set.
	Params P

	// Build creates the live node for a new graph.
	Build audio.NodeFactory[P]
}

// State is a snapshot of the engine's observable state.
type State struct {
	URL     string
	Status  audio.Status
	Playing bool
	Looping bool
	Monitor string

	// Err is the cause of the last failed load, for diagnostics only.
	Err error
}

// graph is one built playback graph: a bus and the typed nodes feeding it,
// indexed like the engine's chains.
type graph[P any] struct {
	bus   *mixer.Bus
	nodes []audio.Node[P]
}

// Engine is the comparison engine. All exported methods are safe for
// concurrent use.
type Engine[P any] struct {
	out    audio.Output
	loader Loader
	opts   options

	mu      sync.Mutex
	chains  []Chain[P]
	index   map[string]int
	state   State
	buf     *beep.Buffer
	gen     uint64             // load generation; bumped by Load and Close
	cancel  context.CancelFunc // cancels the in-flight load
	settled chan struct{}      // closed when the current load settles
	graph   *graph[P]
	subs    map[chan State]struct{}
	closed  bool
}

// New builds an engine playing through out with the given chains. The first
// chain is monitored initially. New panics if chains is empty or contains a
// duplicate name, both being programming errors.
func New[P any](out audio.Output, loader Loader, chains []Chain[P], opts ...Option) *Engine[P] {
	if len(chains) == 0 {
		panic("engine: at least one chain is required")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	o.logger = o.logger.With("engine", o.name)

	e := &Engine[P]{
		out:     out,
		loader:  loader,
		opts:    o,
		chains:  append([]Chain[P](nil), chains...),
		index:   make(map[string]int, len(chains)),
		settled: closedChan(),
		subs:    make(map[chan State]struct{}),
	}
	for i, c := range chains {
		if _, dup := e.index[c.Name]; dup {
			panic(fmt.Sprintf("engine: duplicate chain %q", c.Name))
		}
		e.index[c.Name] = i
	}
	e.state = State{
		Status:  audio.StatusIdle,
		Looping: o.loop,
		Monitor: chains[0].Name,
	}
	return e
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// ─── Loading ──────────────────────────────────────────────────────────────────

// Load starts fetching and decoding url and returns immediately; status is
// loading on return. The load is cancelled when ctx ends, when Load is called
// again with another URL, or on Close.
//
// Loading the URL that is already ready, or already loading, is a no-op. A URL
// whose load failed is only retried by calling Load again. Switching to a new
// URL stops playback.
func (e *Engine[P]) Load(ctx context.Context, url string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if url == e.state.URL && (e.state.Status == audio.StatusReady || e.state.Status == audio.StatusLoading) {
		return nil
	}

	e.releaseLocked()
	e.supersedeLocked()

	loadCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.settled = make(chan struct{})
	e.buf = nil
	e.state.URL = url
	e.state.Status = audio.StatusLoading
	e.state.Err = nil
	e.publishLocked()

	go e.runLoad(loadCtx, e.gen, url, e.settled)
	return nil
}

// supersedeLocked invalidates the in-flight load, if any. Caller must hold
// e.mu.
func (e *Engine[P]) supersedeLocked() {
	e.gen++
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	if e.state.Status == audio.StatusLoading {
		close(e.settled)
	}
}

func (e *Engine[P]) runLoad(ctx context.Context, gen uint64, url string, settled chan struct{}) {
	start := time.Now()
	ctx, span := e.opts.tracer.Start(ctx, "asset.load",
		trace.WithAttributes(
			attribute.String("engine", e.opts.name),
			attribute.String("url", url),
		),
	)

	buf, err := e.fetch(ctx, url)
	outcome := classify(ctx, err)

	e.mu.Lock()
	current := gen == e.gen
	if !current {
		outcome = observe.OutcomeSuperseded
	} else {
		e.cancel = nil
		if err != nil {
			e.state.Status = audio.StatusError
			e.state.Err = err
		} else {
			e.buf = buf
			e.state.Status = audio.StatusReady
		}
		close(settled)
		e.publishLocked()
	}
	e.mu.Unlock()

	span.SetAttributes(attribute.String("outcome", outcome))
	observe.EndSpan(span, err)
	e.opts.metrics.RecordAssetLoad(context.WithoutCancel(ctx), e.opts.name, outcome, time.Since(start))

	log := observe.Logger(ctx, e.opts.logger)
	switch {
	case !current:
		log.Debug("load superseded", "url", url)
	case err != nil:
		log.Warn("load failed", "url", url, "outcome", outcome, "err", err)
	default:
		log.Info("asset ready", "url", url, "frames", buf.Len(), "duration", time.Since(start))
	}
}

func (e *Engine[P]) fetch(ctx context.Context, url string) (*beep.Buffer, error) {
	if err := e.out.Available(); err != nil {
		return nil, err
	}
	return e.loader.Load(ctx, url)
}

// classify maps a load error to a metrics outcome.
func classify(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return observe.OutcomeOK
	case errors.Is(err, audio.ErrCapabilityMissing):
		return observe.OutcomeCapability
	case errors.Is(err, audio.ErrDecodeFailure):
		return observe.OutcomeDecode
	case ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return observe.OutcomeCancelled
	default:
		return observe.OutcomeUnavailable
	}
}

// WaitReady blocks until the current load settles or ctx ends and returns the
// resulting status. It returns immediately when no load is in flight.
func (e *Engine[P]) WaitReady(ctx context.Context) (audio.Status, error) {
	for {
		e.mu.Lock()
		status, settled := e.state.Status, e.settled
		e.mu.Unlock()

		if status != audio.StatusLoading {
			return status, nil
		}
		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-settled:
		}
	}
}

// ─── Transport ────────────────────────────────────────────────────────────────

// Start builds a fresh graph and begins playback from the first frame. It is
// a no-op unless the asset is ready. Any existing graph is released first.
func (e *Engine[P]) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.startLocked()
}

func (e *Engine[P]) startLocked() {
	if e.closed || e.state.Status != audio.StatusReady {
		return
	}
	if err := e.out.Resume(); err != nil {
		e.opts.logger.Warn("resume output", "err", err)
	}
	e.releaseLocked()

	rate := e.out.SampleRate()
	var bus *mixer.Bus
	bus = mixer.NewBus(mixer.NewSource(e.buf, e.state.Looping), rate,
		mixer.WithTimeConstant(e.opts.tau),
		mixer.WithEndHandler(func() { go e.handleEnd(bus) }),
	)
	g := &graph[P]{bus: bus, nodes: make([]audio.Node[P], len(e.chains))}
	for i, c := range e.chains {
		g.nodes[i] = c.Build(float64(rate), c.Params)
		gain := 0.0
		if c.Name == e.state.Monitor {
			gain = 1
		}
		if err := bus.AddChain(c.Name, g.nodes[i], gain); err != nil {
			// Names are validated in New.
			panic(err)
		}
	}

	e.graph = g
	e.out.Attach(bus)
	e.state.Playing = true
	e.opts.metrics.RecordGraphBuilt(context.Background(), e.opts.name)
	e.opts.logger.Debug("graph started", "monitor", e.state.Monitor, "looping", e.state.Looping)
	e.publishLocked()
}

// releaseLocked detaches the current graph. Caller must hold e.mu.
func (e *Engine[P]) releaseLocked() {
	if e.graph == nil {
		return
	}
	e.out.Lock()
	e.graph.bus.Release()
	e.out.Unlock()

	e.graph = nil
	e.state.Playing = false
	e.opts.metrics.RecordGraphReleased(context.Background(), e.opts.name)
	e.publishLocked()
}

// liveLocked reports whether the engine holds a graph that can still play. A
// graph whose source ran out counts as gone even before handleEnd has run.
// Caller must hold e.mu.
func (e *Engine[P]) liveLocked() bool {
	return e.graph != nil && !e.graph.bus.Ended()
}

// handleEnd runs after a non-looping source ran out. It only acts if bus is
// still the engine's current graph.
func (e *Engine[P]) handleEnd(bus *mixer.Bus) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.graph == nil || e.graph.bus != bus {
		return
	}
	e.graph = nil
	e.state.Playing = false
	e.opts.metrics.RecordGraphReleased(context.Background(), e.opts.name)
	e.opts.logger.Debug("playback ended")
	e.publishLocked()
}

// Stop releases the playback graph. Stop is idempotent.
func (e *Engine[P]) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.releaseLocked()
}

// ─── Parameters and monitoring ────────────────────────────────────────────────

// SetParameters stores p for chain and retunes the live node in place when a
// graph exists. Playback is neither restarted nor repositioned.
func (e *Engine[P]) SetParameters(chain string, p P) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	i, ok := e.index[chain]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownChain, chain)
	}
	e.chains[i].Params = p
	if g := e.graph; g != nil {
		g.bus.Update(func() { g.nodes[i].Set(p) })
		e.opts.metrics.RecordRetune(context.Background(), e.opts.name, chain)
	}
	return nil
}

// Parameters returns the stored parameters of chain.
func (e *Engine[P]) Parameters(chain string) (P, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	i, ok := e.index[chain]
	if !ok {
		var zero P
		return zero, fmt.Errorf("%w: %q", ErrUnknownChain, chain)
	}
	return e.chains[i].Params, nil
}

// Monitor makes chain the audible one. With a live graph the switch is an
// exponential crossfade from the current graph clock; the source keeps
// playing. Without a graph, or once a non-looping source has run out,
// Monitor starts playback on chain from the first frame. It is a no-op
// unless the asset is ready.
func (e *Engine[P]) Monitor(chain string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.index[chain]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownChain, chain)
	}
	if e.closed || e.state.Status != audio.StatusReady {
		return nil
	}

	e.state.Monitor = chain
	if !e.liveLocked() {
		e.startLocked()
		return nil
	}
	if err := e.graph.bus.Crossfade(chain); err != nil {
		return err
	}
	e.opts.metrics.RecordCrossfade(context.Background(), e.opts.name, chain)
	e.publishLocked()
	return nil
}

// SetLooping changes whether playback wraps at the end of the source. It
// applies to the live graph and to every later one.
func (e *Engine[P]) SetLooping(loop bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state.Looping = loop
	if e.graph != nil {
		e.graph.bus.SetLooping(loop)
	}
	e.publishLocked()
}

// SetTimeConstant changes the crossfade time constant of graphs built from
// now on. The live graph keeps its own.
func (e *Engine[P]) SetTimeConstant(tau time.Duration) {
	if tau < 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.opts.tau = tau
}

// ChainNames returns the chain names in declaration order.
func (e *Engine[P]) ChainNames() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, len(e.chains))
	for i, c := range e.chains {
		names[i] = c.Name
	}
	return names
}

// ─── State ────────────────────────────────────────────────────────────────────

// State returns a snapshot of the engine state.
func (e *Engine[P]) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Clock returns the live graph's frame clock, or -1 without a graph.
func (e *Engine[P]) Clock() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.liveLocked() {
		return -1
	}
	return e.graph.bus.Clock()
}

// Subscribe returns a channel receiving a snapshot after every state change,
// and a function that unsubscribes and closes the channel. A subscriber that
// falls behind loses intermediate snapshots but always receives the latest.
func (e *Engine[P]) Subscribe() (<-chan State, func()) {
	ch := make(chan State, e.opts.subscriberBuffer)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	e.subs[ch] = struct{}{}
	e.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			if _, ok := e.subs[ch]; ok {
				delete(e.subs, ch)
				close(ch)
			}
		})
	}
}

// publishLocked fans the current state out to subscribers without blocking.
// Caller must hold e.mu.
func (e *Engine[P]) publishLocked() {
	s := e.state
	for ch := range e.subs {
		select {
		case ch <- s:
			continue
		default:
		}
		// Full: drop the oldest snapshot to make room for the newest.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s:
		default:
		}
	}
}

// Close cancels any pending load, stops playback and closes subscriber
// channels. Close is idempotent.
func (e *Engine[P]) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.releaseLocked()
	e.supersedeLocked()
	if e.state.Status == audio.StatusLoading {
		e.state.Status = audio.StatusIdle
	}
	e.closed = true
	e.publishLocked()
	for ch := range e.subs {
		close(ch)
	}
	clear(e.subs)
	return nil
}
