package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

var (
	// ErrUnsupported is returned when the runtime lacks a streaming primitive.
	ErrUnsupported = errors.New("streaming primitive not supported")
	// ErrTrackEnded is returned when writing to a generator that has been closed.
	ErrTrackEnded = errors.New("track ended")
)

// Primitive names a streaming building block the runtime may expose.
type Primitive int

const (
	PrimitiveTrackProcessor Primitive = iota // track -> readable frames
	PrimitiveTrackGenerator                  // writable frames -> track
)

func (p Primitive) String() string {
	switch p {
	case PrimitiveTrackProcessor:
		return "MediaStreamTrackProcessor"
	case PrimitiveTrackGenerator:
		return "MediaStreamTrackGenerator"
	default:
		return "Unknown"
	}
}

const defaultQueueSize = 4

// Runtime reports and constructs the streaming primitives available to plugins.
type Runtime struct {
	disabled  map[Primitive]bool
	queueSize int
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithoutPrimitive disables p, as on a runtime that does not provide it.
func WithoutPrimitive(p Primitive) RuntimeOption {
	return func(r *Runtime) {
		r.disabled[p] = true
	}
}

// WithQueueSize sets how many frames a generator buffers before writes block.
func WithQueueSize(n int) RuntimeOption {
	return func(r *Runtime) {
		if n > 0 {
			r.queueSize = n
		}
	}
}

// NewRuntime returns a runtime exposing every primitive unless disabled.
func NewRuntime(opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		disabled:  make(map[Primitive]bool),
		queueSize: defaultQueueSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Supports reports whether p is available for tracks of kind.
func (r *Runtime) Supports(p Primitive, kind Kind) bool {
	if r == nil || r.disabled[p] {
		return false
	}
	return kind == KindVideo
}

// NewTrackProcessor exposes track as a stream of frames.
func (r *Runtime) NewTrackProcessor(track Track) (*TrackProcessor, error) {
	if !r.Supports(PrimitiveTrackProcessor, track.Kind()) {
		return nil, fmt.Errorf("%w: %s for %s", ErrUnsupported, PrimitiveTrackProcessor, track.Kind())
	}
	return &TrackProcessor{track: track}, nil
}

// NewTrackGenerator creates a track fed by writes to the returned generator.
func (r *Runtime) NewTrackGenerator(kind Kind) (*TrackGenerator, error) {
	if !r.Supports(PrimitiveTrackGenerator, kind) {
		return nil, fmt.Errorf("%w: %s for %s", ErrUnsupported, PrimitiveTrackGenerator, kind)
	}
	return NewTrackGenerator(kind, r.queueSize), nil
}

// TrackProcessor reads frames from a track.
type TrackProcessor struct {
	track  Track
	closed atomic.Bool
}

// ReadFrame returns the next frame of the underlying track.
func (p *TrackProcessor) ReadFrame(ctx context.Context) (*VideoFrame, error) {
	if p.closed.Load() {
		return nil, io.EOF
	}
	return p.track.ReadFrame(ctx)
}

// Close detaches the processor without stopping the track.
func (p *TrackProcessor) Close() {
	p.closed.Store(true)
}

// TrackGenerator is a track whose frames are supplied by WriteFrame.
type TrackGenerator struct {
	id     string
	kind   Kind
	frames chan *VideoFrame
	done   chan struct{}
	once   sync.Once
}

// NewTrackGenerator creates a generator buffering up to queueSize frames.
func NewTrackGenerator(kind Kind, queueSize int) *TrackGenerator {
	return &TrackGenerator{
		id:     uuid.NewString(),
		kind:   kind,
		frames: make(chan *VideoFrame, queueSize),
		done:   make(chan struct{}),
	}
}

func (g *TrackGenerator) ID() string { return g.id }
func (g *TrackGenerator) Kind() Kind { return g.kind }

// WriteFrame enqueues f. Ownership of f passes to the generator on success.
func (g *TrackGenerator) WriteFrame(ctx context.Context, f *VideoFrame) error {
	select {
	case <-g.done:
		return ErrTrackEnded
	default:
	}

	select {
	case g.frames <- f:
		return nil
	case <-g.done:
		return ErrTrackEnded
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReadFrame returns the next queued frame, or io.EOF once the generator is
// closed and drained.
func (g *TrackGenerator) ReadFrame(ctx context.Context) (*VideoFrame, error) {
	select {
	case f := <-g.frames:
		return f, nil
	case <-g.done:
		select {
		case f := <-g.frames:
			return f, nil
		default:
			return nil, io.EOF
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close ends the track. Frames already queued remain readable.
func (g *TrackGenerator) Close() error {
	g.once.Do(func() { close(g.done) })
	return nil
}

// Stop ends the track and releases any queued frames.
func (g *TrackGenerator) Stop() {
	g.Close()
	for {
		select {
		case f := <-g.frames:
			f.Close()
		default:
			return
		}
	}
}
