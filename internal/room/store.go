package room

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"cropcall/native/internal/domain"
	"cropcall/native/internal/media"
)

var (
	ErrPluginNotSupported = errors.New("plugin not supported")
	ErrPluginAlreadyAdded = errors.New("plugin already added")
	ErrPluginNotFound     = errors.New("plugin not found")
	ErrClosed             = errors.New("room store closed")
)

// State is a snapshot of the local video track's plugin set.
type State struct {
	LocalVideoTrackID string
	Plugins           []string
}

type attachment struct {
	plugin domain.VideoPlugin
	cancel context.CancelFunc
	done   chan struct{} // closed when a generic pipeline exits; nil for stream plugins
	output *media.Stream
}

// Store holds the local media of a room participant and the plugins
// attached to its video track. Plugins form a chain: each consumes the
// output of the one attached before it.
type Store struct {
	local      *media.Stream
	localTrack media.Track
	runtime    *media.Runtime
	logger     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	chain  []*attachment
	closed bool

	subMu   sync.Mutex
	subs    map[int]func(State)
	nextSub int
}

var (
	_ domain.PluginStore   = (*Store)(nil)
	_ domain.PluginActions = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRuntime sets the runtime used to pipe plugins that do not wire their
// own stream.
func WithRuntime(rt *media.Runtime) Option {
	return func(s *Store) {
		s.runtime = rt
	}
}

// New creates a store for local. local must carry a video track.
func New(local *media.Stream, opts ...Option) (*Store, error) {
	track, err := media.PrimaryVideoTrack(local)
	if err != nil {
		return nil, fmt.Errorf("local stream: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		local:      local,
		localTrack: track,
		runtime:    media.NewRuntime(),
		logger:     zap.NewNop(),
		ctx:        ctx,
		cancel:     cancel,
		subs:       make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) LocalVideoTrackID() string {
	return s.localTrack.ID()
}

func (s *Store) IsLocalVideoPluginPresent(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexOf(name) >= 0
}

// Plugins returns the names of the attached plugins in chain order.
func (s *Store) Plugins() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.namesLocked()
}

// ProcessedStream returns the output of the last attached plugin, or the
// local stream when none is attached.
func (s *Store) ProcessedStream() *media.Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upstreamLocked(len(s.chain))
}

// State returns a snapshot of the plugin set.
func (s *Store) State() State {
	return State{LocalVideoTrackID: s.LocalVideoTrackID(), Plugins: s.Plugins()}
}

// Subscribe registers fn to be called with the new state after every
// change. The returned function removes the subscription.
func (s *Store) Subscribe(fn func(State)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify() {
	state := s.State()

	s.subMu.Lock()
	fns := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}

func (s *Store) ValidateVideoPluginSupport(p domain.VideoPlugin) domain.SupportResult {
	if p == nil || p.Name() == "" {
		return domain.SupportResult{ErrType: "INVALID_PLUGIN", ErrMsg: "plugin has no name"}
	}

	res := p.CheckSupport()
	if res.IsSupported {
		return res
	}
	if res.ErrType == "" {
		res.ErrType = "PLATFORM_NOT_SUPPORTED"
	}
	if res.ErrMsg == "" {
		res.ErrMsg = fmt.Sprintf("plugin %s not supported on this platform", p.Name())
	}
	return res
}

func (s *Store) AddPluginToVideoTrack(ctx context.Context, p domain.VideoPlugin) error {
	if res := s.ValidateVideoPluginSupport(p); !res.IsSupported {
		return fmt.Errorf("%w: %s", ErrPluginNotSupported, res.ErrMsg)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.indexOf(p.Name()) >= 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrPluginAlreadyAdded, p.Name())
	}

	if err := p.Init(ctx); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("init %s: %w", p.Name(), err)
	}

	a, err := s.start(p, s.upstreamLocked(len(s.chain)))
	if err != nil {
		s.mu.Unlock()
		p.Stop()
		return fmt.Errorf("start %s: %w", p.Name(), err)
	}
	s.chain = append(s.chain, a)
	s.mu.Unlock()

	s.logger.Info("plugin added", zap.String("plugin", p.Name()), zap.String("track", s.LocalVideoTrackID()))
	s.notify()
	return nil
}

// RemovePluginFromVideoTrack detaches the plugin registered under p's name.
// Plugins attached after it are restarted on the new upstream.
func (s *Store) RemovePluginFromVideoTrack(ctx context.Context, p domain.VideoPlugin) error {
	s.mu.Lock()
	idx := s.indexOf(p.Name())
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrPluginNotFound, p.Name())
	}

	downstream := s.chain[idx+1:]
	for i := len(s.chain) - 1; i >= idx; i-- {
		s.halt(s.chain[i])
	}
	s.chain = s.chain[:idx]

	var restartErr error
	for _, old := range downstream {
		if err := old.plugin.Init(ctx); err != nil {
			restartErr = errors.Join(restartErr, fmt.Errorf("init %s: %w", old.plugin.Name(), err))
			continue
		}
		a, err := s.start(old.plugin, s.upstreamLocked(len(s.chain)))
		if err != nil {
			restartErr = errors.Join(restartErr, fmt.Errorf("restart %s: %w", old.plugin.Name(), err))
			continue
		}
		s.chain = append(s.chain, a)
	}
	s.mu.Unlock()

	s.logger.Info("plugin removed", zap.String("plugin", p.Name()), zap.String("track", s.LocalVideoTrackID()))
	s.notify()
	return restartErr
}

// Close stops every attached plugin.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for i := len(s.chain) - 1; i >= 0; i-- {
		s.halt(s.chain[i])
	}
	s.chain = nil
	s.mu.Unlock()

	s.cancel()
	s.notify()
}

func (s *Store) indexOf(name string) int {
	for i, a := range s.chain {
		if a.plugin.Name() == name {
			return i
		}
	}
	return -1
}

func (s *Store) namesLocked() []string {
	names := make([]string, 0, len(s.chain))
	for _, a := range s.chain {
		names = append(names, a.plugin.Name())
	}
	return names
}

func (s *Store) upstreamLocked(n int) *media.Stream {
	if n == 0 {
		return s.local
	}
	return s.chain[n-1].output
}

func (s *Store) start(p domain.VideoPlugin, in *media.Stream) (*attachment, error) {
	ctx, cancel := context.WithCancel(s.ctx)

	if sp, ok := p.(domain.StreamPlugin); ok {
		out, err := sp.GenerateStream(ctx, in)
		if err != nil {
			cancel()
			return nil, err
		}
		return &attachment{plugin: p, cancel: cancel, output: out}, nil
	}

	out, done, err := s.pipeFrames(ctx, p, in)
	if err != nil {
		cancel()
		return nil, err
	}
	return &attachment{plugin: p, cancel: cancel, done: done, output: out}, nil
}

// pipeFrames runs p.ProcessVideoFrame over every frame of in's video track.
func (s *Store) pipeFrames(ctx context.Context, p domain.VideoPlugin, in *media.Stream) (*media.Stream, chan struct{}, error) {
	track, err := media.PrimaryVideoTrack(in)
	if err != nil {
		return nil, nil, err
	}
	gen, err := s.runtime.NewTrackGenerator(media.KindVideo)
	if err != nil {
		return nil, nil, err
	}
	proc, err := s.runtime.NewTrackProcessor(track)
	if err != nil {
		gen.Stop()
		return nil, nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		err := media.Pipe(ctx, proc, func(f *media.VideoFrame, enqueue func(*media.VideoFrame)) error {
			defer f.Close()
			out, err := p.ProcessVideoFrame(f)
			if err != nil {
				return err
			}
			enqueue(out)
			return nil
		}, gen)
		proc.Close()
		if ctx.Err() != nil {
			gen.Stop()
			return
		}
		if err != nil {
			s.logger.Warn("plugin pipe error", zap.String("plugin", p.Name()), zap.Error(err))
		}
	}()

	return media.NewStream(gen), done, nil
}

func (s *Store) halt(a *attachment) {
	a.cancel()
	if a.done != nil {
		<-a.done
	}
	a.plugin.Stop()
}
