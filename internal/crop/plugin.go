package crop

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"cropcall/native/internal/domain"
	"cropcall/native/internal/media"
)

// PluginName identifies the crop plugin in the local track's plugin set.
const PluginName = "crop-video-stream-plugin"

// ErrTypePlatformNotSupported marks a support failure caused by missing
// runtime primitives.
const ErrTypePlatformNotSupported = "PLATFORM_NOT_SUPPORTED"

// Plugin crops every frame of a video track to a fixed, sample-aligned rect.
type Plugin struct {
	coords  domain.CropCoordinates
	rect    media.Rect
	runtime *media.Runtime
	logger  *zap.Logger

	pipeErrs chan error

	mu      sync.Mutex
	cancels []context.CancelFunc
	wg      sync.WaitGroup
}

var _ domain.StreamPlugin = (*Plugin)(nil)

// Option configures a Plugin.
type Option func(*Plugin)

// WithLogger sets the plugin's logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Plugin) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a crop plugin bound to coords.
func New(coords domain.CropCoordinates, runtime *media.Runtime, opts ...Option) *Plugin {
	p := &Plugin{
		coords:   coords,
		rect:     AlignCoordinates(coords),
		runtime:  runtime,
		logger:   zap.NewNop(),
		pipeErrs: make(chan error, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Plugin) Name() string { return PluginName }

func (p *Plugin) PluginType() domain.PluginType { return domain.PluginTypeAnalyze }

// Coordinates returns the coordinates the plugin was created with.
func (p *Plugin) Coordinates() domain.CropCoordinates { return p.coords }

// Rect returns the aligned crop rectangle.
func (p *Plugin) Rect() media.Rect { return p.rect }

func (p *Plugin) Init(ctx context.Context) error {
	p.logger.Info("initiated", zap.Stringer("rect", p.rect))
	return nil
}

// IsSupported reports whether the runtime can both read and generate video tracks.
func (p *Plugin) IsSupported() bool {
	return len(p.missingPrimitives()) == 0
}

func (p *Plugin) CheckSupport() domain.SupportResult {
	missing := p.missingPrimitives()
	if len(missing) == 0 {
		return domain.SupportResult{IsSupported: true}
	}
	return domain.SupportResult{
		IsSupported: false,
		ErrType:     ErrTypePlatformNotSupported,
		ErrMsg:      fmt.Sprintf("%s not supported for %s tracks", strings.Join(missing, " and "), media.KindVideo),
	}
}

func (p *Plugin) missingPrimitives() []string {
	var missing []string
	for _, prim := range []media.Primitive{media.PrimitiveTrackProcessor, media.PrimitiveTrackGenerator} {
		if !p.runtime.Supports(prim, media.KindVideo) {
			missing = append(missing, prim.String())
		}
	}
	return missing
}

// ProcessVideoFrame returns a new frame showing only the crop rect of frame.
// frame is left open.
func (p *Plugin) ProcessVideoFrame(frame *media.VideoFrame) (*media.VideoFrame, error) {
	rect := p.rect
	return media.NewVideoFrameFrom(frame, media.FrameInit{VisibleRect: &rect})
}

// Transform is the per-frame step of the crop pipeline. It always closes frame.
func (p *Plugin) Transform(frame *media.VideoFrame, enqueue func(*media.VideoFrame)) error {
	defer frame.Close()

	out, err := p.ProcessVideoFrame(frame)
	if err != nil {
		return err
	}
	enqueue(out)
	return nil
}

// GenerateStream pipes the primary video track of src through the crop
// transform into a new stream. The pipeline runs until src ends, ctx is
// cancelled or Stop is called. Pipe failures are logged and reported on
// PipeErrors.
func (p *Plugin) GenerateStream(ctx context.Context, src media.Source) (*media.Stream, error) {
	track, err := media.PrimaryVideoTrack(src)
	if err != nil {
		return nil, err
	}

	gen, err := p.runtime.NewTrackGenerator(media.KindVideo)
	if err != nil {
		return nil, err
	}
	proc, err := p.runtime.NewTrackProcessor(track)
	if err != nil {
		gen.Stop()
		return nil, err
	}

	pctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancels = append(p.cancels, cancel)
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		defer cancel()

		err := media.Pipe(pctx, proc, p.Transform, gen)
		proc.Close()

		if pctx.Err() != nil {
			gen.Stop()
			return
		}
		if err != nil {
			p.logger.Warn("pipe error", zap.String("track", track.ID()), zap.Error(err))
			p.reportPipeError(err)
		}
	}()

	return media.NewStream(gen), nil
}

func (p *Plugin) reportPipeError(err error) {
	select {
	case p.pipeErrs <- err:
	default:
	}
}

// PipeErrors delivers pipeline failures. Only the first unread error is kept.
func (p *Plugin) PipeErrors() <-chan error {
	return p.pipeErrs
}

// Stop cancels every pipeline started by GenerateStream and waits for them
// to exit.
func (p *Plugin) Stop() {
	p.mu.Lock()
	cancels := p.cancels
	p.cancels = nil
	p.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	p.wg.Wait()
	p.logger.Info("stopped")
}

// UnsupportedError is returned by Toggle when the platform rejects the plugin.
type UnsupportedError struct {
	Plugin string
	Msg    string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("plugin %s not supported: %s", e.Plugin, e.Msg)
}

// IsUnsupported reports whether err is an UnsupportedError.
func IsUnsupported(err error) bool {
	var ue *UnsupportedError
	return errors.As(err, &ue)
}
