package room

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cropcall/native/internal/crop"
	"cropcall/native/internal/domain"
	"cropcall/native/internal/media"
)

// stampPlugin is a frame-level plugin that shifts frame timestamps.
type stampPlugin struct {
	name      string
	supported bool
	shift     time.Duration

	mu    sync.Mutex
	inits int
	stops int
}

func (p *stampPlugin) Name() string                  { return p.name }
func (p *stampPlugin) IsSupported() bool             { return p.supported }
func (p *stampPlugin) PluginType() domain.PluginType { return domain.PluginTypeTransform }

func (p *stampPlugin) CheckSupport() domain.SupportResult {
	return domain.SupportResult{IsSupported: p.supported}
}

func (p *stampPlugin) Init(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inits++
	return nil
}

func (p *stampPlugin) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
}

func (p *stampPlugin) ProcessVideoFrame(f *media.VideoFrame) (*media.VideoFrame, error) {
	ts := f.Timestamp + p.shift
	return media.NewVideoFrameFrom(f, media.FrameInit{Timestamp: &ts})
}

func newTestStore(t *testing.T) (*Store, *media.TrackGenerator) {
	t.Helper()
	camera := media.NewTrackGenerator(media.KindVideo, 4)
	s, err := New(media.NewStream(camera))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, camera
}

func readProcessed(t *testing.T, ctx context.Context, s *Store) *media.VideoFrame {
	t.Helper()
	track, err := media.PrimaryVideoTrack(s.ProcessedStream())
	require.NoError(t, err)
	f, err := track.ReadFrame(ctx)
	require.NoError(t, err)
	return f
}

func TestNew_RequiresVideoTrack(t *testing.T) {
	_, err := New(media.NewStream(media.NewTrackGenerator(media.KindAudio, 1)))
	assert.ErrorIs(t, err, media.ErrNoVideoTrack)
}

func TestStore_AddAndRemoveCropPlugin(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	s, camera := newTestStore(t)
	local := s.ProcessedStream()

	p := crop.New(domain.CropCoordinates{X: 5, Y: 3, Width: 100, Height: 51}, media.NewRuntime())
	require.NoError(t, s.AddPluginToVideoTrack(ctx, p))
	assert.True(t, s.IsLocalVideoPluginPresent(crop.PluginName))
	assert.NotEqual(t, local.ID(), s.ProcessedStream().ID())

	require.NoError(t, camera.WriteFrame(ctx, media.NewI420Frame(320, 240, 0)))
	f := readProcessed(t, ctx, s)
	assert.Equal(t, media.Rect{X: 4, Y: 2, Width: 100, Height: 50}, f.VisibleRect)
	f.Close()

	// A fresh instance with the same name removes the registered one.
	other := crop.New(domain.CropCoordinates{}, media.NewRuntime())
	require.NoError(t, s.RemovePluginFromVideoTrack(ctx, other))
	assert.False(t, s.IsLocalVideoPluginPresent(crop.PluginName))
	assert.Equal(t, local.ID(), s.ProcessedStream().ID())
}

func TestStore_RejectsUnsupportedAndDuplicate(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	unsupported := &stampPlugin{name: "stamp", supported: false}
	res := s.ValidateVideoPluginSupport(unsupported)
	assert.False(t, res.IsSupported)
	assert.Equal(t, "PLATFORM_NOT_SUPPORTED", res.ErrType)
	assert.Contains(t, res.ErrMsg, "stamp")
	assert.ErrorIs(t, s.AddPluginToVideoTrack(ctx, unsupported), ErrPluginNotSupported)
	assert.Zero(t, unsupported.inits)

	p := &stampPlugin{name: "stamp", supported: true}
	require.NoError(t, s.AddPluginToVideoTrack(ctx, p))
	assert.ErrorIs(t, s.AddPluginToVideoTrack(ctx, p), ErrPluginAlreadyAdded)

	assert.ErrorIs(t, s.RemovePluginFromVideoTrack(ctx, &stampPlugin{name: "missing"}), ErrPluginNotFound)
}

func TestStore_ChainRebuildsDownstreamOnRemove(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	s, camera := newTestStore(t)
	first := &stampPlugin{name: "first", supported: true, shift: time.Millisecond}
	second := &stampPlugin{name: "second", supported: true, shift: 10 * time.Millisecond}

	require.NoError(t, s.AddPluginToVideoTrack(ctx, first))
	require.NoError(t, s.AddPluginToVideoTrack(ctx, second))
	assert.Equal(t, []string{"first", "second"}, s.Plugins())

	require.NoError(t, camera.WriteFrame(ctx, media.NewI420Frame(16, 16, 0)))
	f := readProcessed(t, ctx, s)
	assert.Equal(t, 11*time.Millisecond, f.Timestamp)
	f.Close()

	require.NoError(t, s.RemovePluginFromVideoTrack(ctx, first))
	assert.Equal(t, []string{"second"}, s.Plugins())
	assert.Equal(t, 1, first.stops)
	assert.Equal(t, 1, second.stops)
	assert.Equal(t, 2, second.inits)

	require.NoError(t, camera.WriteFrame(ctx, media.NewI420Frame(16, 16, 0)))
	f = readProcessed(t, ctx, s)
	assert.Equal(t, 10*time.Millisecond, f.Timestamp)
	f.Close()
}

func TestStore_SubscribeReceivesChanges(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	var states []State
	unsubscribe := s.Subscribe(func(st State) { states = append(states, st) })

	p := &stampPlugin{name: "stamp", supported: true}
	require.NoError(t, s.AddPluginToVideoTrack(ctx, p))
	require.NoError(t, s.RemovePluginFromVideoTrack(ctx, p))

	unsubscribe()
	require.NoError(t, s.AddPluginToVideoTrack(ctx, p))

	require.Len(t, states, 2)
	assert.Equal(t, []string{"stamp"}, states[0].Plugins)
	assert.Empty(t, states[1].Plugins)
	assert.Equal(t, s.LocalVideoTrackID(), states[0].LocalVideoTrackID)
}

func TestStore_CloseStopsPlugins(t *testing.T) {
	s, _ := newTestStore(t)
	p := &stampPlugin{name: "stamp", supported: true}
	require.NoError(t, s.AddPluginToVideoTrack(context.Background(), p))

	s.Close()
	assert.Equal(t, 1, p.stops)
	assert.Empty(t, s.Plugins())
	assert.ErrorIs(t, s.AddPluginToVideoTrack(context.Background(), p), ErrClosed)
}

func TestToggler_WithStore(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	tg := crop.NewToggler(s, s, media.NewRuntime(), nil)
	coords := domain.CropCoordinates{Width: 8, Height: 8}

	for i, want := range []bool{true, false, true} {
		_, err := tg.Toggle(ctx, coords)
		require.NoError(t, err)
		assert.Equal(t, want, s.IsLocalVideoPluginPresent(crop.PluginName), "toggle %d", i+1)
	}
}
