package crop

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cropcall/native/internal/domain"
	"cropcall/native/internal/media"
)

var testCoords = domain.CropCoordinates{X: 5, Y: 3, Width: 100, Height: 51}

func TestPlugin_Identity(t *testing.T) {
	p := New(testCoords, media.NewRuntime())
	assert.Equal(t, "crop-video-stream-plugin", p.Name())
	assert.Equal(t, domain.PluginTypeAnalyze, p.PluginType())
	assert.Equal(t, testCoords, p.Coordinates())
	assert.NoError(t, p.Init(context.Background()))
}

func TestPlugin_CheckSupport(t *testing.T) {
	tests := []struct {
		name    string
		runtime *media.Runtime
		want    bool
		wantMsg string
	}{
		{"full runtime", media.NewRuntime(), true, ""},
		{"no processor", media.NewRuntime(media.WithoutPrimitive(media.PrimitiveTrackProcessor)), false, "MediaStreamTrackProcessor"},
		{"no generator", media.NewRuntime(media.WithoutPrimitive(media.PrimitiveTrackGenerator)), false, "MediaStreamTrackGenerator"},
		{"nil runtime", nil, false, "MediaStreamTrackProcessor and MediaStreamTrackGenerator"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(testCoords, tt.runtime)
			res := p.CheckSupport()
			assert.Equal(t, tt.want, res.IsSupported)
			assert.Equal(t, tt.want, p.IsSupported())
			if tt.wantMsg != "" {
				assert.Contains(t, res.ErrMsg, tt.wantMsg)
				assert.Equal(t, ErrTypePlatformNotSupported, res.ErrType)
			}
		})
	}
}

func TestPlugin_TransformOneToOneAndReleasesInput(t *testing.T) {
	p := New(testCoords, media.NewRuntime())

	released := 0
	in := media.NewI420Frame(320, 240, 40*time.Millisecond, media.WithReleaseHook(func() { released++ }))

	var out []*media.VideoFrame
	err := p.Transform(in, func(f *media.VideoFrame) { out = append(out, f) })
	require.NoError(t, err)

	require.Len(t, out, 1)
	assert.Equal(t, media.Rect{X: 4, Y: 2, Width: 100, Height: 50}, out[0].VisibleRect)
	assert.Equal(t, 40*time.Millisecond, out[0].Timestamp)
	assert.True(t, in.Closed())
	assert.False(t, out[0].Closed())
	assert.Equal(t, 0, released)

	out[0].Close()
	assert.Equal(t, 1, released)
}

func TestPlugin_TransformOutOfBoundsClosesInput(t *testing.T) {
	p := New(domain.CropCoordinates{X: 0, Y: 0, Width: 640, Height: 480}, media.NewRuntime())
	in := media.NewI420Frame(320, 240, 0)

	called := false
	err := p.Transform(in, func(*media.VideoFrame) { called = true })
	assert.ErrorIs(t, err, media.ErrInvalidRect)
	assert.False(t, called)
	assert.True(t, in.Closed())
}

func TestPlugin_ProcessVideoFrameLeavesInputOpen(t *testing.T) {
	p := New(testCoords, media.NewRuntime())
	in := media.NewI420Frame(320, 240, 0)
	defer in.Close()

	out, err := p.ProcessVideoFrame(in)
	require.NoError(t, err)
	defer out.Close()

	assert.False(t, in.Closed())
	assert.Equal(t, p.Rect(), out.VisibleRect)
}

func TestPlugin_GenerateStream(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	rt := media.NewRuntime()
	camera, err := rt.NewTrackGenerator(media.KindVideo)
	require.NoError(t, err)

	p := New(testCoords, rt)
	out, err := p.GenerateStream(ctx, media.NewStream(camera))
	require.NoError(t, err)

	tracks := out.VideoTracks()
	require.Len(t, tracks, 1)
	assert.NotEqual(t, camera.ID(), tracks[0].ID())

	inputs := make([]*media.VideoFrame, 3)
	go func() {
		for i := range inputs {
			inputs[i] = media.NewI420Frame(320, 240, time.Duration(i))
			_ = camera.WriteFrame(ctx, inputs[i])
		}
		_ = camera.Close()
	}()

	for i := 0; i < 3; i++ {
		f, err := tracks[0].ReadFrame(ctx)
		require.NoError(t, err)
		assert.Equal(t, time.Duration(i), f.Timestamp)
		assert.Equal(t, media.Rect{X: 4, Y: 2, Width: 100, Height: 50}, f.VisibleRect)
		f.Close()
	}

	_, err = tracks[0].ReadFrame(ctx)
	assert.ErrorIs(t, err, io.EOF)

	p.Stop()
	for _, in := range inputs {
		assert.True(t, in.Closed())
	}
	select {
	case err := <-p.PipeErrors():
		t.Fatalf("unexpected pipe error: %v", err)
	default:
	}
}

func TestPlugin_GenerateStreamFromBareTrack(t *testing.T) {
	rt := media.NewRuntime()
	camera := media.NewTrackGenerator(media.KindVideo, 1)

	p := New(testCoords, rt)
	out, err := p.GenerateStream(context.Background(), camera)
	require.NoError(t, err)
	assert.Len(t, out.VideoTracks(), 1)
	p.Stop()
}

func TestPlugin_GenerateStreamReportsPipeError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	rt := media.NewRuntime()
	camera := media.NewTrackGenerator(media.KindVideo, 1)

	// Crop larger than the 64x64 source.
	p := New(domain.CropCoordinates{Width: 128, Height: 128}, rt)
	_, err := p.GenerateStream(ctx, camera)
	require.NoError(t, err)

	require.NoError(t, camera.WriteFrame(ctx, media.NewI420Frame(64, 64, 0)))

	select {
	case err := <-p.PipeErrors():
		assert.ErrorIs(t, err, media.ErrInvalidRect)
	case <-ctx.Done():
		t.Fatal("expected pipe error")
	}
	p.Stop()
}

func TestPlugin_GenerateStreamWithoutVideo(t *testing.T) {
	p := New(testCoords, media.NewRuntime())
	_, err := p.GenerateStream(context.Background(), media.NewStream())
	assert.ErrorIs(t, err, media.ErrNoVideoTrack)
}

func TestPlugin_GenerateStreamUnsupported(t *testing.T) {
	rt := media.NewRuntime(media.WithoutPrimitive(media.PrimitiveTrackGenerator))
	p := New(testCoords, rt)
	_, err := p.GenerateStream(context.Background(), media.NewTrackGenerator(media.KindVideo, 1))
	assert.ErrorIs(t, err, media.ErrUnsupported)
}

func TestPlugin_StopEndsPipelineWithoutError(t *testing.T) {
	rt := media.NewRuntime()
	camera := media.NewTrackGenerator(media.KindVideo, 1)

	p := New(testCoords, rt)
	out, err := p.GenerateStream(context.Background(), camera)
	require.NoError(t, err)

	p.Stop()

	_, err = out.VideoTracks()[0].ReadFrame(context.Background())
	assert.ErrorIs(t, err, io.EOF)
	select {
	case err := <-p.PipeErrors():
		t.Fatalf("cancellation reported as pipe error: %v", err)
	default:
	}
}

func TestSnapshotDataURL(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	camera := media.NewTrackGenerator(media.KindVideo, 1)
	src := media.NewI420Frame(32, 32, 0)
	rect := media.Rect{X: 2, Y: 2, Width: 16, Height: 8}
	framed, err := media.NewVideoFrameFrom(src, media.FrameInit{VisibleRect: &rect})
	require.NoError(t, err)
	src.Close()
	require.NoError(t, camera.WriteFrame(ctx, framed))

	p := New(testCoords, media.NewRuntime())
	url, err := p.SnapshotDataURL(ctx, camera)
	require.NoError(t, err)
	assert.Contains(t, url, "data:image/png;base64,")
	assert.True(t, framed.Closed())
}
