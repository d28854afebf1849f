package media

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PatternConfig configures a synthetic camera track.
type PatternConfig struct {
	Width  int // Frame width (default: 1280)
	Height int // Frame height (default: 720)
	FPS    int // Frames per second (default: 30)
}

// DefaultPatternConfig returns a 720p30 configuration.
func DefaultPatternConfig() PatternConfig {
	return PatternConfig{Width: 1280, Height: 720, FPS: 30}
}

// PatternTrack is a video track producing I420 frames with a vertical bar
// that moves one step per frame across a luma gradient.
type PatternTrack struct {
	id     string
	config PatternConfig

	mu      sync.Mutex
	ticker  *time.Ticker
	start   time.Time
	count   int64
	stopped chan struct{}
	once    sync.Once
}

// NewPatternTrack creates a pattern track. Zero config fields take defaults.
func NewPatternTrack(config PatternConfig) *PatternTrack {
	def := DefaultPatternConfig()
	if config.Width <= 0 {
		config.Width = def.Width
	}
	if config.Height <= 0 {
		config.Height = def.Height
	}
	if config.FPS <= 0 {
		config.FPS = def.FPS
	}
	return &PatternTrack{
		id:      uuid.NewString(),
		config:  config,
		stopped: make(chan struct{}),
	}
}

func (t *PatternTrack) ID() string { return t.id }
func (t *PatternTrack) Kind() Kind { return KindVideo }

// ReadFrame blocks until the next frame interval and returns a new frame.
func (t *PatternTrack) ReadFrame(ctx context.Context) (*VideoFrame, error) {
	select {
	case <-t.stopped:
		return nil, io.EOF
	default:
	}

	t.mu.Lock()
	if t.ticker == nil {
		t.ticker = time.NewTicker(time.Second / time.Duration(t.config.FPS))
		t.start = time.Now()
	}
	ticker := t.ticker
	t.mu.Unlock()

	select {
	case <-t.stopped:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-ticker.C:
	}

	t.mu.Lock()
	n := t.count
	t.count++
	ts := time.Since(t.start)
	t.mu.Unlock()

	f := NewI420Frame(t.config.Width, t.config.Height, ts)
	t.paint(f, n)
	return f, nil
}

func (t *PatternTrack) paint(f *VideoFrame, n int64) {
	w, h := t.config.Width, t.config.Height
	y, yStride := f.Plane(0)
	barWidth := w / 16
	if barWidth < 2 {
		barWidth = 2
	}
	barX := int(n*4) % w

	for row := 0; row < h; row++ {
		line := y[row*yStride : row*yStride+w]
		for col := range line {
			if col >= barX && col < barX+barWidth {
				line[col] = 235
			} else {
				line[col] = byte(16 + col*200/w)
			}
		}
	}

	for i := 1; i <= 2; i++ {
		plane, _ := f.Plane(i)
		for j := range plane {
			plane[j] = 128
		}
	}
}

// Stop ends the track. Subsequent reads return io.EOF.
func (t *PatternTrack) Stop() {
	t.once.Do(func() {
		close(t.stopped)
		t.mu.Lock()
		if t.ticker != nil {
			t.ticker.Stop()
		}
		t.mu.Unlock()
	})
}
