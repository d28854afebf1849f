package media

import (
	"errors"
	"fmt"
	"image"
	"sync/atomic"
	"time"
)

var (
	// ErrFrameClosed is returned when a closed frame is used as a source.
	ErrFrameClosed = errors.New("video frame is closed")
	// ErrInvalidRect is returned when a visible rect is empty or exceeds the coded size.
	ErrInvalidRect = errors.New("visible rect outside coded frame")
	// ErrUnalignedRect is returned when a visible rect origin splits a chroma sample.
	ErrUnalignedRect = errors.New("visible rect not sample aligned")
)

// PixelFormat represents raw video pixel formats.
type PixelFormat int

const (
	PixelFormatI420 PixelFormat = iota // YUV 4:2:0 planar (Y + U + V)
	PixelFormatNV12                    // YUV 4:2:0 semi-planar (Y + interleaved UV)
	PixelFormatRGBA                    // Packed RGBA, 4 bytes per pixel
)

func (p PixelFormat) String() string {
	switch p {
	case PixelFormatI420:
		return "I420"
	case PixelFormatNV12:
		return "NV12"
	case PixelFormatRGBA:
		return "RGBA"
	default:
		return "Unknown"
	}
}

// Subsampled reports whether chroma is stored at half resolution in both axes.
func (p PixelFormat) Subsampled() bool {
	return p == PixelFormatI420 || p == PixelFormatNV12
}

// Rect is a pixel rectangle relative to the coded frame's top-left corner.
type Rect struct {
	X, Y, Width, Height int
}

func (r Rect) String() string {
	return fmt.Sprintf("%dx%d@(%d,%d)", r.Width, r.Height, r.X, r.Y)
}

// Empty reports whether the rect covers no pixels.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// FrameBuffer holds the planes of a coded frame.
type FrameBuffer struct {
	Data   [][]byte
	Stride []int
	Width  int
	Height int
	Format PixelFormat
}

// sharedBuffer is a FrameBuffer referenced by one or more VideoFrames.
type sharedBuffer struct {
	FrameBuffer
	refs    atomic.Int32
	release func()
}

func (b *sharedBuffer) retain() {
	b.refs.Add(1)
}

func (b *sharedBuffer) drop() {
	if b.refs.Add(-1) == 0 && b.release != nil {
		b.release()
	}
}

// FrameOption configures a newly allocated frame buffer.
type FrameOption func(*sharedBuffer)

// WithReleaseHook registers fn to run once the last frame referencing the
// buffer has been closed.
func WithReleaseHook(fn func()) FrameOption {
	return func(b *sharedBuffer) {
		b.release = fn
	}
}

// VideoFrame is a view onto a shared pixel buffer. Frames constructed from
// another frame share its buffer; each frame must be closed exactly once.
type VideoFrame struct {
	buf         *sharedBuffer
	VisibleRect Rect
	Timestamp   time.Duration
	closed      atomic.Bool
}

// NewVideoFrame wraps buf in a frame whose visible rect is the full coded size.
func NewVideoFrame(buf FrameBuffer, ts time.Duration, opts ...FrameOption) *VideoFrame {
	sb := &sharedBuffer{FrameBuffer: buf}
	for _, opt := range opts {
		opt(sb)
	}
	sb.retain()
	return &VideoFrame{
		buf:         sb,
		VisibleRect: Rect{Width: buf.Width, Height: buf.Height},
		Timestamp:   ts,
	}
}

// NewI420Frame allocates a zeroed I420 frame.
func NewI420Frame(width, height int, ts time.Duration, opts ...FrameOption) *VideoFrame {
	cw, ch := (width+1)/2, (height+1)/2
	return NewVideoFrame(FrameBuffer{
		Data: [][]byte{
			make([]byte, width*height),
			make([]byte, cw*ch),
			make([]byte, cw*ch),
		},
		Stride: []int{width, cw, cw},
		Width:  width,
		Height: height,
		Format: PixelFormatI420,
	}, ts, opts...)
}

// FrameInit overrides properties of a frame built from another frame.
// Nil fields inherit the source value.
type FrameInit struct {
	VisibleRect *Rect
	Timestamp   *time.Duration
}

// NewVideoFrameFrom builds a frame that shares src's buffer.
func NewVideoFrameFrom(src *VideoFrame, init FrameInit) (*VideoFrame, error) {
	if src == nil || src.Closed() {
		return nil, ErrFrameClosed
	}

	rect := src.VisibleRect
	if init.VisibleRect != nil {
		rect = *init.VisibleRect
	}
	if err := src.buf.validate(rect); err != nil {
		return nil, err
	}

	ts := src.Timestamp
	if init.Timestamp != nil {
		ts = *init.Timestamp
	}

	src.buf.retain()
	return &VideoFrame{
		buf:         src.buf,
		VisibleRect: rect,
		Timestamp:   ts,
	}, nil
}

func (b *sharedBuffer) validate(r Rect) error {
	if r.Empty() || r.X < 0 || r.Y < 0 || r.X+r.Width > b.Width || r.Y+r.Height > b.Height {
		return fmt.Errorf("%w: %s in %dx%d", ErrInvalidRect, r, b.Width, b.Height)
	}
	if b.Format.Subsampled() && (r.X%2 != 0 || r.Y%2 != 0) {
		return fmt.Errorf("%w: %s for %s", ErrUnalignedRect, r, b.Format)
	}
	return nil
}

// Format returns the pixel format of the underlying buffer.
func (f *VideoFrame) Format() PixelFormat { return f.buf.Format }

// CodedWidth returns the width of the underlying buffer.
func (f *VideoFrame) CodedWidth() int { return f.buf.Width }

// CodedHeight returns the height of the underlying buffer.
func (f *VideoFrame) CodedHeight() int { return f.buf.Height }

// Plane returns the data and stride of plane i.
func (f *VideoFrame) Plane(i int) ([]byte, int) {
	if i < 0 || i >= len(f.buf.Data) {
		return nil, 0
	}
	return f.buf.Data[i], f.buf.Stride[i]
}

// Closed reports whether Close has been called.
func (f *VideoFrame) Closed() bool {
	return f.closed.Load()
}

// Close releases the frame's reference to its buffer. Calling Close more
// than once has no further effect.
func (f *VideoFrame) Close() {
	if f.closed.CompareAndSwap(false, true) {
		f.buf.drop()
	}
}

// YCbCr returns an image view of the visible rect. Only I420 frames are supported.
func (f *VideoFrame) YCbCr() (*image.YCbCr, error) {
	if f.Closed() {
		return nil, ErrFrameClosed
	}
	if f.buf.Format != PixelFormatI420 {
		return nil, fmt.Errorf("ycbcr view of %s frame not supported", f.buf.Format)
	}

	full := &image.YCbCr{
		Y:              f.buf.Data[0],
		Cb:             f.buf.Data[1],
		Cr:             f.buf.Data[2],
		YStride:        f.buf.Stride[0],
		CStride:        f.buf.Stride[1],
		SubsampleRatio: image.YCbCrSubsampleRatio420,
		Rect:           image.Rect(0, 0, f.buf.Width, f.buf.Height),
	}
	r := f.VisibleRect
	return full.SubImage(image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)).(*image.YCbCr), nil
}
