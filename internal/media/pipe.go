package media

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// TransformFunc consumes frame and passes zero or more frames to enqueue.
// The transform owns frame and must close it.
type TransformFunc func(frame *VideoFrame, enqueue func(*VideoFrame)) error

// Pipe reads frames from src, runs them through transform and writes the
// results to dst, one frame at a time and in order. dst is closed when Pipe
// returns. A nil error means src reached its end.
func Pipe(ctx context.Context, src Readable, transform TransformFunc, dst Writable) error {
	defer dst.Close()

	var pending []*VideoFrame
	enqueue := func(f *VideoFrame) { pending = append(pending, f) }

	for {
		f, err := src.ReadFrame(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		pending = pending[:0]
		if err := transform(f, enqueue); err != nil {
			closeFrames(pending)
			return fmt.Errorf("transform: %w", err)
		}

		for i, out := range pending {
			if err := dst.WriteFrame(ctx, out); err != nil {
				closeFrames(pending[i:])
				return err
			}
		}
	}
}

func closeFrames(frames []*VideoFrame) {
	for _, f := range frames {
		f.Close()
	}
}
