package crop

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image/png"

	"cropcall/native/internal/media"
)

// SnapshotPNG grabs the next frame of src's primary video track and encodes
// its visible rect as PNG. Without a track processor the track is read
// directly.
func (p *Plugin) SnapshotPNG(ctx context.Context, src media.Source) ([]byte, error) {
	track, err := media.PrimaryVideoTrack(src)
	if err != nil {
		return nil, err
	}

	var r media.Readable = track
	if proc, err := p.runtime.NewTrackProcessor(track); err == nil {
		defer proc.Close()
		r = proc
	}

	frame, err := r.ReadFrame(ctx)
	if err != nil {
		return nil, fmt.Errorf("grab frame: %w", err)
	}
	defer frame.Close()

	img, err := frame.YCbCr()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// SnapshotDataURL is SnapshotPNG returned as a data URL.
func (p *Plugin) SnapshotDataURL(ctx context.Context, src media.Source) (string, error) {
	data, err := p.SnapshotPNG(ctx, src)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data), nil
}
