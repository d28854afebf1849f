package media

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

// Kind is the media kind of a track.
type Kind = webrtc.RTPCodecType

const (
	KindAudio = webrtc.RTPCodecTypeAudio
	KindVideo = webrtc.RTPCodecTypeVideo
)

// ErrNoVideoTrack is returned when a source carries no video track.
var ErrNoVideoTrack = errors.New("source has no video track")

// Readable yields frames until it returns io.EOF.
type Readable interface {
	ReadFrame(ctx context.Context) (*VideoFrame, error)
}

// Writable accepts frames until it is closed.
type Writable interface {
	WriteFrame(ctx context.Context, f *VideoFrame) error
	Close() error
}

// Track is a single media source.
type Track interface {
	Readable
	ID() string
	Kind() Kind
	Stop()
}

// Source is anything a plugin can pull video from: a Stream or a bare Track.
type Source interface {
	ID() string
}

// Stream groups tracks that belong together.
type Stream struct {
	id string

	mu     sync.RWMutex
	tracks []Track
}

// NewStream creates a stream with a random ID holding tracks.
func NewStream(tracks ...Track) *Stream {
	return &Stream{
		id:     uuid.NewString(),
		tracks: append([]Track(nil), tracks...),
	}
}

func (s *Stream) ID() string { return s.id }

// Tracks returns every track in insertion order.
func (s *Stream) Tracks() []Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Track(nil), s.tracks...)
}

// VideoTracks returns the video tracks in insertion order.
func (s *Stream) VideoTracks() []Track {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Track
	for _, t := range s.tracks {
		if t.Kind() == KindVideo {
			out = append(out, t)
		}
	}
	return out
}

// AddTrack appends t unless a track with the same ID is already present.
func (s *Stream) AddTrack(t Track) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.tracks {
		if existing.ID() == t.ID() {
			return
		}
	}
	s.tracks = append(s.tracks, t)
}

// Stop stops every track in the stream.
func (s *Stream) Stop() {
	for _, t := range s.Tracks() {
		t.Stop()
	}
}

// PrimaryVideoTrack returns the first video track of a stream, or src itself
// when it is a video track.
func PrimaryVideoTrack(src Source) (Track, error) {
	switch v := src.(type) {
	case *Stream:
		if tracks := v.VideoTracks(); len(tracks) > 0 {
			return tracks[0], nil
		}
	case Track:
		if v.Kind() == KindVideo {
			return v, nil
		}
	}
	return nil, ErrNoVideoTrack
}
