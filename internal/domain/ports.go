package domain

import (
	"context"

	"cropcall/native/internal/media"
)

// TokenFetcher exchanges a user and room name for a room access token.
type TokenFetcher interface {
	FetchToken(ctx context.Context, userName, roomName string) (string, error)
}

// VideoPlugin is the capability set the video platform requires of a plugin
// attached to the local video track.
type VideoPlugin interface {
	Name() string
	Init(ctx context.Context) error
	IsSupported() bool
	CheckSupport() SupportResult
	PluginType() PluginType
	ProcessVideoFrame(frame *media.VideoFrame) (*media.VideoFrame, error)
	Stop()
}

// StreamPlugin is a VideoPlugin that wires its own output stream.
type StreamPlugin interface {
	VideoPlugin
	GenerateStream(ctx context.Context, src media.Source) (*media.Stream, error)
}

// PluginStore is the read side of the video platform's room state.
type PluginStore interface {
	LocalVideoTrackID() string
	IsLocalVideoPluginPresent(name string) bool
}

// PluginActions mutates the plugin set of the local video track.
type PluginActions interface {
	ValidateVideoPluginSupport(p VideoPlugin) SupportResult
	AddPluginToVideoTrack(ctx context.Context, p VideoPlugin) error
	RemovePluginFromVideoTrack(ctx context.Context, p VideoPlugin) error
}
