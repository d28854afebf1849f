package crop

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"cropcall/native/internal/domain"
	"cropcall/native/internal/media"
)

// Toggler attaches or detaches the crop plugin on the local video track.
// Toggles on the same track are serialized.
type Toggler struct {
	store   domain.PluginStore
	actions domain.PluginActions
	runtime *media.Runtime
	logger  *zap.Logger

	mu     sync.Mutex
	guards map[string]*semaphore.Weighted
}

// NewToggler creates a Toggler over the given room store and actions.
// A nil logger disables logging.
func NewToggler(store domain.PluginStore, actions domain.PluginActions, runtime *media.Runtime, logger *zap.Logger) *Toggler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Toggler{
		store:   store,
		actions: actions,
		runtime: runtime,
		logger:  logger,
		guards:  make(map[string]*semaphore.Weighted),
	}
}

// Toggle builds a crop plugin for coords and attaches it to the local video
// track, or detaches the attached crop plugin if one is present. The new
// instance is returned in every case. If the platform does not support the
// plugin nothing is attached and an *UnsupportedError is returned.
func (t *Toggler) Toggle(ctx context.Context, coords domain.CropCoordinates) (*Plugin, error) {
	p := New(coords, t.runtime, WithLogger(t.logger))

	support := t.actions.ValidateVideoPluginSupport(p)
	if !p.CheckSupport().IsSupported {
		err := &UnsupportedError{Plugin: p.Name(), Msg: support.ErrMsg}
		t.logger.Error("crop plugin unsupported", zap.String("err_type", support.ErrType), zap.Error(err))
		return p, err
	}

	trackID := t.store.LocalVideoTrackID()
	guard := t.guard(trackID)
	if err := guard.Acquire(ctx, 1); err != nil {
		return p, err
	}
	defer guard.Release(1)

	if !t.store.IsLocalVideoPluginPresent(p.Name()) {
		t.logger.Info("attaching crop plugin", zap.String("track", trackID), zap.Stringer("rect", p.Rect()))
		return p, t.actions.AddPluginToVideoTrack(ctx, p)
	}

	t.logger.Info("detaching crop plugin", zap.String("track", trackID))
	return p, t.actions.RemovePluginFromVideoTrack(ctx, p)
}

func (t *Toggler) guard(trackID string) *semaphore.Weighted {
	t.mu.Lock()
	defer t.mu.Unlock()

	g, ok := t.guards[trackID]
	if !ok {
		g = semaphore.NewWeighted(1)
		t.guards[trackID] = g
	}
	return g
}
