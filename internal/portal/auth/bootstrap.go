// Package auth turns identity service sessions into customer profiles and
// keeps the per-browser authentication state.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/printflow/portal/internal/logging"
	"github.com/printflow/portal/internal/portal/profile"
	"github.com/printflow/portal/internal/portal/session"
)

// Bootstrap outcomes reported to the Recorder.
const (
	OutcomeExisting = "existing"
	OutcomeCreated  = "created"
	OutcomeRaced    = "raced"
	OutcomeError    = "error"
)

// Recorder receives auth metrics. *metrics.Metrics satisfies it.
type Recorder interface {
	RecordAuthOperation(operation, result string)
	RecordBootstrap(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordAuthOperation(string, string) {}
func (nopRecorder) RecordBootstrap(string)             {}

// Bootstrapper resolves an identity to its profile, creating the profile on
// first sight. Concurrent resolutions of one identity share a single call.
type Bootstrapper struct {
	profiles profile.Repository
	logger   *logging.Logger
	recorder Recorder
	now      func() time.Time
	group    singleflight.Group
}

// NewBootstrapper creates a bootstrapper. recorder may be nil.
func NewBootstrapper(profiles profile.Repository, logger *logging.Logger, recorder Recorder) *Bootstrapper {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Bootstrapper{
		profiles: profiles,
		logger:   logger,
		recorder: recorder,
		now:      time.Now,
	}
}

// Resolve returns the profile owned by id. An empty identity resolves to no
// profile. ctx must carry the identity's access token.
func (b *Bootstrapper) Resolve(ctx context.Context, id session.Identity) (*profile.Profile, error) {
	if id.UserID == "" {
		return nil, nil
	}

	v, err, _ := b.group.Do(id.UserID, func() (interface{}, error) {
		return b.resolve(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	// Shared results must not alias between callers.
	return v.(*profile.Profile).Clone(), nil
}

func (b *Bootstrapper) resolve(ctx context.Context, id session.Identity) (*profile.Profile, error) {
	log := b.logger.WithContext(ctx).WithField("user_id", id.UserID)

	p, err := b.profiles.GetByUserID(ctx, id.UserID)
	if err == nil {
		b.recorder.RecordBootstrap(OutcomeExisting)
		return p, nil
	}
	if !errors.Is(err, profile.ErrNotFound) {
		b.recorder.RecordBootstrap(OutcomeError)
		return nil, fmt.Errorf("fetch profile: %w", err)
	}

	created, inserted, err := b.profiles.InsertIfAbsent(ctx, profile.NewDefault(id.UserID, id.Email, id.Metadata, b.now()))
	if err != nil {
		b.recorder.RecordBootstrap(OutcomeError)
		return nil, fmt.Errorf("create profile: %w", err)
	}
	if inserted && created != nil {
		b.recorder.RecordBootstrap(OutcomeCreated)
		log.WithFields(logrus.Fields{"profile_id": created.ID}).Info("Created customer profile")
		return created, nil
	}

	// Another writer created the row between our read and insert.
	p, err = b.profiles.GetByUserID(ctx, id.UserID)
	if err != nil {
		b.recorder.RecordBootstrap(OutcomeError)
		return nil, fmt.Errorf("re-read profile: %w", err)
	}
	b.recorder.RecordBootstrap(OutcomeRaced)
	log.Debug("Profile created concurrently, using existing row")
	return p, nil
}
