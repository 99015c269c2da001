package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/printflow/portal/internal/logging"
	"github.com/printflow/portal/internal/portal/profile"
	"github.com/printflow/portal/internal/portal/session"
)

const bearerPrefix = "bearer:"

// Options configures a Registry and the containers it creates.
type Options struct {
	Auth         Authenticator
	Bootstrapper *Bootstrapper
	Profiles     profile.Repository
	Store        session.Store
	Logger       *logging.Logger
	Recorder     Recorder

	// ResetRedirectURL is the redirect_to of password recovery e-mails.
	ResetRedirectURL string
	// ResolveTimeout bounds a background profile resolution.
	ResolveTimeout time.Duration
	// RefreshSkew refreshes tokens this long before they expire.
	RefreshSkew time.Duration
	Now         func() time.Time
}

// Registry maps browser session IDs to their containers. It is created once
// at startup and shared by all handlers.
type Registry struct {
	opts *Options

	mu         sync.Mutex
	containers map[string]*Container
}

// NewRegistry creates a registry. Auth, Profiles and Store are required.
func NewRegistry(opts Options) (*Registry, error) {
	if opts.Auth == nil || opts.Profiles == nil || opts.Store == nil {
		return nil, errors.New("auth registry: authenticator, profile repository and session store are required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewDiscard()
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.Bootstrapper == nil {
		opts.Bootstrapper = NewBootstrapper(opts.Profiles, opts.Logger, opts.Recorder)
	}
	if opts.ResolveTimeout <= 0 {
		opts.ResolveTimeout = 10 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{opts: &opts, containers: make(map[string]*Container)}, nil
}

// Lookup returns the container of an existing session, restoring it from
// the store when this process has not seen it yet. It never creates a
// session.
func (r *Registry) Lookup(ctx context.Context, sessionID string) (*Container, bool, error) {
	if sessionID == "" {
		return nil, false, nil
	}

	r.mu.Lock()
	c := r.containers[sessionID]
	r.mu.Unlock()
	if c != nil {
		c.touch()
		c.refreshIfNeeded(ctx)
		return c, true, nil
	}

	sess, err := r.opts.Store.Get(ctx, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load session: %w", err)
	}

	c, created := r.add(sessionID)
	if created {
		c.restore(sess)
	}
	c.refreshIfNeeded(ctx)
	return c, true, nil
}

// Open returns the container of sessionID, or a fresh anonymous container
// under a new ID when the session is unknown.
func (r *Registry) Open(ctx context.Context, sessionID string) (*Container, error) {
	c, ok, err := r.Lookup(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if ok {
		return c, nil
	}

	id, err := session.NewID()
	if err != nil {
		return nil, fmt.Errorf("new session id: %w", err)
	}
	c, _ = r.add(id)
	return c, nil
}

// Attach returns a container for a verified bearer token. Such sessions are
// never persisted and cannot be refreshed.
func (r *Registry) Attach(accessToken string, identity session.Identity, expiresAt time.Time) *Container {
	sum := sha256.Sum256([]byte(accessToken))
	id := bearerPrefix + hex.EncodeToString(sum[:])

	c, created := r.add(id)
	if created {
		c.restore(&session.Session{
			ID:          id,
			AccessToken: accessToken,
			ExpiresAt:   expiresAt,
			Identity:    identity,
			CreatedAt:   r.opts.Now(),
		})
	} else {
		c.touch()
	}
	return c
}

// Forget drops a container, typically after logout.
func (r *Registry) Forget(sessionID string) {
	r.mu.Lock()
	delete(r.containers, sessionID)
	r.mu.Unlock()
}

// Discard ends a superseded session: the container is forgotten and the
// stored session deleted so the old cookie can no longer restore it. The
// identity service is not called, since its logout revokes every session of
// the user, including one just issued to the same customer.
func (r *Registry) Discard(ctx context.Context, sessionID string) {
	if sessionID == "" || strings.HasPrefix(sessionID, bearerPrefix) {
		return
	}
	r.Forget(sessionID)
	if err := r.opts.Store.Delete(ctx, sessionID); err != nil {
		r.opts.Logger.WithContext(ctx).WithError(err).Warn("Failed to delete superseded session")
	}
}

// Evict drops containers unused for longer than idle. Their sessions stay
// in the store and are restored on the next request.
func (r *Registry) Evict(idle time.Duration) int {
	cutoff := r.opts.Now().Add(-idle)

	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, c := range r.containers {
		if c.idle(cutoff) {
			delete(r.containers, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of live containers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.containers)
}

func (r *Registry) add(id string) (*Container, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.containers[id]; ok {
		return c, false
	}
	c := newContainer(id, r.opts)
	r.containers[id] = c
	return c, true
}
