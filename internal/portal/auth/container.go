package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/printflow/portal/internal/logging"
	"github.com/printflow/portal/internal/portal/profile"
	"github.com/printflow/portal/internal/portal/session"
	"github.com/printflow/portal/supabase/client"
)

// Authenticator is the identity service. *client.AuthClient satisfies it.
type Authenticator interface {
	SignInWithPassword(ctx context.Context, email, password string) (*client.AuthResponse, error)
	SignUp(ctx context.Context, params client.SignUpParams) (*client.AuthResponse, error)
	RefreshSession(ctx context.Context, refreshToken string) (*client.AuthResponse, error)
	SignOut(ctx context.Context, accessToken string) error
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
}

// State is the published authentication state of one browser.
type State struct {
	Authenticated bool             `json:"authenticated"`
	Loading       bool             `json:"loading"`
	Profile       *profile.Profile `json:"profile"`
	Reason        string           `json:"reason,omitempty"`
}

// SignupParams is the signup form.
type SignupParams struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	Name        string `json:"name"`
	CompanyName string `json:"company_name,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

const subscriberBuffer = 8

// Container holds one browser's session and profile. Every session change
// bumps the generation, and a profile resolution only lands if its
// generation is still current.
type Container struct {
	id   string
	opts *Options

	// refreshMu serializes token refreshes; refresh tokens are single use.
	refreshMu sync.Mutex

	mu          sync.Mutex
	session     *session.Session
	profile     *profile.Profile
	loading     bool
	reason      string
	generation  uint64
	done        chan struct{}
	subscribers map[chan State]struct{}
	lastUsed    time.Time
}

func newContainer(id string, opts *Options) *Container {
	done := make(chan struct{})
	close(done)
	return &Container{
		id:          id,
		opts:        opts,
		done:        done,
		subscribers: make(map[chan State]struct{}),
		lastUsed:    opts.Now(),
	}
}

// ID returns the browser session ID.
func (c *Container) ID() string {
	return c.id
}

// State returns the current state.
func (c *Container) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastUsed = c.opts.Now()
	return c.stateLocked()
}

// AccessToken returns the session's access token, or "" when signed out.
func (c *Container) AccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.AccessToken
}

// Subscribe returns a channel receiving every published state, starting
// with the current one. Slow readers only miss intermediate states. The
// returned function unsubscribes and closes the channel.
func (c *Container) Subscribe() (<-chan State, func()) {
	ch := make(chan State, subscriberBuffer)

	c.mu.Lock()
	c.subscribers[ch] = struct{}{}
	ch <- c.stateLocked()
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subscribers, ch)
			close(ch)
			c.mu.Unlock()
		})
	}
}

// Wait blocks until no profile resolution is in flight.
func (c *Container) Wait(ctx context.Context) error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Login signs in with a password. The profile is resolved in the
// background; use Wait or Subscribe to observe it.
func (c *Container) Login(ctx context.Context, email, password string) error {
	resp, err := c.opts.Auth.SignInWithPassword(ctx, strings.TrimSpace(email), password)
	if err != nil {
		c.opts.Recorder.RecordAuthOperation("login", "failure")
		c.opts.Logger.LogSecurityEvent(c.logContext(ctx), "login_failed", map[string]interface{}{"error": err.Error()})
		return newError("login", loginFallback, err)
	}
	if err := c.establish(ctx, resp); err != nil {
		c.opts.Recorder.RecordAuthOperation("login", "failure")
		return newError("login", loginFallback, err)
	}
	c.opts.Recorder.RecordAuthOperation("login", "success")
	return nil
}

// Signup creates an account. It reports whether the service requires e-mail
// confirmation, in which case no session is established.
func (c *Container) Signup(ctx context.Context, p SignupParams) (bool, error) {
	data := map[string]any{"name": strings.TrimSpace(p.Name)}
	if v := strings.TrimSpace(p.CompanyName); v != "" {
		data["company_name"] = v
	}
	if v := strings.TrimSpace(p.Phone); v != "" {
		data["phone"] = v
	}

	resp, err := c.opts.Auth.SignUp(ctx, client.SignUpParams{
		Email:    strings.TrimSpace(p.Email),
		Password: p.Password,
		Data:     data,
	})
	if err != nil {
		c.opts.Recorder.RecordAuthOperation("signup", "failure")
		return false, newError("signup", signupFallback, err)
	}
	if resp.AccessToken == "" {
		c.opts.Recorder.RecordAuthOperation("signup", "confirmation_required")
		return true, nil
	}
	if err := c.establish(ctx, resp); err != nil {
		c.opts.Recorder.RecordAuthOperation("signup", "failure")
		return false, newError("signup", signupFallback, err)
	}
	c.opts.Recorder.RecordAuthOperation("signup", "success")
	return false, nil
}

// Logout ends the session. Local state is cleared even when the identity
// service call fails.
func (c *Container) Logout(ctx context.Context) {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()

	if sess != nil {
		if err := c.opts.Auth.SignOut(ctx, sess.AccessToken); err != nil {
			c.opts.Recorder.RecordAuthOperation("logout", "failure")
			c.opts.Logger.WithContext(c.logContext(ctx)).WithError(err).Warn("Remote sign out failed, clearing local session")
		} else {
			c.opts.Recorder.RecordAuthOperation("logout", "success")
		}
	}
	if err := c.opts.Store.Delete(ctx, c.id); err != nil {
		c.opts.Logger.WithContext(c.logContext(ctx)).WithError(err).Warn("Failed to delete stored session")
	}
	c.changeSession(nil)
}

// ResetPassword sends a recovery e-mail that links back to the configured
// reset page.
func (c *Container) ResetPassword(ctx context.Context, email string) error {
	err := c.opts.Auth.ResetPasswordForEmail(ctx, strings.TrimSpace(email), c.opts.ResetRedirectURL)
	if err != nil {
		c.opts.Recorder.RecordAuthOperation("reset_password", "failure")
		return newError("reset_password", resetFallback, err)
	}
	c.opts.Recorder.RecordAuthOperation("reset_password", "success")
	return nil
}

// UpdateProfile writes patch to the loaded profile and merges it locally.
// An empty patch returns the current profile without a write.
func (c *Container) UpdateProfile(ctx context.Context, patch profile.Patch) (*profile.Profile, error) {
	c.mu.Lock()
	if c.profile == nil || c.session == nil {
		c.mu.Unlock()
		return nil, ErrNotAuthenticated
	}
	current := c.profile.Clone()
	token := c.session.AccessToken
	c.mu.Unlock()

	if err := patch.Validate(); err != nil {
		return nil, err
	}
	if patch.Empty() {
		return current, nil
	}

	now := c.opts.Now()
	if err := c.opts.Profiles.Update(client.WithAccessToken(ctx, token), current.ID, patch, now); err != nil {
		c.opts.Recorder.RecordAuthOperation("update_profile", "failure")
		return nil, fmt.Errorf("update profile: %w", err)
	}
	c.opts.Recorder.RecordAuthOperation("update_profile", "success")

	c.mu.Lock()
	defer c.mu.Unlock()
	// The session may have changed while the write was in flight.
	if c.profile != nil && c.profile.ID == current.ID {
		patch.Apply(c.profile)
		c.profile.UpdatedAt = now.UTC().Format(time.RFC3339)
		c.publishLocked()
		return c.profile.Clone(), nil
	}
	patch.Apply(current)
	return current, nil
}

// establish stores a new session from an auth response and publishes it.
func (c *Container) establish(ctx context.Context, resp *client.AuthResponse) error {
	if resp.AccessToken == "" || resp.User == nil || resp.User.ID == "" {
		return errors.New("auth response without session")
	}
	now := c.opts.Now()
	sess := &session.Session{
		ID:           c.id,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    resp.Expiry(now),
		Identity: session.Identity{
			UserID:   resp.User.ID,
			Email:    resp.User.Email,
			Metadata: resp.User.UserMetadata,
		},
		CreatedAt: now,
	}
	if err := c.opts.Store.Put(ctx, sess); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	c.changeSession(sess)
	return nil
}

// restore adopts a session loaded from the store.
func (c *Container) restore(sess *session.Session) {
	c.changeSession(sess)
}

// refreshIfNeeded renews the access token when it is about to expire. A
// failed refresh signs the browser out.
func (c *Container) refreshIfNeeded(ctx context.Context) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	c.mu.Lock()
	sess := c.session.Clone()
	c.mu.Unlock()
	if sess == nil || !sess.NeedsRefresh(c.opts.Now(), c.opts.RefreshSkew) {
		return
	}

	// A refresh outlives the request that noticed it; a disconnecting
	// client must not sign the browser out.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.ResolveTimeout)
	defer cancel()

	log := c.opts.Logger.WithContext(c.logContext(ctx))
	var (
		resp *client.AuthResponse
		err  = errors.New("no refresh token")
	)
	if sess.RefreshToken != "" {
		resp, err = c.opts.Auth.RefreshSession(ctx, sess.RefreshToken)
	}
	if err == nil && resp.User != nil && resp.User.ID != sess.Identity.UserID {
		err = errors.New("refresh returned a different user")
	}
	if err == nil {
		err = c.establish(ctx, resp)
	}
	if err != nil {
		c.opts.Recorder.RecordAuthOperation("refresh", "failure")
		log.WithError(err).Warn("Session refresh failed, signing out")
		if derr := c.opts.Store.Delete(ctx, c.id); derr != nil {
			log.WithError(derr).Warn("Failed to delete stored session")
		}
		c.changeSession(nil)
		return
	}
	c.opts.Recorder.RecordAuthOperation("refresh", "success")
}

// changeSession is the session-change notification. A new identity starts a
// profile resolution; new tokens for the same identity keep the profile.
func (c *Container) changeSession(sess *session.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastUsed = c.opts.Now()

	if sess != nil && c.session != nil && c.profile != nil &&
		sess.Identity.UserID == c.session.Identity.UserID {
		c.session = sess
		return
	}

	c.generation++
	c.session = sess
	c.profile = nil
	c.reason = ""

	if sess == nil {
		c.finishLocked()
		c.publishLocked()
		return
	}

	if !c.loading {
		c.loading = true
		c.done = make(chan struct{})
	}
	c.publishLocked()
	go c.resolve(c.generation, sess.Clone())
}

func (c *Container) resolve(generation uint64, sess *session.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.ResolveTimeout)
	defer cancel()
	ctx = c.logContext(logging.WithUserID(ctx, sess.Identity.UserID))
	ctx = client.WithAccessToken(ctx, sess.AccessToken)

	p, err := c.opts.Bootstrapper.Resolve(ctx, sess.Identity)

	c.mu.Lock()
	defer c.mu.Unlock()
	if generation != c.generation {
		return
	}
	if err != nil {
		c.opts.Logger.WithContext(ctx).WithError(err).Error("Profile resolution failed")
		c.reason = ReasonProfileUnavailable
	}
	c.profile = p
	c.finishLocked()
	c.publishLocked()
}

func (c *Container) finishLocked() {
	if c.loading {
		c.loading = false
		close(c.done)
	}
}

func (c *Container) stateLocked() State {
	return State{
		Authenticated: c.session != nil,
		Loading:       c.loading,
		Profile:       c.profile.Clone(),
		Reason:        c.reason,
	}
}

func (c *Container) publishLocked() {
	state := c.stateLocked()
	for ch := range c.subscribers {
		select {
		case ch <- state:
		default:
			// Drop the oldest queued state so the latest always lands.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- state:
			default:
			}
		}
	}
}

// idle reports whether the container can be evicted.
func (c *Container) idle(cutoff time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.loading && len(c.subscribers) == 0 && c.lastUsed.Before(cutoff)
}

func (c *Container) touch() {
	c.mu.Lock()
	c.lastUsed = c.opts.Now()
	c.mu.Unlock()
}

func (c *Container) logContext(ctx context.Context) context.Context {
	return logging.WithSessionID(ctx, c.id)
}
