package impl

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"gratia/config"
	"gratia/internal/domain/entity"
	domainerrors "gratia/internal/domain/errors"
	"gratia/internal/domain/service"
	"gratia/internal/infra/deeplink"
	"gratia/internal/usecase"
	"gratia/internal/util"

	"go.uber.org/fx"
)

// authController implements the AuthUsecase state machine. All state lives in
// a single snapshot guarded by mu; every action and every provider event
// mutates the snapshot under the lock and fans the copy out to subscribers
// outside it.
//
// Each action takes a monotonic operation sequence number when it starts.
// Provider events take one too. A continuation that resumes after a network
// round-trip only merges its result when its number is still current, so a
// slow login that resolves after a SIGNED_OUT has landed is dropped instead
// of resurrecting a stale state.
type authController struct {
	provider service.AuthProvider
	logger   *slog.Logger
	limiter  *magicLinkLimiter
	linkOpts service.MagicLinkOptions

	mu       sync.Mutex
	snapshot usecase.AuthSnapshot
	opSeq    uint64
	eventSub service.Subscription

	observers         map[int]func(usecase.AuthSnapshot)
	observerOrder     []int
	identityObservers map[int]func(*entity.Identity)
	identityOrder     []int
	nextObserverID    int
}

var (
	_ usecase.AuthUsecase      = (*authController)(nil)
	_ usecase.IdentityNotifier = (*authController)(nil)
)

// AuthControllerParams holds dependencies for the auth controller, injected by Fx.
type AuthControllerParams struct {
	fx.In

	Config   *config.Config
	Logger   *slog.Logger
	Provider service.AuthProvider
}

// NewAuthController is the constructor for authController. The same instance
// backs both the usecase surface and the identity-change stream the profile
// store subscribes to.
func NewAuthController(params AuthControllerParams) (usecase.AuthUsecase, usecase.IdentityNotifier) {
	ctrl := newAuthController(
		params.Provider,
		params.Logger,
		params.Config.Auth.MagicLinkCooldown,
		time.Now,
	)
	ctrl.linkOpts = service.MagicLinkOptions{ShouldCreateUser: params.Config.Auth.ShouldCreateUser}

	return ctrl, ctrl
}

func newAuthController(
	provider service.AuthProvider,
	logger *slog.Logger,
	cooldown time.Duration,
	now func() time.Time,
) *authController {
	return &authController{
		provider:          provider,
		logger:            logger,
		limiter:           newMagicLinkLimiter(cooldown, now),
		observers:         make(map[int]func(usecase.AuthSnapshot)),
		identityObservers: make(map[int]func(*entity.Identity)),
	}
}

// beginOp claims a new operation sequence number and applies the action's
// synchronous state entry (loading flag etc.) in the same critical section.
func (srv *authController) beginOp(mutate func(*usecase.AuthSnapshot)) uint64 {
	srv.mu.Lock()
	srv.opSeq++
	seq := srv.opSeq
	mutate(&srv.snapshot)
	srv.snapshot.IsAuthenticated = srv.snapshot.Identity != nil
	snapshot, observers := srv.snapshotAndObserversLocked()
	srv.mu.Unlock()

	srv.fanOut(snapshot, observers)

	return seq
}

// resolveOp applies a continuation's result, unless a newer operation or a
// provider event has superseded it. Reports whether the result was merged.
func (srv *authController) resolveOp(seq uint64, mutate func(*usecase.AuthSnapshot)) bool {
	srv.mu.Lock()
	if srv.opSeq != seq {
		srv.mu.Unlock()

		return false
	}
	mutate(&srv.snapshot)
	srv.snapshot.IsAuthenticated = srv.snapshot.Identity != nil
	snapshot, observers := srv.snapshotAndObserversLocked()
	srv.mu.Unlock()

	srv.fanOut(snapshot, observers)

	return true
}

// setState applies a direct mutation outside the operation sequence.
func (srv *authController) setState(mutate func(*usecase.AuthSnapshot)) {
	srv.mu.Lock()
	mutate(&srv.snapshot)
	srv.snapshot.IsAuthenticated = srv.snapshot.Identity != nil
	snapshot, observers := srv.snapshotAndObserversLocked()
	srv.mu.Unlock()

	srv.fanOut(snapshot, observers)
}

func (srv *authController) snapshotAndObserversLocked() (usecase.AuthSnapshot, []func(usecase.AuthSnapshot)) {
	observers := make([]func(usecase.AuthSnapshot), 0, len(srv.observerOrder))
	for _, id := range srv.observerOrder {
		if fn, ok := srv.observers[id]; ok {
			observers = append(observers, fn)
		}
	}

	return srv.snapshot, observers
}

func (srv *authController) fanOut(snapshot usecase.AuthSnapshot, observers []func(usecase.AuthSnapshot)) {
	for _, fn := range observers {
		fn(snapshot)
	}
}

// recoverAction converts a panic in an action into a logged unknown error so
// the loading flag never sticks.
func (srv *authController) recoverAction(action string, errOut *error) {
	r := recover()
	if r == nil {
		return
	}

	srv.logger.Error("Auth action panicked", slog.String("action", action), slog.Any("panic", r))

	err := domainerrors.ErrUnknown
	srv.setState(func(s *usecase.AuthSnapshot) {
		s.IsLoading = false
		s.Error = err
	})

	if errOut != nil {
		*errOut = err
	}
}

// Initialize resolves the persisted session and installs the auth event
// subscription. When a session exists the snapshot flips to authenticated
// before the subscription is established; the event stream then re-asserts or
// corrects that optimistic state.
func (srv *authController) Initialize(ctx context.Context) (err error) {
	defer srv.recoverAction("initialize", &err)

	srv.logger.Debug("Initializing auth state")

	seq := srv.beginOp(func(s *usecase.AuthSnapshot) {
		s.IsLoading = true
		s.Error = nil
	})

	session, err := srv.provider.CurrentSession(ctx)
	if err != nil {
		srv.logger.Error("Failed to resolve current session", slog.Any("error", err))
		srv.resolveOp(seq, func(s *usecase.AuthSnapshot) {
			s.Identity = nil
			s.IsLoading = false
			s.Error = err
		})
		srv.notifyIdentity(nil)
		srv.resubscribe()

		return err
	}

	var identity *entity.Identity
	if session != nil {
		identity = session.Identity.Clone()
	}

	srv.resolveOp(seq, func(s *usecase.AuthSnapshot) {
		s.Identity = identity
	})
	srv.notifyIdentity(identity)

	// The subscription delivers INITIAL_SESSION synchronously, which is the
	// stream's authoritative first word on the session.
	srv.resubscribe()

	srv.setState(func(s *usecase.AuthSnapshot) {
		s.IsLoading = false
	})

	return nil
}

// resubscribe releases the previous event subscription, if any, before
// creating the new one. Exactly one subscription is active at a time.
func (srv *authController) resubscribe() {
	srv.mu.Lock()
	previous := srv.eventSub
	srv.mu.Unlock()

	if previous != nil {
		previous.Unsubscribe()
	}

	sub := srv.provider.OnAuthStateChange(srv.handleEvent)

	srv.mu.Lock()
	srv.eventSub = sub
	srv.mu.Unlock()
}

// Close releases the event subscription.
func (srv *authController) Close() {
	srv.mu.Lock()
	sub := srv.eventSub
	srv.eventSub = nil
	srv.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
}

// handleEvent folds a provider event into the snapshot. Events supersede any
// in-flight action continuation.
func (srv *authController) handleEvent(event entity.AuthEvent) {
	srv.logger.Debug("Auth event received", slog.String("event", string(event.Type)))

	var identity *entity.Identity
	if event.Session != nil {
		identity = event.Session.Identity.Clone()
	}

	srv.mu.Lock()
	srv.opSeq++

	previous := srv.snapshot.Identity

	switch event.Type {
	case entity.EventSignedIn:
		srv.snapshot.Identity = identity
		srv.snapshot.IsLoading = false
		srv.snapshot.Error = nil
		srv.snapshot.MagicLinkSent = false
	case entity.EventSignedOut:
		srv.snapshot.Identity = nil
		srv.snapshot.IsLoading = false
		srv.snapshot.Error = nil
		srv.snapshot.MagicLinkSent = false
	case entity.EventInitialSession, entity.EventTokenRefreshed:
		srv.snapshot.Identity = identity
		srv.snapshot.IsLoading = false
	case entity.EventUserUpdated:
		// Identity replacement only. An update without a session carries no
		// identity to adopt and must not sign the user out.
		if identity != nil {
			srv.snapshot.Identity = identity
		}
	default:
		srv.logger.Warn("Unhandled auth event", slog.String("event", string(event.Type)))
	}

	srv.snapshot.IsAuthenticated = srv.snapshot.Identity != nil
	changed := identityChanged(previous, srv.snapshot.Identity)
	current := srv.snapshot.Identity
	snapshot, observers := srv.snapshotAndObserversLocked()
	srv.mu.Unlock()

	srv.fanOut(snapshot, observers)
	if changed {
		srv.notifyIdentity(current)
	}
}

func identityChanged(previous, current *entity.Identity) bool {
	switch {
	case previous == nil && current == nil:
		return false
	case previous == nil || current == nil:
		return true
	default:
		return previous.ID != current.ID
	}
}

// LoginWithMagicLink dispatches a magic-link send. The cooldown is checked
// before the provider is contacted; a refusal reports the remaining wait.
func (srv *authController) LoginWithMagicLink(ctx context.Context, email string) (err error) {
	defer srv.recoverAction("loginWithMagicLink", &err)

	if !srv.limiter.CanSend() {
		wait := util.FormatDuration(srv.limiter.Remaining())
		err := domainerrors.ErrRateLimited.WithMessage(
			"Please wait " + wait + " before requesting another link.",
		)
		srv.logger.Info("Magic-link send refused by cooldown", slog.String("wait", wait))
		srv.setState(func(s *usecase.AuthSnapshot) {
			s.Error = err
		})

		return err
	}

	seq := srv.beginOp(func(s *usecase.AuthSnapshot) {
		s.IsLoading = true
		s.Error = nil
		s.MagicLinkSent = false
	})

	if err := srv.provider.SignInWithMagicLink(ctx, email, srv.linkOpts); err != nil {
		srv.resolveOp(seq, func(s *usecase.AuthSnapshot) {
			s.IsLoading = false
			s.Error = err
			s.MagicLinkSent = false
		})

		return err
	}

	// The request reached the provider, so the cooldown window starts now
	// even if a newer action has superseded this one.
	sentAt := srv.limiter.RecordSend()

	srv.resolveOp(seq, func(s *usecase.AuthSnapshot) {
		s.IsLoading = false
		s.MagicLinkSent = true
		s.LastMagicLinkRequestAt = sentAt
	})

	return nil
}

// LoginWithGoogle starts the browser OAuth flow. Cancellation is not a
// failure; SIGNED_IN arrives via the event stream once the backend completes
// the exchange.
func (srv *authController) LoginWithGoogle(ctx context.Context) (err error) {
	defer srv.recoverAction("loginWithGoogle", &err)

	seq := srv.beginOp(func(s *usecase.AuthSnapshot) {
		s.IsLoading = true
		s.Error = nil
	})

	err = srv.provider.SignInWithOAuth(ctx, "google")
	if domainerrors.KindOf(err) == domainerrors.KindCancelled {
		srv.logger.Debug("OAuth flow cancelled by user")
		srv.resolveOp(seq, func(s *usecase.AuthSnapshot) {
			s.IsLoading = false
			s.Error = nil
		})

		return nil
	}
	if err != nil {
		srv.resolveOp(seq, func(s *usecase.AuthSnapshot) {
			s.IsLoading = false
			s.Error = err
		})

		return err
	}

	srv.resolveOp(seq, func(s *usecase.AuthSnapshot) {
		s.IsLoading = false
	})

	return nil
}

// ConfirmMagicLink exchanges a token hash from a sign-in link. On success the
// event stream carries the resulting SIGNED_IN; this action only reports
// failures and the ambiguous success-without-identity case.
func (srv *authController) ConfirmMagicLink(ctx context.Context, tokenHash, otpType string) (err error) {
	defer srv.recoverAction("confirmMagicLink", &err)

	seq := srv.beginOp(func(s *usecase.AuthSnapshot) {
		s.IsLoading = true
		s.Error = nil
	})

	result, err := srv.provider.ConfirmMagicLink(ctx, tokenHash, otpType)

	return srv.finishExchange(seq, result, err, "magic-link confirm")
}

// SetSessionFromTokens installs an explicit token pair from an OAuth deep-link
// callback. Same resolution shape as ConfirmMagicLink.
func (srv *authController) SetSessionFromTokens(ctx context.Context, accessToken, refreshToken string) (err error) {
	defer srv.recoverAction("setSessionFromTokens", &err)

	seq := srv.beginOp(func(s *usecase.AuthSnapshot) {
		s.IsLoading = true
		s.Error = nil
	})

	result, err := srv.provider.SetSessionFromTokens(ctx, accessToken, refreshToken)

	return srv.finishExchange(seq, result, err, "token install")
}

func (srv *authController) finishExchange(seq uint64, result *service.ExchangeResult, err error, what string) error {
	if err == nil && (result == nil || result.Identity == nil) {
		err = domainerrors.ErrSessionMissing
	}

	if err != nil {
		srv.logger.Error("Credential exchange failed", slog.String("exchange", what), slog.Any("error", err))
		srv.resolveOp(seq, func(s *usecase.AuthSnapshot) {
			s.IsLoading = false
			s.Error = err
			s.MagicLinkSent = false
		})

		return err
	}

	srv.logger.Debug("Credential exchange succeeded, deferring to event stream",
		slog.String("exchange", what),
		slog.String("userID", result.Identity.ID),
	)

	// The SIGNED_IN event normally lands before this runs and supersedes the
	// sequence number, making this a no-op. It only applies when no event was
	// delivered, so the loading flag cannot stick.
	srv.resolveOp(seq, func(s *usecase.AuthSnapshot) {
		s.IsLoading = false
	})

	return nil
}

// HandleCallbackURL parses an auth deep-link callback and routes it to the
// matching exchange.
func (srv *authController) HandleCallbackURL(ctx context.Context, rawURL string) (err error) {
	defer srv.recoverAction("handleCallbackURL", &err)

	callback, err := deeplink.ParseCallback(rawURL)
	if err != nil {
		srv.logger.Error("Rejected auth callback", slog.Any("error", err))
		srv.setState(func(s *usecase.AuthSnapshot) {
			s.Error = err
		})

		return err
	}

	if callback.HasTokenPair() {
		return srv.SetSessionFromTokens(ctx, callback.AccessToken, callback.RefreshToken)
	}

	return srv.ConfirmMagicLink(ctx, callback.TokenHash, callback.OTPType)
}

// Logout signs out at the provider. A failure leaves the user authenticated;
// only the SIGNED_OUT event finalizes local state.
func (srv *authController) Logout(ctx context.Context) (err error) {
	defer srv.recoverAction("logout", &err)

	srv.logger.Info("Logging out")

	seq := srv.beginOp(func(s *usecase.AuthSnapshot) {
		s.IsLoading = true
		s.Error = nil
	})

	if err := srv.provider.SignOut(ctx); err != nil {
		srv.logger.Error("Logout failed, keeping session", slog.Any("error", err))
		srv.resolveOp(seq, func(s *usecase.AuthSnapshot) {
			s.IsLoading = false
			s.Error = err
		})

		return err
	}

	srv.resolveOp(seq, func(s *usecase.AuthSnapshot) {
		s.IsLoading = false
	})

	return nil
}

// --- Direct setters ---

func (srv *authController) SetLoading(loading bool) {
	srv.setState(func(s *usecase.AuthSnapshot) {
		s.IsLoading = loading
	})
}

func (srv *authController) SetError(err error) {
	srv.setState(func(s *usecase.AuthSnapshot) {
		s.Error = err
	})
}

func (srv *authController) ClearError() {
	srv.setState(func(s *usecase.AuthSnapshot) {
		s.Error = nil
	})
}

func (srv *authController) ResetMagicLinkSent() {
	srv.setState(func(s *usecase.AuthSnapshot) {
		s.MagicLinkSent = false
	})
}

// Snapshot returns a copy of the current state.
func (srv *authController) Snapshot() usecase.AuthSnapshot {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	return srv.snapshot
}

// Subscribe registers a snapshot observer and delivers the current snapshot
// immediately.
func (srv *authController) Subscribe(fn func(usecase.AuthSnapshot)) usecase.Unsubscribe {
	srv.mu.Lock()
	id := srv.nextObserverID
	srv.nextObserverID++
	srv.observers[id] = fn
	srv.observerOrder = append(srv.observerOrder, id)
	snapshot := srv.snapshot
	srv.mu.Unlock()

	fn(snapshot)

	var once sync.Once

	return func() {
		once.Do(func() {
			srv.mu.Lock()
			delete(srv.observers, id)
			srv.observerOrder = pruneOrder(srv.observerOrder, id)
			srv.mu.Unlock()
		})
	}
}

// OnIdentityChange registers an identity observer and delivers the current
// identity immediately. Implements usecase.IdentityNotifier.
func (srv *authController) OnIdentityChange(fn func(*entity.Identity)) usecase.Unsubscribe {
	srv.mu.Lock()
	id := srv.nextObserverID
	srv.nextObserverID++
	srv.identityObservers[id] = fn
	srv.identityOrder = append(srv.identityOrder, id)
	identity := srv.snapshot.Identity
	srv.mu.Unlock()

	fn(identity)

	var once sync.Once

	return func() {
		once.Do(func() {
			srv.mu.Lock()
			delete(srv.identityObservers, id)
			srv.identityOrder = pruneOrder(srv.identityOrder, id)
			srv.mu.Unlock()
		})
	}
}

func pruneOrder(order []int, id int) []int {
	for i, existing := range order {
		if existing == id {
			return append(order[:i], order[i+1:]...)
		}
	}

	return order
}

func (srv *authController) notifyIdentity(identity *entity.Identity) {
	srv.mu.Lock()
	observers := make([]func(*entity.Identity), 0, len(srv.identityOrder))
	for _, id := range srv.identityOrder {
		if fn, ok := srv.identityObservers[id]; ok {
			observers = append(observers, fn)
		}
	}
	srv.mu.Unlock()

	for _, fn := range observers {
		fn(identity)
	}
}
