package impl

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"gratia/config"
	"gratia/internal/domain/entity"
	domainerrors "gratia/internal/domain/errors"
	"gratia/internal/domain/repository"
	"gratia/internal/domain/service"
	"gratia/internal/errors"
	"gratia/internal/usecase"

	"github.com/go-playground/validator/v10"
	"go.uber.org/fx"
)

// profileStore implements the ProfileUsecase interface. It mirrors the remote
// profile row for the current identity, persists the mirror locally, and
// resets itself whenever the identity disappears or changes.
type profileStore struct {
	api       service.ProfileAPI
	cache     repository.ProfileCache
	notifier  usecase.IdentityNotifier
	scheduler service.ReminderScheduler
	logger    *slog.Logger
	validate  *validator.Validate

	maxRetries int
	retryDelay time.Duration

	// sleep and runAsync are injectable for tests.
	sleep    func(ctx context.Context, d time.Duration) error
	runAsync func(fn func())

	mu          sync.Mutex
	snapshot    usecase.ProfileSnapshot
	identityID  string
	identityGen uint64
	notifierSub usecase.Unsubscribe

	observers      map[int]func(usecase.ProfileSnapshot)
	observerOrder  []int
	nextObserverID int
}

var _ usecase.ProfileUsecase = (*profileStore)(nil)

// ProfileStoreParams holds dependencies for the profile store, injected by Fx.
type ProfileStoreParams struct {
	fx.In

	Config    *config.Config
	Logger    *slog.Logger
	API       service.ProfileAPI
	Cache     repository.ProfileCache
	Notifier  usecase.IdentityNotifier
	Scheduler service.ReminderScheduler
}

// NewProfileStore is the constructor for profileStore.
func NewProfileStore(params ProfileStoreParams) usecase.ProfileUsecase {
	return newProfileStore(
		params.API,
		params.Cache,
		params.Notifier,
		params.Scheduler,
		params.Logger,
		params.Config.ProfileSync.MaxRetries,
		params.Config.ProfileSync.RetryDelay,
	)
}

func newProfileStore(
	api service.ProfileAPI,
	cache repository.ProfileCache,
	notifier usecase.IdentityNotifier,
	scheduler service.ReminderScheduler,
	logger *slog.Logger,
	maxRetries int,
	retryDelay time.Duration,
) *profileStore {
	return &profileStore{
		api:        api,
		cache:      cache,
		notifier:   notifier,
		scheduler:  scheduler,
		logger:     logger,
		validate:   validator.New(),
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		sleep: func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
				return nil
			}
		},
		runAsync:  func(fn func()) { go fn() },
		snapshot:  usecase.ProfileSnapshot{Profile: entity.DefaultProfile()},
		observers: make(map[int]func(usecase.ProfileSnapshot)),
	}
}

// Start attaches the store to the identity stream. The notifier delivers the
// current identity immediately, which rehydrates the cache and triggers the
// first fetch when someone is already signed in.
func (srv *profileStore) Start(_ context.Context) error {
	srv.mu.Lock()
	if srv.notifierSub != nil {
		srv.mu.Unlock()

		return errors.New("profile store already started")
	}
	srv.mu.Unlock()

	sub := srv.notifier.OnIdentityChange(srv.handleIdentity)

	srv.mu.Lock()
	srv.notifierSub = sub
	srv.mu.Unlock()

	return nil
}

// Close detaches the store from the identity stream.
func (srv *profileStore) Close() {
	srv.mu.Lock()
	sub := srv.notifierSub
	srv.notifierSub = nil
	srv.mu.Unlock()

	if sub != nil {
		sub()
	}
}

// handleIdentity reacts to sign-in, sign-out and identity swaps. Any change
// resets the mirror to defaults and clears the fetch-attempted flag; the local
// cache is wiped so a stale profile can never leak across identities.
func (srv *profileStore) handleIdentity(identity *entity.Identity) {
	newID := ""
	if identity != nil {
		newID = identity.ID
	}

	srv.mu.Lock()
	if newID == srv.identityID {
		srv.mu.Unlock()

		return
	}

	srv.logger.Info("Identity changed, resetting profile mirror",
		slog.Bool("signedIn", newID != ""),
	)

	srv.identityID = newID
	srv.identityGen++
	srv.snapshot = usecase.ProfileSnapshot{Profile: entity.DefaultProfile()}
	snapshot, observers := srv.profileObserversLocked()
	srv.mu.Unlock()

	srv.fanOut(snapshot, observers)

	if newID == "" {
		if err := srv.cache.Clear(context.Background()); err != nil {
			srv.logger.Warn("Failed to clear profile cache", slog.Any("error", err))
		}

		return
	}

	srv.rehydrate(newID)

	srv.runAsync(func() {
		if err := srv.RefreshProfile(context.Background()); err != nil {
			srv.logger.Warn("Initial profile fetch failed", slog.Any("error", err))
		}
	})
}

// rehydrate adopts the persisted mirror when it belongs to the given identity.
// The remote fetch still runs afterwards; the cache only bridges the gap.
func (srv *profileStore) rehydrate(id string) {
	cached, err := srv.cache.Load(context.Background())
	if err != nil {
		if !errors.Is(err, repository.ErrCacheMiss) {
			srv.logger.Warn("Failed to load profile cache", slog.Any("error", err))
		}

		return
	}

	if cached.ID != id {
		srv.logger.Info("Discarding cached profile for different identity")
		if err := srv.cache.Clear(context.Background()); err != nil {
			srv.logger.Warn("Failed to clear profile cache", slog.Any("error", err))
		}

		return
	}

	srv.setState(func(s *usecase.ProfileSnapshot) {
		s.Profile = cached
	})
}

// RefreshProfile fetches the remote record for the current identity. Network
// failures and not-found (read-after-write lag on a fresh account) are retried
// a bounded number of times with a fixed delay; a record failing schema
// validation is terminal immediately.
func (srv *profileStore) RefreshProfile(ctx context.Context) error {
	srv.mu.Lock()
	id := srv.identityID
	gen := srv.identityGen
	srv.mu.Unlock()

	if id == "" {
		srv.logger.Debug("Skipping profile fetch, no identity")

		return nil
	}

	srv.setState(func(s *usecase.ProfileSnapshot) {
		s.IsLoading = true
		s.Error = nil
		s.FetchAttempted = true
	})

	var lastErr error
	for attempt := 0; attempt <= srv.maxRetries; attempt++ {
		if attempt > 0 {
			if err := srv.sleep(ctx, srv.retryDelay); err != nil {
				lastErr = errors.Wrap(err, "retry wait aborted")

				break
			}
		}

		profile, err := srv.api.GetProfile(ctx, id)
		if err == nil {
			if err := srv.validate.Struct(profile); err != nil {
				lastErr = domainerrors.ErrProfileInvalid.WithDetails(err.Error())
				srv.logger.Error("Fetched profile failed validation", slog.Any("error", err))

				break
			}

			srv.adopt(gen, profile)

			return nil
		}

		lastErr = err
		if !retryableFetchError(err) {
			break
		}

		srv.logger.Warn("Profile fetch attempt failed",
			slog.Int("attempt", attempt+1),
			slog.Any("error", err),
		)
	}

	srv.logger.Error("Profile fetch failed", slog.Any("error", lastErr))
	srv.resolveFetch(gen, func(s *usecase.ProfileSnapshot) {
		s.IsLoading = false
		s.Error = lastErr
	})

	return lastErr
}

// retryableFetchError reports whether a fetch failure is worth another
// attempt. Validation failures are terminal; not-found is retried because a
// freshly created account's row may lag behind its first read.
func retryableFetchError(err error) bool {
	switch domainerrors.KindOf(err) {
	case domainerrors.KindProvider, domainerrors.KindNotFound:
		return true
	default:
		return false
	}
}

// adopt installs a fetched or echoed record as the mirror and persists it,
// unless the identity changed while the round-trip was in flight.
func (srv *profileStore) adopt(gen uint64, profile *entity.Profile) {
	if !srv.resolveFetch(gen, func(s *usecase.ProfileSnapshot) {
		s.Profile = profile.Clone()
		s.IsLoading = false
		s.Error = nil
	}) {
		srv.logger.Debug("Dropping profile result for superseded identity")

		return
	}

	if err := srv.cache.Save(context.Background(), profile); err != nil {
		srv.logger.Warn("Failed to persist profile cache", slog.Any("error", err))
	}
}

// resolveFetch applies a mutation only when the identity generation is still
// current. Reports whether the mutation was applied.
func (srv *profileStore) resolveFetch(gen uint64, mutate func(*usecase.ProfileSnapshot)) bool {
	srv.mu.Lock()
	if srv.identityGen != gen {
		srv.mu.Unlock()

		return false
	}
	mutate(&srv.snapshot)
	snapshot, observers := srv.profileObserversLocked()
	srv.mu.Unlock()

	srv.fanOut(snapshot, observers)

	return true
}

// --- Update actions ---

// UpdateDailyReminderSettings writes the reminder preference through and
// schedules or cancels the reminder push as a best-effort side effect.
func (srv *profileStore) UpdateDailyReminderSettings(ctx context.Context, input *usecase.DailyReminderInput) error {
	if input.Enabled {
		if _, err := time.Parse(entity.ReminderTimeLayout, input.TimeOfDay); err != nil {
			return domainerrors.ErrProfileInvalid.WithDetails("bad reminder time: " + input.TimeOfDay)
		}
	}

	timeOfDay := input.TimeOfDay
	if !input.Enabled {
		timeOfDay = ""
	}

	patch := &service.ProfileUpdate{
		ReminderEnabled: &input.Enabled,
		ReminderTime:    &timeOfDay,
	}

	id, err := srv.writeThrough(ctx, patch, func(p *entity.Profile) {
		p.ReminderEnabled = input.Enabled
		p.ReminderTime = timeOfDay
	})
	if err != nil {
		return err
	}

	srv.runAsync(func() {
		var err error
		if input.Enabled {
			err = srv.scheduler.ScheduleDailyReminder(context.Background(), id, input.TimeOfDay)
		} else {
			err = srv.scheduler.CancelDailyReminder(context.Background(), id)
		}
		if err != nil {
			srv.logger.Warn("Reminder push update failed", slog.Any("error", err))
		}
	})

	return nil
}

// UpdateThrowbackPreferences writes the throwback toggle through.
func (srv *profileStore) UpdateThrowbackPreferences(ctx context.Context, input *usecase.ThrowbackInput) error {
	patch := &service.ProfileUpdate{ThrowbackEnabled: &input.Enabled}

	_, err := srv.writeThrough(ctx, patch, func(p *entity.Profile) {
		p.ThrowbackEnabled = input.Enabled
	})

	return err
}

func (srv *profileStore) SetVariedPrompts(ctx context.Context, enabled bool) error {
	patch := &service.ProfileUpdate{VariedPrompts: &enabled}

	_, err := srv.writeThrough(ctx, patch, func(p *entity.Profile) {
		p.VariedPrompts = enabled
	})

	return err
}

func (srv *profileStore) SetDailyGoal(ctx context.Context, goal int) error {
	if goal < 0 || goal > 50 {
		return domainerrors.ErrProfileInvalid.WithDetails("daily goal out of range")
	}

	patch := &service.ProfileUpdate{DailyGoal: &goal}

	_, err := srv.writeThrough(ctx, patch, func(p *entity.Profile) {
		p.DailyGoal = goal
	})

	return err
}

func (srv *profileStore) SetUsername(ctx context.Context, username string) error {
	if len(username) > 64 {
		return domainerrors.ErrProfileInvalid.WithDetails("username too long")
	}

	patch := &service.ProfileUpdate{Username: &username}

	_, err := srv.writeThrough(ctx, patch, func(p *entity.Profile) {
		p.Username = username
	})

	return err
}

func (srv *profileStore) CompleteOnboarding(ctx context.Context) error {
	onboarded := true
	patch := &service.ProfileUpdate{Onboarded: &onboarded}

	_, err := srv.writeThrough(ctx, patch, func(p *entity.Profile) {
		p.Onboarded = true
	})

	return err
}

// writeThrough sends a partial update and adopts the server's echo of the row.
// On ambiguous success (write accepted, no row returned) it falls back to the
// optimistic local mutation. Returns the identity id the write targeted.
func (srv *profileStore) writeThrough(
	ctx context.Context,
	patch *service.ProfileUpdate,
	optimistic func(*entity.Profile),
) (string, error) {
	srv.mu.Lock()
	id := srv.identityID
	gen := srv.identityGen
	srv.mu.Unlock()

	if id == "" {
		return "", errors.New("no authenticated identity")
	}

	echo, err := srv.api.UpdateProfile(ctx, id, patch)
	if err != nil {
		srv.logger.Error("Profile update failed", slog.Any("error", err))
		srv.resolveFetch(gen, func(s *usecase.ProfileSnapshot) {
			s.Error = err
		})

		return id, err
	}

	if echo != nil {
		srv.adopt(gen, echo)

		return id, nil
	}

	srv.logger.Warn("Profile update returned no row, applying optimistic update")

	var updated *entity.Profile
	srv.resolveFetch(gen, func(s *usecase.ProfileSnapshot) {
		s.Profile = s.Profile.Clone()
		optimistic(s.Profile)
		s.Error = nil
		updated = s.Profile
	})

	if updated != nil {
		if err := srv.cache.Save(context.Background(), updated); err != nil {
			srv.logger.Warn("Failed to persist profile cache", slog.Any("error", err))
		}
	}

	return id, nil
}

// Snapshot returns a copy of the current state.
func (srv *profileStore) Snapshot() usecase.ProfileSnapshot {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	return srv.snapshot
}

// Subscribe registers a snapshot observer and delivers the current snapshot
// immediately.
func (srv *profileStore) Subscribe(fn func(usecase.ProfileSnapshot)) usecase.Unsubscribe {
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
			srv.mu.Unlock()
		})
	}
}

func (srv *profileStore) setState(mutate func(*usecase.ProfileSnapshot)) {
	srv.mu.Lock()
	mutate(&srv.snapshot)
	snapshot, observers := srv.profileObserversLocked()
	srv.mu.Unlock()

	srv.fanOut(snapshot, observers)
}

func (srv *profileStore) profileObserversLocked() (usecase.ProfileSnapshot, []func(usecase.ProfileSnapshot)) {
	observers := make([]func(usecase.ProfileSnapshot), 0, len(srv.observerOrder))
	for _, id := range srv.observerOrder {
		if fn, ok := srv.observers[id]; ok {
			observers = append(observers, fn)
		}
	}

	return srv.snapshot, observers
}

func (srv *profileStore) fanOut(snapshot usecase.ProfileSnapshot, observers []func(usecase.ProfileSnapshot)) {
	for _, fn := range observers {
		fn(snapshot)
	}
}
