package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"gratia/config"
	"gratia/internal/delivery"
	"gratia/internal/delivery/http"
	"gratia/internal/delivery/http/middleware"
	"gratia/internal/delivery/http/router/handler"
	"gratia/internal/domain/service"
	"gratia/internal/infra/auth/supabase"
	"gratia/internal/infra/browser"
	logs "gratia/internal/infra/log"
	"gratia/internal/infra/notification"
	"gratia/internal/infra/persistence/bolt"
	"gratia/internal/usecase"
	"gratia/internal/usecase/impl"

	"go.uber.org/fx"
)

type startServerParams struct {
	fx.In
	fx.Lifecycle

	Deliveries []delivery.Delivery `group:"deliveries"`
}

func main() {
	fx.New(
		injectInfra(),
		injectRepo(),
		injectService(),
		injectUsecase(),
		injectDelivery(),
		injectMiddleware(),
		injectHandler(),
		fx.Invoke(
			startAuth,
			startServer,
		),
	).Run()
}

func injectInfra() fx.Option {
	return fx.Provide(
		config.New,
		logs.New,
		context.Background,
		browser.NewSystemBrowser,
		supabase.NewClient,
		asAuthProvider,
	)
}

// asAuthProvider exposes the concrete client under the provider interface.
func asAuthProvider(client *supabase.Client) service.AuthProvider {
	return client
}

func injectRepo() fx.Option {
	return fx.Options(
		fx.Provide(
			bolt.NewProfileCache,
		),
	)
}

func injectService() fx.Option {
	return fx.Options(
		fx.Provide(
			supabase.NewProfileAPI,
			newReminderScheduler,
		),
	)
}

// newReminderScheduler creates the FCM scheduler, or a logging noop when
// Firebase is not configured.
func newReminderScheduler(ctx context.Context, cfg *config.Config, logger *slog.Logger) (service.ReminderScheduler, error) {
	if cfg.Firebase == nil {
		return notification.NewNoopScheduler(logger), nil
	}

	svc, err := notification.NewFirebaseService(ctx, cfg.Firebase.CredentialsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firebase service: %w", err)
	}

	return svc, nil
}

func injectUsecase() fx.Option {
	return fx.Options(
		fx.Provide(
			impl.NewAuthController,
			impl.NewProfileStore,
		),
	)
}

func injectMiddleware() fx.Option {
	return fx.Options(
		fx.Provide(
			middleware.NewRequestIDMiddleware,
			middleware.NewLoggerMiddleware,
		),
	)
}

func injectHandler() fx.Option {
	return fx.Options(
		fx.Provide(
			handler.NewAuthHandler,
			handler.NewProfileHandler,
		),
	)
}

func injectDelivery() fx.Option {
	return fx.Options(
		fx.Provide(
			fx.Annotate(
				http.NewServer,
				fx.ResultTags(`group:"deliveries"`),
			),
		),
	)
}

type startAuthParams struct {
	fx.In
	fx.Lifecycle

	Auth    usecase.AuthUsecase
	Profile usecase.ProfileUsecase
}

// startAuth wires the profile store to the identity stream before the
// controller resolves the persisted session, so the store sees the very first
// identity the session yields.
func startAuth(params startAuthParams) {
	params.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := params.Profile.Start(ctx); err != nil {
				return err
			}

			if err := params.Auth.Initialize(ctx); err != nil {
				// A failed session resolve is not fatal; the state machine
				// already resolved to signed-out with a safe error.
				slog.Warn("Auth initialization degraded", slog.Any("error", err))
			}

			return nil
		},
		OnStop: func(context.Context) error {
			params.Auth.Close()
			params.Profile.Close()

			return nil
		},
	})
}

func startServer(ctx context.Context, params startServerParams) {
	for _, delivery := range params.Deliveries {
		go func() {
			if err := delivery.Serve(ctx); err != nil {
				slog.Error("Failed to start server", slog.Any("error", err))
				os.Exit(1)
			}
		}()
	}
}
