package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/Vamsi-o/collaborative-workspace/internal/jobs"
	"github.com/Vamsi-o/collaborative-workspace/internal/presence"
	"github.com/Vamsi-o/collaborative-workspace/internal/router"
	"github.com/Vamsi-o/collaborative-workspace/internal/server/middleware"
	"github.com/Vamsi-o/collaborative-workspace/pkg/auth"
	"github.com/Vamsi-o/collaborative-workspace/pkg/backbone"
	"github.com/Vamsi-o/collaborative-workspace/pkg/config"
	"github.com/Vamsi-o/collaborative-workspace/pkg/state"
	"github.com/Vamsi-o/collaborative-workspace/pkg/state/statemanager"
	"github.com/Vamsi-o/collaborative-workspace/pkg/transport"
	"github.com/coder/websocket"
	"github.com/google/uuid"
)

var (
	ErrConnectionCycled = errors.New("connection cycled by new connection")
	ErrServerShutdown   = errors.New("graceful shutdown")
)

type App struct {
	logger      *slog.Logger
	sessions    state.Manager
	presence    *presence.Service
	eventRouter *router.EventRouter
	jobs        *jobs.Service
	bb          backbone.Backbone
	config      *config.Config

	wg      sync.WaitGroup
	handler http.Handler
	http    *http.Server
	sub     backbone.Subscription

	shutdownOnce sync.Once
	shutdownErr  error

	ctx context.Context
}

// NewApp wires the HTTP surface. jobSvc may be nil, in which case the /jobs
// routes are not mounted.
func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *config.Config, bb backbone.Backbone, jobSvc *jobs.Service) *App {
	sessions := statemanager.NewInMemoryManager(logger)
	presenceSvc := presence.NewService(logger, sessions, bb, presence.Options{
		SweepTimeout: cfg.Backbone.SweepTimeout,
	})

	app := &App{
		logger:      logger,
		sessions:    sessions,
		presence:    presenceSvc,
		eventRouter: router.NewEventRouter(logger, sessions, presenceSvc),
		jobs:        jobSvc,
		bb:          bb,
		config:      cfg,
		ctx:         rootCtx,
	}

	connCounter := middleware.UserConnectionCounter(sessions.GetUserSessionCount)
	connCycler := func(userID string) {
		oldest, found := sessions.FindOldestUserSession(userID)
		if found {
			logger.Info("Cycling connection: closing oldest", slog.String("userID", userID), slog.String("sessID", oldest.ID.String()))
			oldest.Transport.Close(ErrConnectionCycled)
		}
	}
	gate := middleware.NewAuthMiddleware(logger, auth.NewVerifier(cfg.Server.Auth.JWTSecret))

	mux := http.NewServeMux()
	mux.Handle("/ws",
		middleware.Chain(http.HandlerFunc(app.upgradeHandler),
			middleware.RequestMetadataMiddleware(),
			middleware.NewRequestLogger(logger),
			gate,
			middleware.NewConnectionLimiter(logger, connCounter, connCycler, cfg.Server.ConnectionLimit),
		),
	)
	if jobSvc != nil {
		mux.Handle("POST /jobs", middleware.Chain(http.HandlerFunc(app.submitJob),
			middleware.RequestMetadataMiddleware(),
			middleware.NewRequestLogger(logger),
			gate,
		))
		mux.Handle("GET /jobs/{id}", middleware.Chain(http.HandlerFunc(app.getJob),
			middleware.RequestMetadataMiddleware(),
			middleware.NewRequestLogger(logger),
			gate,
		))
	}
	app.handler = mux

	app.http = &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(l net.Listener) context.Context {
			return app.ctx
		},
	}
	return app
}

func (a *App) Handler() http.Handler {
	return a.handler
}

// Start subscribes this process to the backbone. It must succeed before any
// client is admitted, otherwise their broadcasts would go nowhere.
func (a *App) Start(ctx context.Context) error {
	sub, err := a.bb.Subscribe(ctx, a.presence.Deliver)
	if err != nil {
		return fmt.Errorf("subscribing to backbone: %w", err)
	}
	a.sub = sub
	return nil
}

// Run serves until the root context ends, then shuts down.
func (a *App) Run() error {
	if err := a.Start(a.ctx); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", a.http.Addr)
	if err != nil {
		_ = a.Shutdown()
		return fmt.Errorf("listening on %s: %w", a.http.Addr, err)
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("Server starting", slog.String("addr", ln.Addr().String()))
		if err := a.http.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-a.ctx.Done():
		return a.Shutdown()
	case err := <-serveErr:
		a.logger.Error("HTTP server failed", slog.Any("error", err))
		_ = a.Shutdown()
		return err
	}
}

func (a *App) acceptOptions() *websocket.AcceptOptions {
	origins := a.config.Server.AllowedOrigins
	if len(origins) == 0 || slices.Contains(origins, "*") {
		return &websocket.AcceptOptions{InsecureSkipVerify: true}
	}
	return &websocket.AcceptOptions{OriginPatterns: origins}
}

func (a *App) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, _ := middleware.ReqMetadataFrom(r.Context())
	connLogger := a.logger.With(
		slog.String("remoteAddr", reqMeta.IP),
		slog.String("userID", reqMeta.Identity.UserID),
	)

	wsConn, err := websocket.Accept(w, r, a.acceptOptions())
	if err != nil {
		connLogger.Error("Failed to accept websocket connection", slog.Any("error", err))
		return
	}

	conn := transport.NewConnection(
		r.Context(),
		&a.wg,
		wsConn,
		transport.ConnectionConfig(a.config.Transport),
		a.eventRouter.HandleMessage,
		nil,
		a.logger,
	)
	sess := state.NewSession(conn.ID(), reqMeta.IP, reqMeta.Identity, conn)
	conn.SetOnCloseHandler(func(id uuid.UUID, err error) {
		connLogger.Info("Deregistering session due to closure", slog.String("sessID", id.String()))
		a.presence.Disconnect(sess)
	})

	if err := a.presence.Connect(sess); err != nil {
		connLogger.Error("Failed to register session", slog.Any("error", err))
		conn.Close(err)
		return
	}

	connLogger.Info("User connection fully established", slog.String("sessID", sess.ID.String()))
	conn.Run()
	<-conn.Done()
}

// Shutdown stops accepting requests, closes every session and waits for their
// leave announcements before dropping the backbone subscription. Safe to call
// more than once.
func (a *App) Shutdown() error {
	a.shutdownOnce.Do(func() {
		a.shutdownErr = a.shutdown()
	})
	return a.shutdownErr
}

func (a *App) shutdown() error {
	a.logger.Info("Shutting down server...")
	timeout := a.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}

	// hijacked websocket connections are not tracked by http.Server
	sessions := a.sessions.GetAllSessions()
	a.logger.Info("Closing all active connections...", slog.Int("count", len(sessions)))
	for _, sess := range sessions {
		sess.Transport.Close(ErrServerShutdown)
	}

	drained := make(chan struct{})
	go func() {
		a.wg.Wait()
		a.presence.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		errs = append(errs, fmt.Errorf("waiting for connections to drain: %w", shutdownCtx.Err()))
	}

	if a.sub != nil {
		if err := a.sub.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	a.logger.Info("Server shut down gracefully.")
	return nil
}
