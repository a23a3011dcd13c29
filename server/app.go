package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"toolcrib/config"
	"toolcrib/internal/api"
	"toolcrib/internal/clock"
	"toolcrib/internal/credentials"
	"toolcrib/internal/db"
	"toolcrib/internal/health"
	"toolcrib/internal/logs"
	"toolcrib/internal/memstore"
	"toolcrib/internal/middleware"
	"toolcrib/internal/notify"
	"toolcrib/internal/reservation"
	"toolcrib/internal/sessions"
	"toolcrib/internal/sweeper"
)

type App struct {
	cfg *config.Config
	db  *gorm.DB

	Backend      *Backend
	Sessions     *sessions.Manager
	Reservations *reservation.Controller
	Router       *mux.Router

	httpServer *http.Server
}

// Initialize собирает хранилища, ядро и роутер. Логгер уже настроен вызывающим.
func (a *App) Initialize(cfg *config.Config) error {
	a.cfg = cfg

	/* 1) Хранилище: БД или память процесса */
	d, err := OpenDB(cfg)
	if err != nil {
		return err
	}
	a.db = d
	if d != nil {
		if err := db.Migrate(d); err != nil {
			return fmt.Errorf("db migrate: %w", err)
		}
		a.Backend = newGormBackend(d, cfg.Locks.Timeout)
	} else {
		logs.Logger.Warn("database.driver is empty: using in-memory store, state is lost on exit")
		a.Backend = newMemBackend(memstore.New(cfg.Locks.Timeout))
	}

	/* 2) Ядро */
	clk := clock.System{}
	a.Sessions = sessions.NewManager(a.Backend.Sessions, clk, cfg.Session.Duration)
	notifier := notify.New(notifyStore{users: a.Backend.Users, notes: a.Backend.Notifications}, clk)
	a.Reservations = reservation.NewController(a.Backend.Inventory, clk, notifier)

	/* 3) Router + middleware */
	a.Router = mux.NewRouter().StrictSlash(true)
	a.Router.Use(
		middleware.RequestID,
		middleware.Recoverer,
		middleware.AccessLog,
	)

	/* 4) Health + API */
	health.RegisterRoutes(a.Router, a.Backend)
	api.RegisterRoutes(a.Router, &api.Handler{
		Sessions:      a.Sessions,
		Auth:          credentials.NewAuthenticator(a.Backend.Users),
		Reservations:  a.Reservations,
		Notifications: a.Backend.Notifications,
	})

	_ = a.Router.Walk(func(rt *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		path, err := rt.GetPathTemplate()
		if err != nil {
			return nil
		}
		methods, _ := rt.GetMethods()
		if len(methods) == 0 {
			return nil
		}
		logs.Logger.Debugf("route: %-6v %s", methods, path)
		return nil
	})
	return nil
}

// OpenDB — gorm по конфигу; nil, nil для in-memory режима.
func OpenDB(cfg *config.Config) (*gorm.DB, error) {
	d, err := db.Open(db.Options{
		Driver:       cfg.Database.Driver,
		DSN:          cfg.Database.DSN,
		LogMode:      cfg.Database.LogMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Run обслуживает HTTP и фоновую уборку до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	if a.Router == nil || a.cfg == nil {
		return errors.New("server not initialized")
	}

	bind := net.JoinHostPort(a.cfg.Server.Address, a.cfg.Server.HTTPPort)
	a.httpServer = &http.Server{
		Addr:              bind,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logs.Logger.Infof("HTTP listening on %s", bind)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return sweeper.New(a.Sessions, a.cfg.Session.SweepInterval).Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logs.Logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.httpServer.Shutdown(sctx); err != nil {
			logs.Logger.Errorf("http shutdown: %v", err)
		}
		return nil
	})

	err := g.Wait()
	if cerr := a.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func (a *App) Close() error {
	if a.db == nil {
		return nil
	}
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
