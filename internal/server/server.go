package server

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/mohammad-safakhou/webbuilder/config"
	"github.com/mohammad-safakhou/webbuilder/internal/builder"
	"github.com/mohammad-safakhou/webbuilder/internal/generator"
	"github.com/mohammad-safakhou/webbuilder/internal/pages"
	"github.com/mohammad-safakhou/webbuilder/internal/reconcile"
	"github.com/mohammad-safakhou/webbuilder/internal/runtime"
)

//go:embed web/chat.html
var chatPage string

// Deps are the collaborators the HTTP surface is built from.
type Deps struct {
	Builder        *builder.Builder
	Pages          *pages.Store
	History        historyStore
	Metrics        http.Handler
	UploadsDir     string
	MaxUpload      int64
	CORSOrigins    []string
	RequestTimeout time.Duration
	Debug          bool
	Logger         *log.Logger
}

// NewRouter wires middleware and routes onto a fresh echo instance.
func NewRouter(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Debug = d.Debug
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	baseLogger := d.Logger
	if baseLogger == nil {
		baseLogger = log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	}
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderXRequestID},
	}))
	if d.RequestTimeout > 0 {
		e.Use(middleware.ContextTimeoutWithConfig(middleware.ContextTimeoutConfig{Timeout: d.RequestTimeout}))
	}

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if d.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(d.Metrics))
	}
	e.GET("/chat", func(c echo.Context) error { return c.HTML(http.StatusOK, chatPage) })

	ch := &ChatHandler{Builder: d.Builder, History: d.History}
	ch.Register(e.Group("/api/chat"))

	ph := &PagesHandler{Pages: d.Pages}
	ph.Register(e.Group("/api/pages"))

	gh := &GenerateHandler{Builder: d.Builder, UploadsDir: d.UploadsDir, MaxUpload: d.MaxUpload}
	gh.Register(e.Group("/generate"))

	e.Static("/uploads", d.UploadsDir)
	return e
}

// Run builds every dependency from cfg and serves until ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config) error {
	tele, err := runtime.SetupTelemetry(ctx, cfg.Telemetry, runtime.TelemetryOptions{ServiceName: "webbuilder", ServiceVersion: "dev"})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tele.Shutdown(shutdownCtx)
	}()

	st, err := runtime.OpenStore(ctx, cfg.Storage.Postgres)
	if err != nil {
		return err
	}
	defer st.Close()

	rdb, err := runtime.OpenRedis(ctx, cfg.Storage.Redis)
	if err != nil {
		return err
	}
	var locker pages.Locker
	if rdb != nil {
		defer rdb.Close()
		locker = pages.NewRedisLocker(rdb, cfg.Storage.Redis.LockTTL)
	}
	pageStore := pages.NewStore(pages.Options{
		Dir:    cfg.Storage.UploadsDir,
		Locker: locker,
		Logger: log.New(log.Writer(), "[PAGES] ", log.LstdFlags),
	})

	gen, err := generator.New(cfg.Generator, log.New(log.Writer(), "[GEN] ", log.LstdFlags))
	if err != nil {
		return err
	}
	defer gen.Close()
	log.Printf("generator backend: %s", gen.Backend())

	b := &builder.Builder{
		Generator: gen,
		Pages:     pageStore,
		Record:    st,
		Logger:    log.New(log.Writer(), "[CHAT] ", log.LstdFlags),
	}

	e := NewRouter(Deps{
		Builder:        b,
		Pages:          pageStore,
		History:        st,
		Metrics:        tele.Handler(),
		UploadsDir:     cfg.Storage.UploadsDir,
		MaxUpload:      cfg.Server.MaxUploadBytes,
		CORSOrigins:    cfg.Server.CORSOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
		Debug:          cfg.General.Debug,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if cfg.Reconcile.Enabled {
		rec := &reconcile.Reconciler{
			Dir:    cfg.Storage.UploadsDir,
			Index:  pageStore,
			Rdb:    rdb,
			Logger: log.New(log.Writer(), "[RECONCILE] ", log.LstdFlags),
		}
		go func() {
			if err := rec.Run(ctx, cfg.Reconcile.Schedule); err != nil {
				log.Printf("reconciler stopped: %v", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening on %s", cfg.Server.Address)
		errCh <- e.Start(cfg.Server.Address)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()
		return e.Shutdown(shutdownCtx)
	}
}
