// Command obcore boots the order-book matching core: Persistent Store,
// Market Cache, Order Book Service, Matching Engine, Session Fan-Out, and
// the External Messaging Sink, wired together with go.uber.org/fx.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/abdoElHodaky/obcore/internal/cache"
	"github.com/abdoElHodaky/obcore/internal/clock"
	"github.com/abdoElHodaky/obcore/internal/config"
	"github.com/abdoElHodaky/obcore/internal/eventbus"
	"github.com/abdoElHodaky/obcore/internal/health"
	"github.com/abdoElHodaky/obcore/internal/matching"
	"github.com/abdoElHodaky/obcore/internal/messaging"
	"github.com/abdoElHodaky/obcore/internal/orderbook"
	"github.com/abdoElHodaky/obcore/internal/session"
	"github.com/abdoElHodaky/obcore/internal/store"
)

var configPath = flag.String("config", "", "path to the config directory")

func main() {
	flag.Parse()

	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			store.Connect,
			store.New,
			cache.New,
			eventbus.New,
			newClock,
			matching.New,
			newDeclinedClearer,
			orderbook.New,
			messaging.New,
			newResolver,
			session.NewHub,
			session.NewRouter,
			health.NewHandler,
			newGinEngine,
		),
		fx.Invoke(
			runMigrations,
			wireNotifier,
			registerHealthRoutes,
			runEventLoops,
			runExpirySweeper,
			startWebSocketServer,
			startHTTPServer,
		),
	)

	app.Run()
}

func newConfig() (*config.Config, error) {
	return config.Load(*configPath)
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Monitoring.LogLevel == "debug" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func newClock() clock.Clock {
	return clock.Real{}
}

func newGinEngine(cfg *config.Config) *gin.Engine {
	if cfg.Monitoring.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	return gin.New()
}

// newResolver wires the inbound messaging resolver. A NATS outage at boot
// surfaces as a startup error through fx rather than a panic deep in the
// matching engine's event loop.
func newResolver(cfg *config.Config, engine *matching.Engine, logger *zap.Logger) (*messaging.Resolver, error) {
	return messaging.NewResolver(cfg, engine, logger)
}

// newDeclinedClearer exposes the already-constructed Matching Engine as the
// narrow interface the Order Book Service needs, without handing it the
// whole Engine type or constructing a second instance.
func newDeclinedClearer(eng *matching.Engine) orderbook.DeclinedClearer {
	return eng
}

func runMigrations(db *gorm.DB, logger *zap.Logger) error {
	return store.Migrate(db, logger)
}

// wireNotifier hands the Matching Engine its External Messaging Sink; kept
// as an fx.Invoke rather than a provider since Engine.SetNotifier mutates
// an already-constructed Engine instead of returning a new value.
func wireNotifier(eng *matching.Engine, sink *messaging.Sink) {
	eng.SetNotifier(sink)
}

func registerHealthRoutes(engine *gin.Engine, h *health.Handler) {
	h.RegisterRoutes(engine)
}

// runEventLoops starts the Matching Engine and Session Fan-Out's
// background loops for the lifetime of the process.
func runEventLoops(lc fx.Lifecycle, eng *matching.Engine, hub *session.Hub, sink *messaging.Sink, resolver *messaging.Resolver, logger *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := eng.Run(ctx); err != nil {
					logger.Error("matching engine stopped", zap.Error(err))
				}
			}()
			go func() {
				if err := hub.Run(ctx); err != nil {
					logger.Error("session fan-out stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			eng.Close()
			resolver.Close()
			sink.Close()
			return nil
		},
	})
}

// runExpirySweeper periodically transitions ACTIVE orders past their
// expires_at to EXPIRED and clears any declined-pairing memory tied to
// them, so a timed-out order stops occupying the book and stops suppressing
// rematches against whatever it was once declined against.
func runExpirySweeper(lc fx.Lifecycle, st *store.Store, eng *matching.Engine, logger *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				ticker := time.NewTicker(time.Minute)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						ids, err := st.Orders.ExpireDue(ctx, time.Now())
						if err != nil {
							logger.Warn("order expiry sweep failed", zap.Error(err))
							continue
						}
						for _, id := range ids {
							eng.ClearDeclinedForOrder(id)
						}
						if len(ids) > 0 {
							logger.Info("expired due orders", zap.Int("count", len(ids)))
						}
					}
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func startWebSocketServer(lc fx.Lifecycle, router *session.Router, cfg *config.Config, logger *zap.Logger) {
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.WebSocket.Host, cfg.WebSocket.Port),
		Handler: router.Mux(cfg.WebSocket.Path),
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				logger.Info("session fan-out listening", zap.String("addr", srv.Addr), zap.String("path", cfg.WebSocket.Path))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal("websocket server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

func startHTTPServer(lc fx.Lifecycle, engine *gin.Engine, cfg *config.Config, logger *zap.Logger) {
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: engine,
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				logger.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
