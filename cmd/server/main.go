package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hongjun500/chat-relay/internal/bus/redisbus"
	"github.com/hongjun500/chat-relay/internal/config"
	"github.com/hongjun500/chat-relay/internal/observe"
	"github.com/hongjun500/chat-relay/internal/relay"
	"github.com/hongjun500/chat-relay/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.L().Fatal("config_error", zap.Error(err))
	}
	logger.SetLevel(cfg.LogLevel)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.L().Error("server_exit", zap.Error(err))
		os.Exit(1)
	}
	logger.L().Info("server_stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logger.Named("relay")

	opts := relay.Options{
		ReadBuffer:   cfg.ReadBuffer,
		WriteTimeout: cfg.WriteTimeout,
		Echo:         cfg.Echo,
		Farewell:     relay.Frame(cfg.Farewell),
		Display:      newDisplay(cfg.History, log),
		Logger:       log,
	}

	var bus *redisbus.Bus
	if cfg.FederationEnabled() {
		bus = redisbus.New(cfg.RedisAddr, cfg.RedisDB, cfg.RedisChannel, logger.Named("bus"))
		defer bus.Close()
		if err := bus.Ping(ctx); err != nil {
			return err
		}
		opts.Forwarder = bus
	}

	r := relay.New(opts)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := r.ListenAndServe(cfg.TCPAddr)
		if errors.Is(err, relay.ErrRelayClosed) {
			return nil
		}
		return err
	})

	var servers []*http.Server
	if cfg.WSAddr != "" {
		mux := http.NewServeMux()
		mux.Handle(cfg.WSPath, relay.NewWebSocketHandler(r, cfg.ReadBuffer))
		servers = append(servers, &http.Server{Addr: cfg.WSAddr, Handler: mux})
		log.Info("websocket_listen", zap.String("addr", cfg.WSAddr), zap.String("path", cfg.WSPath))
	}
	if cfg.HTTPAddr != "" {
		servers = append(servers, observe.NewHTTPServer(cfg.HTTPAddr, r.Healthy))
		log.Info("observe_listen", zap.String("addr", cfg.HTTPAddr))
	}
	for _, srv := range servers {
		srv := srv
		g.Go(func() error {
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	if bus != nil {
		g.Go(func() error {
			if err := bus.RunPublisher(gctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			err := bus.Consume(gctx, func(f relay.Frame) { r.Inject(f) })
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	// 收到信号或任一组件失败时统一关停
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		var err error
		for _, srv := range servers {
			if serr := srv.Shutdown(shutdownCtx); serr != nil {
				err = multierr.Append(err, serr)
			}
		}
		if rerr := r.Shutdown(shutdownCtx); rerr != nil && !errors.Is(rerr, relay.ErrRelayClosed) {
			err = multierr.Append(err, rerr)
		}
		return err
	})

	return g.Wait()
}

func newDisplay(kind string, log *zap.Logger) relay.Display {
	switch kind {
	case "stdout":
		return relay.NewWriterDisplay(os.Stdout)
	case "none":
		return relay.NopDisplay{}
	default:
		return relay.LogDisplay{Log: log.Named("history")}
	}
}
