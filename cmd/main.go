package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"staychat/backend/internal/api/handler"
	"staychat/backend/internal/bootstrap"
	"staychat/backend/internal/chathub"
	"staychat/backend/internal/config"
	"staychat/backend/internal/logging"
	"staychat/backend/internal/metrics"
	"staychat/backend/internal/ratelimit"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

const uploadsPerMinute = 20

func main() {
	configPath := pflag.String("config", "", "path to a YAML config file (default $CONFIG_FILE)")
	addr := pflag.String("addr", "", "listen address, overrides PORT")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		boot := logging.New("production", "info")
		boot.Fatal().Err(err).Msg("invalid configuration")
	}
	log := logging.New(cfg.Env, cfg.LogLevel)
	log.Info().Str("env", cfg.Env).Str("backend", cfg.StoreBackend).Msg("starting staychat backend")

	// 1. Dependencies
	ctx := context.Background()
	store, err := bootstrap.OpenStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("store unavailable")
	}
	jwt, err := bootstrap.JWTManager(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid JWT configuration")
	}

	// 2. Realtime hub
	hub := chathub.NewManagerService(store, chathub.Options{
		TypingTTL:         cfg.TypingTTL,
		SendRatePerMinute: cfg.SendRatePerMinute,
		Logger:            log,
	})
	go hub.Run()

	// 3. HTTP surface
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), logging.GinLogger(log), metrics.GinMiddleware())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	uploads := ratelimit.NewLimiterStore(uploadsPerMinute, 5, time.Minute)
	defer uploads.Stop()

	h := handler.NewHandler(hub, store, jwt, handler.Options{
		UploadDir:      cfg.UploadDir,
		AllowedOrigins: cfg.AllowedOrigins,
		SharedPresence: cfg.RedisURL != "",
		Logger:         log,
	})
	h.RegisterRoutes(r, uploads)

	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	listen := *addr
	if listen == "" {
		listen = ":" + cfg.Port
	}
	server := &http.Server{
		Addr:              listen,
		Handler:           corsHandler(r),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		log.Info().Str("addr", listen).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// 4. Graceful shutdown: HTTP, then hub, then store.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	shutdown(server, hub, store.Close, log)
}

func shutdown(server *http.Server, hub *chathub.ManagerService, closeStore func() error, log zerolog.Logger) {
	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := hub.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("hub shutdown")
	}
	if err := closeStore(); err != nil {
		log.Error().Err(err).Msg("store close")
	}
	log.Info().Msg("stopped")
}
