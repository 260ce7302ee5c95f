package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pulsetrack/pulsetrack/auth"
	"github.com/pulsetrack/pulsetrack/internal/config"
	"github.com/pulsetrack/pulsetrack/kv"
	"github.com/pulsetrack/pulsetrack/ratelimit"
	"github.com/pulsetrack/pulsetrack/server"
	"github.com/pulsetrack/pulsetrack/sessions"
	"github.com/pulsetrack/pulsetrack/users/sqliterepo"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("error running server")
	}
	log.Info().Msg("server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	c, err := config.New()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.Env == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	displayAppname(c.AppName)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	})
	defer redisClient.Close()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	store := kv.NewRedis(redisClient)

	userRepo, err := sqliterepo.Open(c.SQLitePath)
	if err != nil {
		return fmt.Errorf("open user repo: %w", err)
	}
	defer userRepo.Close()

	sessionManager, err := sessions.NewManager(store, c.SessionTTLSeconds)
	if err != nil {
		return fmt.Errorf("create session manager: %w", err)
	}

	flowCtx, cancelFlow := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelFlow()
	flow, err := auth.NewFlow(flowCtx, auth.FlowParams{
		IssuerURL:    c.IssuerURL,
		ClientID:     c.GoogleClientID,
		ClientSecret: c.GoogleClientSecret,
		RedirectURL:  c.RedirectURL(),
		FrontendURL:  c.FrontendURL,
		Production:   c.IsProduction(),
	}, store, sessionManager, userRepo)
	if err != nil {
		return fmt.Errorf("create oauth flow: %w", err)
	}

	limiters, err := buildLimiters(redisClient)
	if err != nil {
		return fmt.Errorf("create rate limiters: %w", err)
	}

	srv, err := server.New(c, flow, sessionManager, limiters)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	httpServer := &http.Server{Addr: c.ListenAddr(), Handler: srv}
	go listenAndServe(httpServer)
	waitForStopSignal()
	return shutdown(httpServer)
}

func buildLimiters(client redis.UniversalClient) (server.Limiters, error) {
	windowStore := ratelimit.NewRedisWindowStore(client)

	var limiters server.Limiters
	for _, entry := range []struct {
		target **ratelimit.Limiter
		config ratelimit.Config
	}{
		{&limiters.Strict, ratelimit.StrictConfig},
		{&limiters.Auth, ratelimit.AuthConfig},
		{&limiters.API, ratelimit.APIConfig},
	} {
		limiter, err := ratelimit.New(entry.config, windowStore)
		if err != nil {
			return server.Limiters{}, err
		}
		*entry.target = limiter
	}
	return limiters, nil
}

func listenAndServe(httpServer *http.Server) {
	log.Info().Str("addr", httpServer.Addr).Msg("server listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("server.ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(httpServer *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
