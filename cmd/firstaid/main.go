package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"alpineworks.io/ootel"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/searchandrescuegg/firstaid/internal/call"
	"github.com/searchandrescuegg/firstaid/internal/config"
	"github.com/searchandrescuegg/firstaid/internal/dragonfly"
	"github.com/searchandrescuegg/firstaid/internal/firstaid"
	"github.com/searchandrescuegg/firstaid/internal/logging"
	"github.com/searchandrescuegg/firstaid/internal/notify"
	"github.com/searchandrescuegg/firstaid/internal/pulsar"
	"github.com/searchandrescuegg/firstaid/internal/server"
	"github.com/searchandrescuegg/firstaid/internal/transcription"
	"github.com/searchandrescuegg/firstaid/internal/vision"
	"github.com/searchandrescuegg/firstaid/pkg/retell"
	"github.com/slack-go/slack"
	"go.opentelemetry.io/contrib/instrumentation/host"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
)

func main() {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	slogLevel, err := logging.LogLevelToSlogLevel(logLevel)
	if err != nil {
		log.Fatalf("could not convert log level: %s", err)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slogLevel,
	})))
	c, err := config.NewConfig()
	if err != nil {
		slog.Error("could not create config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx := context.Background()

	exporterType := ootel.ExporterTypePrometheus
	if c.Local {
		exporterType = ootel.ExporterTypeOTLPGRPC
	}

	ootelClient := ootel.NewOotelClient(
		ootel.WithMetricConfig(
			ootel.NewMetricConfig(
				c.MetricsEnabled,
				exporterType,
				c.MetricsPort,
			),
		),
		ootel.WithTraceConfig(
			ootel.NewTraceConfig(
				c.TracingEnabled,
				c.TracingSampleRate,
				c.TracingService,
				c.TracingVersion,
			),
		),
	)

	shutdown, err := ootelClient.Init(ctx)
	if err != nil {
		slog.Error("could not create ootel client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	err = runtime.Start(runtime.WithMinimumReadMemStatsInterval(5 * time.Second))
	if err != nil {
		slog.Error("could not create runtime metrics", slog.String("error", err.Error()))
		os.Exit(1)
	}

	err = host.Start()
	if err != nil {
		slog.Error("could not create host metrics", slog.String("error", err.Error()))
		os.Exit(1)
	}

	defer func() {
		_ = shutdown(ctx)
	}()

	transcriberHandle := transcription.NewHandle(c)
	defer func() {
		if err := transcriberHandle.Reset(); err != nil {
			slog.Warn("could not close transcriber", slog.String("error", err.Error()))
		}
	}()

	detector, err := vision.NewDetector(c)
	if err != nil {
		slog.Error("could not create vision detector", slog.String("error", err.Error()))
		os.Exit(1)
	}

	chatModel, err := firstaid.NewChatModel(c)
	if err != nil {
		slog.Error("could not create chat model", slog.String("error", err.Error()))
		os.Exit(1)
	}
	narrator := firstaid.NewNarrator(chatModel, c.LLMTemperature, c.LLMMaxTokens)

	var sinks []notify.Sink
	if c.SlackEnabled() {
		sinks = append(sinks, notify.NewSlackSink(slack.New(c.SlackToken), c.SlackChannelID, c.SlackTimeout))
	}
	if c.PulsarEnabled {
		pulsarClient, err := pulsar.NewPublisher(c.PulsarURL, c.PulsarCallEventsTopic)
		if err != nil {
			slog.Error("could not create pulsar client", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer pulsarClient.Close()
		sinks = append(sinks, notify.NewPulsarSink(pulsarClient))
	}
	notifier := notify.NewNotifier(c.NotifyTimeout, sinks...)

	callOptions := []call.Option{call.WithNotifier(notifier)}
	if c.DragonflyEnabled {
		dragonflyClient, err := dragonfly.NewClient(ctx, &redis.Options{
			Addr:     c.DragonflyAddress,
			Password: c.DragonflyPassword,
			DB:       c.DragonflyDB,
		}, c.DragonflyRequestTimeout)
		if err != nil {
			slog.Error("failed to create dragonfly client", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer func() {
			_ = dragonflyClient.Close()
		}()
		callOptions = append(callOptions, call.WithCache(dragonflyClient))
	}

	caller := call.NewCaller(
		retell.NewClient(c.RetellBaseURL, c.RetellAPIKey, c.RetellTimeout, &http.Client{}),
		call.Options{
			APIKey:           c.RetellAPIKey,
			AgentID:          c.RetellAgentID,
			AgentPhoneNumber: c.AgentPhoneNumber,
			UserPhoneNumber:  c.UserPhoneNumber,
			CacheTTL:         c.CallCacheTTL,
		},
		callOptions...,
	)

	srv := server.New(transcription.NewAdapter(transcriberHandle), detector, narrator, caller, server.Options{
		MaxUploadBytes:  c.MaxUploadBytes,
		MaxJSONBytes:    c.MaxJSONBytes,
		TempDir:         c.TempDir,
		AllowedOrigins:  c.CORSAllowedOrigins,
		ResultCacheSize: c.ResultCacheSize,
		ResultCacheTTL:  c.ResultCacheTTL,
	})

	httpServer := &http.Server{
		Addr:              c.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: c.HTTPReadHeaderTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("starting firstaid service",
			slog.String("addr", c.Addr()),
			slog.String("transcription_provider", c.TranscriptionProvider),
			slog.String("vision_strategy", c.VisionStrategy),
			slog.String("llm_provider", c.LLMProvider),
			slog.Int("notification_sinks", len(sinks)),
		)
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-sigChan:
		slog.Info("received shutdown signal, draining requests")
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", slog.String("error", err.Error()))
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, c.HTTPShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("could not shut down http server", slog.String("error", err.Error()))
	}
	slog.Info("http server stopped")
}
