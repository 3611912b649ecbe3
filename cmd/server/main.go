package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/pulseapm/alert-engine/pkg/api"
	"github.com/pulseapm/alert-engine/pkg/config"
	"github.com/pulseapm/alert-engine/pkg/notify"
	"github.com/pulseapm/alert-engine/pkg/query"
	"github.com/pulseapm/alert-engine/pkg/scheduler"
	"github.com/pulseapm/alert-engine/pkg/serializer"
	"github.com/pulseapm/alert-engine/pkg/services"
	"github.com/pulseapm/alert-engine/pkg/storage"
	"github.com/pulseapm/alert-engine/pkg/telemetry"
)

func main() {
	// Configure Log Level from Environment Variable
	logLevelStr := os.Getenv("LOG_LEVEL")
	switch strings.ToLower(logLevelStr) {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "info":
		logrus.SetLevel(logrus.InfoLevel)
	case "warn", "warning":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	case "fatal":
		logrus.SetLevel(logrus.FatalLevel)
	case "panic":
		logrus.SetLevel(logrus.PanicLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}
	logrus.Infof("Log level set to: %s", logrus.GetLevel().String())

	// Parse command line flags
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	// Set up the telemetry store client
	tpClient, err := telemetry.NewClient(&cfg.Timeplus)
	if err != nil {
		logrus.Fatalf("Failed to create telemetry client: %v", err)
	}

	ctx := context.Background()
	ser := serializer.NewJSON()

	// Set up persistence (creates the backing streams on first run)
	repo, err := storage.NewTimeplusRepository(ctx, tpClient, ser)
	if err != nil {
		logrus.Fatalf("Failed to create repository: %v", err)
	}

	// Notification sink
	sink, closeSink, err := buildSink(cfg, ser)
	if err != nil {
		logrus.Fatalf("Failed to create notification sink: %v", err)
	}
	defer closeSink()

	// Evaluation pipeline
	builder := query.NewBuilder(telemetry.ResolveMetric)
	orchestrator := services.NewOrchestrator(repo, tpClient, builder, sink, ser)
	orchestrator.Start()

	// Periodic evaluation driven by cron; each tick triggers one async run
	sched := scheduler.NewCronScheduler(func(alertID string) {
		if _, err := orchestrator.EvaluateAlert(ctx, alertID); err != nil {
			logrus.Errorf("Scheduled evaluation of alert %s failed to start: %v", alertID, err)
		}
	})
	sched.Start()

	alertService := services.NewAlertService(repo, sched)
	if err := alertService.ResumeSchedules(ctx); err != nil {
		logrus.Errorf("Failed to resume alert schedules: %v", err)
	}

	// Set up the Echo server
	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	apiHandler := api.NewAPIHandler(alertService, orchestrator)
	apiHandler.SetupRoutes(e)

	// Use PORT environment variable if available, otherwise use config
	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.Server.Port
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", port),
		Handler:      e,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("Starting server on port %s", port)
		if err := e.StartServer(server); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down server...")

	// HTTP stops first so no trigger arrives once the pipeline is draining
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.Fatalf("Server forced to shutdown: %v", err)
	}

	sched.Stop()
	orchestrator.Stop()

	if err := tpClient.Close(); err != nil {
		logrus.Warnf("Error closing telemetry client: %v", err)
	}

	logrus.Info("Server exited properly")
}

// buildSink picks the notification transport from configuration
func buildSink(cfg *config.Config, ser serializer.Serializer) (notify.Sink, func(), error) {
	switch cfg.Notify.Sink {
	case "", "log":
		return notify.NewLogSink(), func() {}, nil
	case "webhook":
		if cfg.Notify.WebhookURL == "" {
			return nil, nil, fmt.Errorf("webhook sink requires notify.webhookUrl")
		}
		return notify.NewWebhookSink(cfg.Notify.WebhookURL, ser), func() {}, nil
	case "kafka":
		sink, err := notify.NewKafkaSink(cfg.Notify.KafkaBrokers, cfg.Notify.KafkaTopic, ser)
		if err != nil {
			return nil, nil, err
		}
		return sink, func() {
			if err := sink.Close(); err != nil {
				logrus.Warnf("Error closing kafka sink: %v", err)
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown notification sink %q", cfg.Notify.Sink)
	}
}
