package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"time"

	alertapp "telemetry-hub/internal/alerts/application"
	alerthttp "telemetry-hub/internal/alerts/interfaces/http"
	alertpg "telemetry-hub/internal/alerts/infrastructure/postgres"
	"telemetry-hub/internal/auth"
	"telemetry-hub/internal/monitor"
	"telemetry-hub/internal/notify"
	"telemetry-hub/internal/observability/metrics"
	reportapp "telemetry-hub/internal/reports/application"
	reporthttp "telemetry-hub/internal/reports/interfaces/http"
	reportpg "telemetry-hub/internal/reports/infrastructure/postgres"
	reportwebhook "telemetry-hub/internal/reports/infrastructure/webhook"
	"telemetry-hub/internal/scheduler"
	telemetryapp "telemetry-hub/internal/telemetry/application"
	telemetrypg "telemetry-hub/internal/telemetry/infrastructure/postgres"
	"telemetry-hub/internal/telemetry/interfaces/devicehttp"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	monitorCfg, err := monitor.LoadConfig()
	if err != nil {
		logger.Fatalf("monitor config error: %v", err)
	}
	devices := monitorDevices(monitorCfg)

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init(db, logger)

	readingRepo := telemetrypg.NewReadingRepository(db)
	stateRepo := alertpg.NewStateRepository(db)
	reportRepo := reportpg.NewReportRepository(db)

	ingestService, err := telemetryapp.NewIngestService(readingRepo, telemetryapp.WithLogger(logger))
	if err != nil {
		logger.Fatalf("ingest service error: %v", err)
	}
	ingestHandler, err := devicehttp.NewIngestHandler(ingestService, logger)
	if err != nil {
		logger.Fatalf("ingest handler error: %v", err)
	}
	devicesHandler, err := devicehttp.NewDevicesHandler(ingestService, logger)
	if err != nil {
		logger.Fatalf("devices handler error: %v", err)
	}

	broker := alerthttp.NewSSEBroker()
	alertSinks := []notify.Sink{broker}
	if cfg.AlertWebhookURL != "" {
		channel, err := notify.NewWebhookChannel(cfg.AlertWebhookURL)
		if err != nil {
			logger.Fatalf("alert webhook error: %v", err)
		}
		channelSink, err := notify.NewChannelSink(channel, logger)
		if err != nil {
			logger.Fatalf("alert sink error: %v", err)
		}
		alertSinks = append(alertSinks, channelSink)
	}
	alertSink := notify.NewMultiSink(alertSinks...)

	evaluator, err := alertapp.NewEvaluator(readingRepo, stateRepo, alertapp.Settings{
		InactivityMinutes: monitorCfg.InactivityMinutes,
		ConsecutiveMisses: monitorCfg.StaleConsecutiveMisses,
		AlertCooldown:     monitorCfg.AlertCooldown(),
		HvacTempThreshold: monitorCfg.HvacTempThreshold,
		HvacAlertCooldown: monitorCfg.HvacAlertCooldown(),
	}, alertapp.WithSink(alertSink), alertapp.WithLogger(logger))
	if err != nil {
		logger.Fatalf("evaluator error: %v", err)
	}

	reportSinks := []reportapp.ReportSink{alertSink}
	if cfg.ReportWebhookURL != "" {
		sheet, err := reportwebhook.NewClient(cfg.ReportWebhookURL, reportwebhook.WithLogger(logger))
		if err != nil {
			logger.Fatalf("report webhook error: %v", err)
		}
		reportSinks = append(reportSinks, sheet)
	}
	generator, err := reportapp.NewGenerator(readingRepo, reportRepo,
		reportapp.WithSinks(reportSinks...),
		reportapp.WithLogger(logger),
	)
	if err != nil {
		logger.Fatalf("report generator error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	monitorJob, err := scheduler.NewJob("monitor-cycle", func(ctx context.Context) error {
		started := time.Now()
		result, err := evaluator.RunCycle(ctx, devices)
		if err != nil {
			metrics.ObserveMonitorCycle(metrics.ResultError, time.Since(started))
			return err
		}
		metrics.ObserveMonitorCycle(metrics.ResultSuccess, time.Since(started))
		if len(result.StaleAlerts) > 0 || len(result.HvacAlerts) > 0 {
			logger.Printf("monitor cycle: checked=%d stale=%d hvac=%d",
				len(result.CheckedDevices), len(result.StaleAlerts), len(result.HvacAlerts))
		}
		return nil
	}, logger)
	if err != nil {
		logger.Fatalf("monitor job error: %v", err)
	}
	go scheduler.RunEvery(ctx, monitorCfg.MonitorInterval(), monitorJob)

	reportJob, err := scheduler.NewJob("hourly-report", func(ctx context.Context) error {
		rows, err := generator.GenerateHourly(ctx)
		if err != nil {
			return err
		}
		logger.Printf("hourly report: generated=%d", len(rows))
		return nil
	}, logger)
	if err != nil {
		logger.Fatalf("report job error: %v", err)
	}
	go scheduler.RunHourly(ctx, reportJob)

	alertsHandler, err := alerthttp.NewAlertsHandler(evaluator, stateRepo, devices, logger)
	if err != nil {
		logger.Fatalf("alerts handler error: %v", err)
	}
	runHandler, err := alerthttp.NewRunHandler(evaluator, devices, logger)
	if err != nil {
		logger.Fatalf("run handler error: %v", err)
	}
	reportsHandler, err := reporthttp.NewReportsHandler(generator, logger)
	if err != nil {
		logger.Fatalf("reports handler error: %v", err)
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics", "/ingest", "/devices"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)
	ingestAuth := auth.NewAPIKeyMiddleware(cfg.IngestAPIKey)

	mux := http.NewServeMux()
	mux.Handle("/ingest", ingestAuth.Wrap(ingestHandler))
	mux.Handle("/devices", devicesHandler)
	mux.Handle("/api/v1/alerts", alertsHandler)
	mux.Handle("/api/v1/alerts/stream", alerthttp.NewStreamHandler(broker))
	mux.Handle("/api/v1/monitor/run", runHandler)
	mux.Handle("/api/v1/reports", reportsHandler)
	mux.Handle("/api/v1/reports/", reportsHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger)}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

type config struct {
	DatabaseURL      string
	HTTPAddr         string
	JWTSecret        string
	IngestAPIKey     string
	AlertWebhookURL  string
	ReportWebhookURL string
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:      getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:         getenvDefault("HTTP_ADDR", ":8080"),
		JWTSecret:        getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		IngestAPIKey:     getenvDefault("INGEST_API_KEY", ""),
		AlertWebhookURL:  getenvDefault("ALERT_WEBHOOK_URL", getenvDefault("SLACK_WEBHOOK_URL", "")),
		ReportWebhookURL: getenvDefault("REPORT_WEBHOOK_URL", ""),
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	return cfg
}

func monitorDevices(cfg monitor.Config) []alertapp.Device {
	resolved := cfg.ResolvedDevices()
	devices := make([]alertapp.Device, 0, len(resolved))
	for _, d := range resolved {
		devices = append(devices, alertapp.Device{ID: d.ID, Hvac: d.Hvac})
	}
	return devices
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
