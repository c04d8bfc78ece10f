package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bitableTimesheet/internal/bitable"
	"bitableTimesheet/internal/handlers"
	"bitableTimesheet/internal/logger"
	"bitableTimesheet/internal/models"
	"bitableTimesheet/internal/services"
	"bitableTimesheet/internal/session"
	"bitableTimesheet/internal/sms"
)

type App struct {
	Config       *Config
	Logger       *logger.Logger
	SessionStore *sessions.CookieStore
	Tokens       *bitable.TokenCache
	Bitable      *bitable.Client
	Codes        *session.CodeStore
	RateLimits   *RateLimits

	Timesheet *handlers.TimesheetHandlers
	Auth      *handlers.AuthHandlers
	Debug     *handlers.DebugHandlers
}

func main() {
	config, err := LoadConfig()
	if err != nil {
		logger.NewLogger("ERROR", os.Stderr).WithError(err).Fatal("Failed to load configuration")
	}

	log := logger.New(config.LogLevel, config.Environment)
	app := NewApp(config, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	app.Start(ctx)

	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           app.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      config.HTTPTimeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.WithFields(logger.Fields{
			"port":        config.Port,
			"environment": config.Environment,
			"filter_mode": config.FilterMode,
			"debug_mode":  config.DebugMode,
		}).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("Shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server shutdown error")
	}
}

// NewApp wires the Bitable client, services and handlers from config.
func NewApp(config *Config, log *logger.Logger) *App {
	httpClient := &http.Client{Timeout: config.HTTPTimeout}
	upstreamLog := log.With(logger.Fields{"component": "bitable"})

	tokens := bitable.NewTokenCache(bitable.TokenCacheConfig{
		BaseURL:    config.BitableBaseURL,
		AppID:      config.BitableAppID,
		AppSecret:  config.BitableAppSecret,
		HTTPClient: httpClient,
		Logger:     upstreamLog,
	})
	client := bitable.NewClient(bitable.ClientConfig{
		BaseURL:  config.BitableBaseURL,
		PageSize: config.PageSize,
		Timeout:  config.HTTPTimeout,
		Logger:   upstreamLog,
	}, tokens)

	timesheetTable := bitable.TableRef{AppToken: config.BitableAppToken, TableID: config.TimesheetTableID}
	rosterTable := bitable.TableRef{AppToken: config.RosterAppToken, TableID: config.RosterTableID}
	employeeTable := rosterTable
	if config.EmployeeTableID != "" {
		employeeTable = bitable.TableRef{AppToken: config.BitableAppToken, TableID: config.EmployeeTableID}
	}

	fields := models.FieldMap{
		Date:      config.FieldDate,
		Project:   config.FieldProject,
		StartTime: config.FieldStartTime,
		EndTime:   config.FieldEndTime,
		Hours:     config.FieldHours,
		Person:    config.FieldPerson,
	}

	timesheetSvc := services.NewTimesheetService(client, bitable.NewFieldResolver(client, upstreamLog), services.TimesheetConfig{
		Table:       timesheetTable,
		Fields:      fields,
		FilterMode:  services.ParseFilterMode(config.FilterMode),
		UseFieldIDs: config.UseFieldIDs,
		Location:    config.Location,
	}, log)

	directorySvc := services.NewDirectoryService(log,
		services.NewRosterSource(client, rosterTable, config.RosterNameField),
		services.NewTimesheetScanSource(client, timesheetTable, config.FieldPerson),
	)

	codes := session.NewCodeStore(session.CodeStoreConfig{
		CodeTTL:  config.CodeTTL,
		Cooldown: config.CodeCooldown,
	})
	issuer := session.NewIssuer(config.SessionSecret, session.DefaultIssuer, config.SessionTTL)

	var sender sms.Sender = sms.LogSender{Logger: log.With(logger.Fields{"component": "sms"})}
	switch {
	case config.SMSWebhookURL != "":
		sender = sms.NewHTTPSender(config.SMSWebhookURL, config.SMSAPIKey, config.HTTPTimeout)
	case !config.DebugMode:
		log.Warn("SMS_WEBHOOK_URL is not set and DEBUG_MODE is off: login codes cannot be delivered")
	}

	authSvc := services.NewAuthService(
		services.NewPhoneDirectory(client, employeeTable, config.EmployeePhoneField, config.EmployeeNameField, config.SMSCountryCode),
		codes, issuer, sender,
		services.AuthConfig{DebugMode: config.DebugMode, CountryCode: config.SMSCountryCode},
		log,
	)

	store := handlers.NewCookieStore(config.CookieSecret, config.Environment == "production")

	return &App{
		Config:       config,
		Logger:       log,
		SessionStore: store,
		Tokens:       tokens,
		Bitable:      client,
		Codes:        codes,
		RateLimits:   NewRateLimits(config),
		Timesheet:    handlers.NewTimesheetHandlers(timesheetSvc, directorySvc, authSvc, store, log),
		Auth:         handlers.NewAuthHandlers(authSvc, store, log),
		Debug:        handlers.NewDebugHandlers(services.NewDebugService(client), timesheetTable, rosterTable, log),
	}
}

// Start launches the background cleanup loops; they stop with ctx.
func (app *App) Start(ctx context.Context) {
	app.Codes.StartCleanup(ctx, time.Minute)
	app.RateLimits.Start(ctx)
}

// Router registers every route behind the middleware chain.
func (app *App) Router() *mux.Router {
	r := mux.NewRouter()

	r.Use(app.RecoveryMiddleware)
	r.Use(app.LoggingMiddleware)
	r.Use(app.CORSMiddleware)
	r.Use(app.RateLimitMiddleware(app.RateLimits))

	r.HandleFunc("/ping", handlers.HandlePing).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/timesheet", app.Timesheet.HandleTimesheet).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/people", app.Timesheet.HandlePeople).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/request_code", app.Auth.HandleRequestCode).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/verify_code", app.Auth.HandleVerifyCode).Methods(http.MethodPost, http.MethodOptions)

	if app.Config.DebugRoutes {
		api.HandleFunc("/debug-record", app.Debug.HandleDebugRecord).Methods(http.MethodGet)
		api.HandleFunc("/debug-people", app.Debug.HandleDebugPeople).Methods(http.MethodGet)
		app.Logger.Warn("Debug endpoints enabled")
	}

	return r
}
