package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danandika/civic-report/internal"
	"github.com/danandika/civic-report/internal/auth"
	"github.com/danandika/civic-report/internal/category"
	categoryPostgres "github.com/danandika/civic-report/internal/category/postgres"
	"github.com/danandika/civic-report/internal/core/events"
	"github.com/danandika/civic-report/internal/entitlement"
	entitlementPostgres "github.com/danandika/civic-report/internal/entitlement/postgres"
	"github.com/danandika/civic-report/internal/issue"
	issuePostgres "github.com/danandika/civic-report/internal/issue/postgres"
	"github.com/danandika/civic-report/internal/paymentgateway"
	"github.com/danandika/civic-report/internal/transport"
	"github.com/danandika/civic-report/internal/transport/rest"
	"github.com/danandika/civic-report/internal/transport/swagger"
	"github.com/danandika/civic-report/internal/user"
	userPostgres "github.com/danandika/civic-report/internal/user/postgres"
	"github.com/danandika/civic-report/pkg/logger"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config  *internal.Config
	DB      *sqlx.DB
	Router  *chi.Mux
	Sandbox *paymentgateway.Sandbox
	Logger  *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      deps.Router,
		ReadTimeout:  deps.Config.Server.ReadTimeout,
		WriteTimeout: deps.Config.Server.WriteTimeout,
		IdleTimeout:  deps.Config.Server.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("received signal, shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("server shutdown error", "error", err)
		}
		if deps.Sandbox != nil {
			deps.Sandbox.Shutdown()
		}
		if err := deps.DB.Close(); err != nil {
			deps.Logger.Error("database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	cfg, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(os.Getenv("APP_ENV"))
	appLogger := logger.LoggerWrapper()

	db, err := initDB(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := initGormDB(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize orm: %w", err)
	}

	if err := swagger.ValidateSpec(context.Background(), "./api/openapi.yml"); err != nil {
		appLogger.Warn("openapi document failed validation", "error", err)
	}

	// repositories
	userRepo := userPostgres.NewUserRepository(gormDB)
	issueRepo := issuePostgres.NewIssueRepository(gormDB)
	paymentRepo := entitlementPostgres.NewPaymentRepository(gormDB)
	categoryRepo := categoryPostgres.NewCategoryRepository(gormDB)

	// services
	userService := user.NewService(userRepo, issueRepo, paymentRepo, cfg.Quota.FreeIssueLimit, appLogger)
	issueService := issue.NewService(issueRepo, userRepo, paymentRepo, cfg.Quota.FreeIssueLimit, appLogger)
	categoryService := category.NewService(categoryRepo, appLogger)

	tokenGen := auth.NewJWTTokenGenerator(
		cfg.Security.AccessTokenSecret,
		cfg.Security.RefreshTokenSecret,
		cfg.Security.AccessTokenDuration,
		cfg.Security.RefreshTokenDuration,
	)
	authService := auth.NewService(userService, tokenGen, cfg.Security.BCryptCost, appLogger)

	gateway, sandbox := buildGateway(cfg.Stripe, appLogger)

	eventBus := events.NewEventBus(appLogger)
	entitlement.NewEventHandler(appLogger).RegisterEventHandlers(eventBus)

	pricing := entitlement.Pricing{
		Currency:      cfg.Stripe.Currency,
		MonthlyAmount: cfg.Stripe.MonthlyAmount,
		YearlyAmount:  cfg.Stripe.YearlyAmount,
		BoostAmount:   cfg.Stripe.BoostAmount,
		SuccessURL:    cfg.Stripe.SuccessURL,
		CancelURL:     cfg.Stripe.CancelURL,
	}
	entitlementService := entitlement.NewService(gateway, paymentRepo, userService, issueService, eventBus, pricing, appLogger)

	// handlers
	baseHandler := transport.NewBaseHandler(appLogger)
	authHandler := auth.NewHandler(baseHandler, authService)
	userHandler := user.NewHandler(baseHandler, userService)
	issueHandler := issue.NewHandler(baseHandler, issueService)
	categoryHandler := category.NewHandler(baseHandler, categoryService)
	entitlementHandler := entitlement.NewHandler(baseHandler, entitlementService)

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, db.DB, authHandler, userHandler, issueHandler, categoryHandler, entitlementHandler, appLogger)

	if sandbox != nil {
		// in-process gateway simulator, reachable for manual poking
		router.Mount("/sandbox", sandbox.Handler())
	}

	return &Dependencies{
		Config:  cfg,
		Logger:  appLogger,
		DB:      db,
		Router:  router,
		Sandbox: sandbox,
	}, nil
}

// buildGateway picks the checkout implementation. Live mode talks to the
// Stripe API; sandbox mode runs the in-process simulator, which also gets
// mounted on the router so sessions can be inspected and settled by hand.
func buildGateway(cfg internal.StripeConfig, appLogger *slog.Logger) (entitlement.Gateway, *paymentgateway.Sandbox) {
	if cfg.Mode == "sandbox" {
		sandbox := paymentgateway.NewSandbox(paymentgateway.SandboxConfig{}, appLogger)
		return sandbox, sandbox
	}

	client := paymentgateway.NewClient(paymentgateway.Config{
		APIBaseURL: cfg.APIBaseURL,
		SecretKey:  cfg.SecretKey,
		Timeout:    cfg.Timeout,
	}, appLogger)
	return client, nil
}

// initDB initializes the plain database connection used for health checks
// and migrations.
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	driver := "pgx"
	if cfg.Driver == "sqlite" {
		// registered by the gorm sqlite dialector's underlying driver
		driver = "sqlite3"
	}

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)

	// verify connection; close underlying *sql.DB on failure
	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

// initGormDB opens the ORM connection used by the repositories.
// TranslateError is required so unique violations surface as
// gorm.ErrDuplicatedKey, which the payment repository leans on for
// idempotent verification.
func initGormDB(cfg internal.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.Source)
	default:
		dialector = postgres.Open(cfg.Source)
	}

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open orm connection: %w", err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access underlying db: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return gormDB, nil
}
