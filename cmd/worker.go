package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danandika/civic-report/internal/core/events"
	"github.com/danandika/civic-report/internal/paymentgateway"
	"github.com/danandika/civic-report/pkg/logger"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run background workers",
	Long:  `Run background worker processes.`,
}

// Standalone payment gateway simulator. Useful when the API server runs in
// live mode but checkout traffic should hit a local endpoint instead of
// Stripe.
var gatewayWorkerCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the checkout gateway simulator",
	Long:  `Start a standalone HTTP server that mimics the Stripe checkout session API.`,
	Run: func(cmd *cobra.Command, args []string) {
		startGatewayWorker()
	},
}

var eventWorkerCmd = &cobra.Command{
	Use:   "events",
	Short: "Start event bus worker",
	Long:  `Start the event bus`,
	Run: func(cmd *cobra.Command, args []string) {
		startEventWorker()
	},
}

var (
	gatewayPort  int
	settleDelay  time.Duration
	maxWorkers   int
	jobQueueSize int
)

func startGatewayWorker() {
	logger.Init(os.Getenv("APP_ENV"))
	appLogger := logger.LoggerWrapper()

	sandbox := paymentgateway.NewSandbox(paymentgateway.SandboxConfig{
		SettleDelay:  settleDelay,
		MaxWorkers:   maxWorkers,
		JobQueueSize: jobQueueSize,
	}, appLogger)

	addr := fmt.Sprintf(":%d", gatewayPort)
	server := &http.Server{
		Addr:    addr,
		Handler: sandbox.Handler(),
	}

	appLogger.Info("starting gateway simulator",
		"address", addr,
		"settle_delay", settleDelay,
		"max_workers", maxWorkers,
		"job_queue_size", jobQueueSize)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		appLogger.Info("received signal, shutting down gateway simulator", "signal", sig)
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			appLogger.Error("gateway simulator failed to start", "error", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		appLogger.Error("gateway simulator shutdown error", "error", err)
	}

	shutdownDone := make(chan struct{})
	go func() {
		sandbox.Shutdown()
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
		appLogger.Info("gateway worker pool shutdown complete")
	case <-ctx.Done():
		appLogger.Warn("shutdown timeout reached, forcing exit")
	}
}

func startEventWorker() {
	logger.Init(os.Getenv("APP_ENV"))
	appLogger := logger.LoggerWrapper()

	eventBus := events.NewEventBus(appLogger)

	eventBus.Subscribe("test.event", func(ctx context.Context, event events.Event) error {
		appLogger.Info("received test event",
			"event_id", event.EventID(),
			"event_type", event.EventType(),
			"payload", event.Payload())
		return nil
	})

	appLogger.Info("event bus worker started. Waiting for events...")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	appLogger.Info("received signal, shutting down event bus", "signal", sig)
	appLogger.Info("event bus shutdown complete")
}

func init() {
	gatewayWorkerCmd.Flags().IntVar(&gatewayPort, "port", 4242, "Port for the gateway simulator")
	gatewayWorkerCmd.Flags().DurationVar(&settleDelay, "settle-delay", 2*time.Second, "Delay before a created session settles as paid")
	gatewayWorkerCmd.Flags().IntVar(&maxWorkers, "max-workers", 0, "Maximum number of settle workers (0 uses the default)")
	gatewayWorkerCmd.Flags().IntVar(&jobQueueSize, "job-queue-size", 0, "Settle job queue buffer size (0 uses the default)")

	workerCmd.AddCommand(gatewayWorkerCmd)
	workerCmd.AddCommand(eventWorkerCmd)

	rootCmd.AddCommand(workerCmd)
}
