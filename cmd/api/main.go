package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/you/hockey-training/internal/gateway"
	"github.com/you/hockey-training/internal/repository"
	"github.com/you/hockey-training/internal/service"
	transport "github.com/you/hockey-training/internal/transport/http"
	"github.com/you/hockey-training/pkg/config"
	"github.com/you/hockey-training/pkg/db"
	"github.com/you/hockey-training/pkg/mq"
	"github.com/you/hockey-training/pkg/obs"
)

func must[T any](v T, err error) T {
	if err != nil {
		log.Fatal(err)
	}
	return v
}

func main() {
	_ = godotenv.Load(".env")
	cfg := must(config.Load())

	logger := must(zap.NewProduction())
	if cfg.Env == "dev" {
		logger = must(zap.NewDevelopment())
	}
	defer logger.Sync()

	shutdownTracer := obs.InitTracer("training-api")
	defer shutdownTracer(context.Background())

	// DB + repos
	gdb := db.Open(cfg.PGTrainingDSN)
	ledgerRepo := repository.NewLedgerRepo(gdb)
	bookingRepo := repository.NewBookingRepo(gdb)
	intentRepo := repository.NewIntentRepo(gdb)
	scheduleRepo := repository.NewScheduleRepo(gdb)
	registrationRepo := repository.NewRegistrationRepo(gdb)
	must(0, ledgerRepo.Migrate())
	must(0, bookingRepo.Migrate())
	must(0, intentRepo.Migrate())
	must(0, scheduleRepo.Migrate())
	must(0, registrationRepo.Migrate())

	// Event side-channel
	pub := must(mq.NewPublisher(cfg.RabbitURL, cfg.EventsExchange))
	defer pub.Close()

	// Payment gateway
	gw := gateway.NewStripeGateway(cfg.StripeSecretKey)

	// Services
	fulfillmentSvc := service.NewFulfillmentSvc(gw, ledgerRepo, pub, logger)
	bookingSvc := service.NewBookingSvc(bookingRepo, ledgerRepo, intentRepo, pub, logger)
	scheduleSvc := service.NewScheduleSvc(scheduleRepo, bookingSvc, pub, logger)
	conflictSvc := service.NewConflictSvc(registrationRepo, pub, logger)
	adjustmentSvc := service.NewAdjustmentSvc(ledgerRepo, logger)

	r := transport.NewRouter(transport.NewHandlers(
		fulfillmentSvc, bookingSvc, scheduleSvc, conflictSvc, adjustmentSvc))
	if cfg.Env == "dev" {
		r.POST("/dev/token", transport.DevTokenMint(time.Duration(cfg.JWTExpireMin)*time.Minute))
	}

	srv := &http.Server{Addr: cfg.APIHTTPAddr, Handler: r}
	go func() {
		log.Println("[api] HTTP listening on", cfg.APIHTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	// graceful shutdown
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	log.Println("[api] stopped")
}
