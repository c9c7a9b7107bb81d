package main

import (
	"context"
	"database/sql"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"fleetcore.org/internal/auth"
	"fleetcore.org/internal/docs"
	"fleetcore.org/internal/escrow"
	"fleetcore.org/internal/fleet"
	"fleetcore.org/internal/httpapi"
	"fleetcore.org/internal/obs"
	"fleetcore.org/internal/ops"
	"fleetcore.org/internal/store/pg"
	"fleetcore.org/internal/validity"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	// Postgres is optional: without a DSN the service runs entirely on the
	// in-memory stores, which is the single-node deployment mode.
	var db *sql.DB
	var escrowSvc escrow.Service
	var authStore auth.Store
	if dsn := os.Getenv("FLEETCORE_PG_DSN"); dsn != "" {
		pgStore, err := pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db = pgStore.DB()
		escrowSvc = pgStore
		authStore = auth.NewPGStore(db)
	} else {
		escrowSvc = escrow.NewInMemory()
		authStore = auth.NewInMemory()
	}

	authSvc, err := auth.NewService(authStore)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}
	if err := authSvc.Seed(context.Background()); err != nil {
		log.Fatalf("seed rbac catalog: %v", err)
	}

	authorizer, err := auth.NewAuthorizer(authStore)
	if err != nil {
		log.Fatalf("authorizer: %v", err)
	}

	fleetSvc := fleet.NewInMemory()
	docsSvc := docs.NewInMemory()

	opsSvc, err := ops.New(authorizer, fleetSvc, escrowSvc, docsSvc, validity.NewEngine(nil), validity.NewRegistry())
	if err != nil {
		log.Fatalf("ops facade: %v", err)
	}

	probe := httpapi.ReadyProbe{DB: db}
	api := httpapi.New(probe, version, authSvc, opsSvc)

	handler := httpapi.RequestID(api.Handler())
	handler = httpapi.SecurityHeaders(handler)
	handler = httpapi.CORS(handler)
	handler = httpapi.RateLimit(handler, 50, 25)
	handler = httpapi.MaxBodyBytes(handler, 1<<20)
	handler = httpapi.Logging(handler)

	srv := &http.Server{
		Addr:              ":8080",
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting fleetcore-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	// gRPC health listener for infra probes.
	grpcSrv := httpapi.NewGRPCServer(probe)
	grpcLis, err := net.Listen("tcp", ":9090")
	if err != nil {
		log.Fatalf("grpc listen: %v", err)
	}
	go func() {
		if err := grpcSrv.Serve(grpcLis); err != nil {
			log.Printf("grpc serve: %v", err)
		}
	}()
	healthTicker := time.NewTicker(15 * time.Second)
	defer healthTicker.Stop()
	go func() {
		for range healthTicker.C {
			grpcSrv.RefreshStatus(context.Background())
		}
	}()

	obs.SetReady(true)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	obs.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	grpcSrv.Stop()
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
