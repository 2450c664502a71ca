package main

import (
	"context"
	"livesession/internal/app"
	"livesession/internal/config"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	log.Println("started")
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	log.Printf("Join window %s, preview limit %s, lockout %d misses / %s",
		cfg.JoinWindow, cfg.PreviewLimit, cfg.LockoutAfter, cfg.LockoutFor)

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer a.Close(context.Background())

	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: a.Handler,
	}

	go func() {
		log.Printf("Server starting on :%s", cfg.HTTPPort)
		log.Println("Endpoints:")
		log.Println("  POST /v1/sessions")
		log.Println("  GET  /v1/sessions/{id}")
		log.Println("  POST /v1/sessions/{id}/join|leave|heartbeat|end|cancel")
		log.Println("  GET  /v1/sessions/{id}/presence")
		log.Println("  GET  /v1/me/sessions?kind=")
		log.Println("  WS   /v1/ws/sessions/{id}?token=")
		log.Println("  GET  /metrics")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("ListenAndServe:", err)
		}
	}()

	// Wait for interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
