package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"legal-assistant-be/internal/bootstrap"
	"legal-assistant-be/internal/config"
	"legal-assistant-be/internal/server"
	"legal-assistant-be/internal/tracer"
)

func main() {
	cfg := config.Load()

	shutdownTracer := tracer.InitTracer(cfg.App.Environment)
	defer shutdownTracer(context.Background())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container, err := bootstrap.NewContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	defer container.Close()

	go container.WebSocketHub.Run(ctx)
	if err := container.HandoffService.Start(); err != nil {
		log.Printf("[WARN] Handoff consumer not started: %v", err)
	}

	srv := server.New(cfg, container)
	go func() {
		<-ctx.Done()
		log.Println("Shutting down...")
		if err := srv.Shutdown(); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	if err := srv.Run(); err != nil {
		log.Printf("server stopped: %v", err)
	}
}
