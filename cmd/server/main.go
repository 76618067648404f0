package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/travelhub/crm-escalation/handlers"
	"github.com/travelhub/crm-escalation/internal/bootstrap"
	"github.com/travelhub/crm-escalation/internal/config"
	"github.com/travelhub/crm-escalation/router"
)

func main() {
	log.Println("Starting CRM API server...")

	configPath := os.Getenv("CRM_CONFIG_PATH")
	if err := config.LoadConfig(configPath); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if config.App.JWTSecret == "" {
		log.Fatal("JWT_SECRET environment variable (or config) is required")
	}

	pg, err := bootstrap.OpenDatabase(config.App.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	defer pg.Close()

	app, err := bootstrap.New(context.Background(), config.App, pg)
	if err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}
	defer app.Close()

	r := router.NewGinRouter(router.Dependencies{
		Notifications: app.Store,
		Devices:       app.Store,
		Pusher:        app.Push,
		Engine:        app.Engine,
		Auth:          handlers.NewAuthMiddleware(config.App.JWTSecret),
		Registry:      app.Registry,
		Ping:          pg.Ping,
	})

	srv := &http.Server{
		Addr:              ":" + config.App.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Listening on :%s", config.App.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}
