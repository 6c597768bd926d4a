package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"checkin-backend/config"
	"checkin-backend/controllers"
	"checkin-backend/routes"
	"checkin-backend/services"
)

func main() {
	envErr := godotenv.Load()

	settings := config.LoadSettings()
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: settings.LogLevel}))
	slog.SetDefault(log)

	if envErr != nil {
		log.Info(".env not loaded; using process environment", "error", envErr)
	}

	if err := config.ConnectDatabase(settings, log); err != nil {
		log.Error("database connect failed", "error", err)
		os.Exit(1)
	}
	db := config.DB

	sessionService := services.NewSessionService(db, settings.SessionIdleTTL, log)
	checkinService := services.NewCheckinService(db, sessionService, settings.Location, log)
	searchService := services.NewSearchService(db, log)
	guestService := services.NewGuestService(db, log)

	gin.SetMode(settings.GinMode)
	router := routes.SetupRouter(routes.Deps{
		Checkin:     controllers.NewCheckinController(checkinService),
		Search:      controllers.NewSearchController(searchService, settings.SearchLimit),
		Guests:      controllers.NewGuestController(guestService),
		Sessions:    sessionService,
		CORSOrigins: settings.CORSOrigins,
		Log:         log,
	})

	addr := ":" + settings.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("server starting", "addr", addr, "timezone", settings.Location.String())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("listen failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("forced shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
