// cmd/server/main.go
package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/guessop/server/internal/auth"
	"github.com/guessop/server/internal/cache"
	"github.com/guessop/server/internal/database"
	"github.com/guessop/server/internal/handlers"
	"github.com/guessop/server/internal/middleware"
)

func main() {
	auth.Init()
	database.ConnectDB()
	if err := cache.ConnectRedis(); err != nil {
		log.Fatalf("redis: %v", err)
	}

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	rs := handlers.NewRoomServer(
		database.CatalogClient{},
		cache.NewStore(),
		database.RoomsRepo{},
		logger,
	)

	mux := http.NewServeMux()

	// room lifecycle endpoints
	mux.Handle("/rooms", middleware.LogMiddleware(logger)(handlers.RoomsHandler(rs)))
	mux.Handle("/rooms/", middleware.LogMiddleware(logger)(handlers.RoomsHandler(rs)))

	// per-room player websocket
	mux.Handle("/rooms/ws/", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.RoomWSHandler(logger, rs),
	)))

	handler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowCredentials: true,
	}).Handler(mux)

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}

	srv := &http.Server{Addr: addr, Handler: handler}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Info("shutting down, closing rooms")
		rs.Registry.CloseAll()
		srv.Close()
	}()

	logger.Infof("Running on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server exited: %v", err)
	}
}
