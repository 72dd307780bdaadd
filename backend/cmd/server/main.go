// Copyright (C) 2026 quietwire.dev <relay@quietwire.dev>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"database/sql"
	"net/http"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/quietwire/relay/backend/config"
	"github.com/quietwire/relay/backend/handlers"
	"github.com/quietwire/relay/backend/limits"
	"github.com/quietwire/relay/backend/middleware"
	"github.com/quietwire/relay/backend/push"
	"github.com/quietwire/relay/backend/relay"
	"github.com/quietwire/relay/backend/storage/postgres"
	redisStore "github.com/quietwire/relay/backend/storage/redis"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load(".")
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	if cfg.JWTSecret == "" {
		logger.Fatal("JWT_SECRET is required")
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
	})

	accounts := postgres.NewStore(db)
	if err := accounts.Migrate(); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	messages := redisStore.NewMessageStore(rdb)
	pusher := push.NewRedisPusher(rdb)
	limiter := limits.NewRedisLimiter(rdb, cfg.MessageRateLimit, cfg.MessageRateWindow)

	dispatcher := relay.NewDispatcher(messages, pusher, logger)
	receipts := relay.NewReceiptCoordinator(accounts, dispatcher, logger)

	messageHandler := handlers.NewMessageHandler(accounts, messages, dispatcher, receipts, limiter, logger)

	authMiddleware := middleware.NewAuthMiddleware(cfg.JWTSecret, cfg.JWTIssuer)

	r := mux.NewRouter()
	r.Use(middleware.CORS)

	// Health check (no auth required)
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("Database unavailable"))
			return
		}
		if err := rdb.Ping(r.Context()).Err(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("Redis unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	api := r.NewRoute().Subrouter()
	api.Use(authMiddleware)
	messageHandler.Register(api)

	logger.Info("relay server starting",
		zap.String("addr", cfg.ListenAddr),
		zap.String("issuer", cfg.JWTIssuer))

	if err := http.ListenAndServe(cfg.ListenAddr, r); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}
