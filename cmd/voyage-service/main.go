package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-voyage/internal/auth"
	"ms-voyage/internal/catalog"
	"ms-voyage/internal/catalog/catalog_api"
	catalog_db "ms-voyage/internal/catalog/db"
	"ms-voyage/internal/config"
	"ms-voyage/internal/database/migrations"
	"ms-voyage/internal/kafka"
	"ms-voyage/internal/ledger"
	ledger_db "ms-voyage/internal/ledger/db"
	"ms-voyage/internal/logger"
	"ms-voyage/internal/rooms"
	rooms_db "ms-voyage/internal/rooms/db"
	rooms_redis "ms-voyage/internal/rooms/redis"
	"ms-voyage/internal/rooms/room_api"
	"ms-voyage/internal/scheduler"
	scheduler_db "ms-voyage/internal/scheduler/db"
	"ms-voyage/internal/tickets"
	ticket_db "ms-voyage/internal/tickets/db"
	"ms-voyage/internal/tickets/ticket_api"
	"ms-voyage/internal/users"
	users_db "ms-voyage/internal/users/db"
	"ms-voyage/internal/users/user_api"
)

func connectPostgres(log *logger.Logger, cfg config.DatabaseConfig) *bun.DB {
	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.DSN)
		if err == nil {
			err = sqldb.Ping()
		}
		if err == nil {
			break
		}
		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	log.Info("DATABASE", "✅ PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New())
}

func connectRedis(ctx context.Context, log *logger.Logger, cfg config.RedisConfig) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}
	log.Info("DATABASE", fmt.Sprintf("✅ Redis connection successful to %s", cfg.Addr))
	return client
}

func registerTaskHandlers(w *scheduler.Worker, ticketService *tickets.TicketService, roomService *rooms.RoomService) {
	w.Register(scheduler.TaskCompleteTicket, func(ctx context.Context, payload []byte) error {
		var p scheduler.TicketPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		_, err := ticketService.Complete(ctx, p.TicketID)
		return err
	})

	w.Register(scheduler.TaskCheckIn, func(ctx context.Context, payload []byte) error {
		var p scheduler.TicketPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		_, err := roomService.CheckIn(ctx, p.TicketID)
		return err
	})

	w.Register(scheduler.TaskCheckout, func(ctx context.Context, payload []byte) error {
		var p scheduler.StayPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		_, err := roomService.CheckoutAuto(ctx, p.StayID)
		return err
	})

	w.Register(scheduler.TaskReminder, func(ctx context.Context, payload []byte) error {
		var p scheduler.StayPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		return roomService.Remind(ctx, p.StayID)
	})
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting Voyage Service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bunDB := connectPostgres(log, cfg.Database)
	defer bunDB.Close()

	runner := migrations.NewRunner(bunDB, log, migrations.DefaultOptions())
	if err := runner.RunMigrations(); err != nil {
		log.Fatal("MIGRATION", fmt.Sprintf("Failed to run migrations: %v", err))
	}

	redisClient := connectRedis(ctx, log, cfg.Redis)
	defer redisClient.Close()

	producer := kafka.NewProducer(cfg.Kafka, log)
	defer producer.Close()
	if cfg.Kafka.Enabled && !cfg.Kafka.MockMode {
		topics := []string{
			cfg.Kafka.Topics.TicketCompleted,
			cfg.Kafka.Topics.StayCheckedIn,
			cfg.Kafka.Topics.StayReminder,
			cfg.Kafka.Topics.StayCheckedOut,
		}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, topics, log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			log.Info("KAFKA", "Required topics ensured successfully")
		}
	}

	queue := scheduler.NewQueue(&scheduler_db.DB{Bun: bunDB})
	worker := scheduler.NewWorker(&scheduler_db.DB{Bun: bunDB}, log, cfg.Scheduler)

	ledgerService := ledger.NewLedgerService(&ledger_db.DB{Bun: bunDB}, log)
	catalogService := catalog.NewCatalogService(&catalog_db.DB{Bun: bunDB})
	ticketDB := &ticket_db.DB{Bun: bunDB}
	ticketService := tickets.NewTicketService(ticketDB, catalogService, ledgerService, producer, log)
	roomService := rooms.NewRoomService(
		rooms_db.NewDB(ctx, bunDB),
		ticketDB,
		catalogService,
		ledgerService,
		queue,
		producer,
		rooms_redis.NewPresenceCache(redisClient, log),
		log,
		cfg.Stay,
	)
	userService := users.NewUserService(users_db.NewDB(ctx, bunDB), ledgerService, log, cfg.Stay)

	registerTaskHandlers(worker, ticketService, roomService)
	go worker.Start(ctx)
	go scheduler.RunPeriodic(ctx, log, "room-reaper", cfg.Scheduler.ReaperInterval, func(ctx context.Context) error {
		return roomService.ReapRooms(ctx, cfg.Scheduler.ReaperCutoff)
	})

	userHandler := user_api.NewHandler(userService, ledgerService, cfg.Auth.JWTSecret)
	catalogHandler := catalog_api.NewHandler(catalogService)
	ticketHandler := ticket_api.NewHandler(ticketService)
	roomHandler := room_api.NewHandler(roomService)

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// --- Public Routes ---
	r.Post("/api/users", userHandler.Register)
	r.Get("/api/cities", catalogHandler.ListCities)
	r.Get("/api/airships", catalogHandler.ListAirships)

	// --- Protected Routes ---
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(cfg.Auth.JWTSecret))
		log.Info("AUTH", "JWT middleware applied to protected API routes")

		r.Route("/api", func(r chi.Router) {
			r.Route("/users/me", func(r chi.Router) {
				r.Get("/", userHandler.GetMe)
				r.Put("/", userHandler.UpdateMe)
				r.Delete("/", userHandler.DeleteMe)
				r.Get("/balance", userHandler.GetBalance)
				r.Get("/transactions", userHandler.ListTransactions)
			})

			r.Route("/tickets", func(r chi.Router) {
				r.Post("/", ticketHandler.PurchaseTicket)
				r.Get("/", ticketHandler.ListMyTickets)
				r.Get("/current", ticketHandler.GetCurrentBoarding)
				r.Get("/{ticketID}", ticketHandler.ViewTicket)
				r.Delete("/{ticketID}", ticketHandler.CancelTicket)
			})

			r.Route("/stays", func(r chi.Router) {
				r.Get("/current", roomHandler.GetCurrentStay)
				r.Post("/{stayID}/extend", roomHandler.ExtendStay)
				r.Post("/{stayID}/checkout", roomHandler.CheckoutStay)
			})
			r.Get("/rooms/{roomID}/members", roomHandler.ListRoomMembers)
		})
	})
	log.Info("ROUTER", "Routes registered under /api")

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 Voyage Service running on :%s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	cancel()
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "✅ Voyage Service shutdown complete")
	}
}
