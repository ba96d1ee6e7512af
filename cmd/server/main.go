package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"

	"tripfund/internal/coordinator"
	"tripfund/internal/gateway"
	"tripfund/internal/handlers"
	authMiddleware "tripfund/internal/middleware"
	"tripfund/internal/services"
	"tripfund/internal/store"
	"tripfund/internal/tasks"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	// Initialize Firebase
	credPath := os.Getenv("FIREBASE_CREDENTIALS_PATH")
	if credPath == "" {
		credPath = "./firebase-service-account.json"
	}

	authClient, err := services.InitFirebase(credPath)
	if err != nil {
		log.Printf("Warning: Firebase initialization failed: %v", err)
		log.Println("Requests will be trusted on their payload IDs until credentials are provided")
	}

	// Initialize Database
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}
	db, err := services.InitDB(databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := services.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	gatewayTimeout := services.GatewayTimeoutFromEnv()
	if gatewayTimeout <= 0 {
		gatewayTimeout = coordinator.DefaultGatewayTimeout
	}

	// Per-trip locking: Redis when available, in-process otherwise. The lock
	// is held across the gateway call, so the Redis TTL is sized from the
	// gateway timeout.
	var st store.Store = store.NewGormStore(db)
	var locker coordinator.Locker
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cache, err := services.NewRedisCache(redisURL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer cache.Close()
		locker = services.NewRedisLocker(cache, gatewayTimeout)
		st = services.NewCachedStore(st, cache)
	} else {
		log.Println("REDIS_URL not set, using in-process locks (single instance only)")
		locker = coordinator.NewKeyedMutex()
	}

	// Payment gateway
	stripeKey := os.Getenv("STRIPE_SECRET_KEY")
	if stripeKey == "" {
		log.Fatal("STRIPE_SECRET_KEY not set")
	}
	stripeGateway := gateway.NewStripeGateway(stripeKey)

	coord := coordinator.New(coordinator.Params{
		Store:          st,
		Gateway:        stripeGateway,
		Locker:         locker,
		GatewayTimeout: gatewayTimeout,
	})

	// Make sure the recurring reconciliation sweep is scheduled
	if err := tasks.EnsureReconcileTask(db, services.ReconcileAfterFromEnv()); err != nil {
		log.Fatalf("Failed to schedule reconciliation task: %v", err)
	}

	// Create Echo instance
	e := echo.New()
	e.HTTPErrorHandler = authMiddleware.CustomErrorHandler

	// Middleware
	e.Use(echoMiddleware.Logger())
	e.Use(echoMiddleware.Recover())

	// Public routes
	e.GET("/api/health", handlers.Health)

	// Payment API
	api := e.Group("/api")
	if authClient != nil {
		api.Use(authMiddleware.RequireAuth(authClient))
	}
	handlers.NewPaymentHandler(coord).RegisterRoutes(api)

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Server starting on port %s", port)
	e.Logger.Fatal(e.Start(":" + port))
}
