package main // Entry point package

import (
	"log" // Logging library

	"github.com/joho/godotenv"    // Loads .env files in development
	"github.com/labstack/echo/v4" // Echo web framework

	"github.com/mintcrm/auth-service/internal/config"     // Internal config loader
	"github.com/mintcrm/auth-service/internal/database"   // MySQL connection helper
	"github.com/mintcrm/auth-service/internal/handler"    // HTTP handlers
	"github.com/mintcrm/auth-service/internal/queue"      // Security event consumer
	"github.com/mintcrm/auth-service/internal/ratelimit"  // Shared/fallback counters
	"github.com/mintcrm/auth-service/internal/repository" // MySQL repositories
	"github.com/mintcrm/auth-service/internal/router"     // Route registration
	"github.com/mintcrm/auth-service/internal/session"    // Session manager
	"github.com/mintcrm/auth-service/internal/token"      // Symmetric token codec
	"github.com/mintcrm/auth-service/internal/twofactor"  // 2FA lifecycle service
)

func main() {
	_ = godotenv.Load() // Load .env when present; real env wins

	cfg := config.Load()                // Load environment config
	rl := config.LoadRateLimitConfig()  // Rate limiting tunables

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err) // Credentials are the source of truth; no DB means no service
	}
	defer db.Close()

	// Redis backs the shared rate-limit counters.  A nil client is fine:
	// the store degrades to per-process counters and says so once.
	var shared ratelimit.Counter
	if rdb := config.NewRedisClient(); rdb != nil {
		shared = ratelimit.NewRedisCounter(rdb)
	} else {
		log.Println("redis unavailable; rate limits fall back to local counters")
	}
	store := ratelimit.NewStore(shared)
	limiter := ratelimit.NewLimiter(store, rl.Prefix)
	guard := ratelimit.NewGuard(store, ratelimit.GuardConfig{
		MaxFailures:   rl.MaxFailures,
		FailureWindow: rl.FailureWindow,
		Lockout:       rl.Lockout,
	})

	users := repository.NewUserRepo(db)
	sessions := repository.NewSessionRepo(db)
	refresh := repository.NewRefreshRepo(db)
	recovery := repository.NewRecoveryCodeRepo(db)

	codec := token.NewCodec(cfg.JWTSecret)
	manager := session.NewManager(session.Config{
		AccessTTL:         cfg.AccessTTL(),
		RefreshTTL:        cfg.RefreshTTL(),
		HeartbeatInterval: cfg.HeartbeatInterval,
	}, codec, users, sessions, refresh)
	tf := twofactor.NewService(twofactor.Config{
		Issuer:    cfg.TOTPIssuer,
		Skew:      cfg.TOTPSkew,
		SecretKey: cfg.JWTSecret,
	}, users, recovery, manager)

	// Drain the security event queue into the audit log in the background.
	go func() {
		if err := queue.StartSecurityConsumer(); err != nil {
			log.Printf("security consumer stopped: %v", err)
		}
	}()

	e := echo.New()          // Create Echo instance
	router.RegisterRoutes(e) // Health check
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, rl, users, manager, tf, codec, limiter, guard))

	addr := ":" + cfg.Port                                // Address string with port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env) // Print startup info

	if err := e.Start(addr); err != nil { // Start HTTP server
		log.Fatal(err)
	}
}
