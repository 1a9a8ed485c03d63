package main

import (
	"encoding/json"
	stdlog "log"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/username/cardgate/backend/src/config"
	"github.com/username/cardgate/backend/src/database"
	"github.com/username/cardgate/backend/src/eventlog"
	"github.com/username/cardgate/backend/src/gateway/credentials"
	"github.com/username/cardgate/backend/src/gateway/mle"
	"github.com/username/cardgate/backend/src/gateway/request"
	"github.com/username/cardgate/backend/src/gateway/transport"
	"github.com/username/cardgate/backend/src/handlers"
	"github.com/username/cardgate/backend/src/lifecycle"
	"github.com/username/cardgate/backend/src/logger"
	"github.com/username/cardgate/backend/src/security"
	"github.com/username/cardgate/backend/src/services"
	"github.com/username/cardgate/backend/src/webhook"
	"golang.org/x/time/rate"
)

var limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 30)

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded",
				"method", r.Method,
				"path", r.URL.Path,
				"remoteAddr", r.RemoteAddr)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)
	logger.L.Info("Cardgate backend server starting...")

	if config.Cfg.JWTSecret == "" || len(config.Cfg.JWTSecret) < 32 {
		stdlog.Fatal("JWT_SECRET configuration invalid. Must be at least 32 bytes.")
	}

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	logger.L.Info("Database initialized successfully.")

	logger.L.Info("Opening webhook event log...", "path", config.Cfg.EventLogPath)
	eventLog, err := eventlog.New(config.Cfg.EventLogPath)
	if err != nil {
		logger.L.Error("Failed to open webhook event log", "error", err)
		stdlog.Fatalf("Failed to open webhook event log: %v", err)
	}
	defer eventLog.Close()

	logger.L.Info("Initializing gateway transport client...")
	client, err := transport.NewClient(transport.FromAppConfig(config.Cfg))
	if err != nil {
		logger.L.Error("Failed to initialize gateway transport", "error", err)
		stdlog.Fatalf("Failed to initialize gateway transport: %v", err)
	}

	logger.L.Info("Initializing services and handlers...")
	authService := security.NewAuthService(config.Cfg.JWTSecret)
	creds := credentials.NewBuilder(config.Cfg)
	encryptor := mle.NewEncryptor(config.Cfg.MLEKeyID, config.Cfg.MLEMasterKey, config.Cfg.AllowCleartextPAN)
	identity := request.IdentityFromConfig(config.Cfg)

	builders := []request.Builder{
		request.NewAuthorizationBuilder(identity, encryptor),
		request.NewVoidBuilder(identity),
		request.NewPushFundsBuilder(identity, encryptor),
		request.NewPullFundsBuilder(identity, encryptor),
		request.NewReverseFundsBuilder(identity),
	}

	machine := lifecycle.NewMachine(database.DB)
	outcomeCache := cache.New(15*time.Minute, 30*time.Minute)

	paymentService := services.NewPaymentService(
		database.DB, creds, client, machine, builders, outcomeCache,
	)

	verifier := webhook.NewVerifier(config.Cfg.WebhookSecret)
	dispatcher := webhook.NewDispatcher(database.DB, machine, eventLog)

	paymentHandler := handlers.NewPaymentHandler(paymentService, authService)
	webhookHandler := handlers.NewWebhookHandler(verifier, dispatcher)

	logger.L.Info("Configuring routes...")
	rootMux := http.NewServeMux()
	apiRouter := http.NewServeMux()

	applyAuth := func(handler http.HandlerFunc) http.Handler {
		return paymentHandler.AuthMiddleware(handler)
	}

	apiRouter.Handle("POST /api/payments/authorize", applyAuth(paymentHandler.HandleAuthorize))
	apiRouter.Handle("POST /api/payments/void", applyAuth(paymentHandler.HandleVoid))
	apiRouter.Handle("POST /api/payments/push", applyAuth(paymentHandler.HandlePushFunds))
	apiRouter.Handle("POST /api/payments/pull", applyAuth(paymentHandler.HandlePullFunds))
	apiRouter.Handle("POST /api/payments/reverse", applyAuth(paymentHandler.HandleReverseFunds))
	apiRouter.Handle("GET /api/payments/{merchantTransactionId}", applyAuth(paymentHandler.HandleGetTransaction))
	apiRouter.Handle("GET /api/payments/{merchantTransactionId}/status", applyAuth(paymentHandler.HandleQueryStatus))

	rootMux.Handle("/api/", apiRouter)

	// The network posts callbacks here; authenticated by HMAC signature, not
	// by merchant bearer tokens.
	rootMux.HandleFunc("POST /webhook/visa", webhookHandler.HandleWebhook)

	rootMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" && r.Method == http.MethodGet {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"message": "Cardgate backend is running"})
		} else {
			if !strings.HasPrefix(r.URL.Path, "/api/") {
				logger.L.Warn("Root level path not found", "method", r.Method, "path", r.URL.Path)
				http.NotFound(w, r)
			}
		}
	})

	logger.L.Info("Applying global middleware...")
	finalHandler := rateLimitMiddleware(rootMux)

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      finalHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second, // gateway calls can take up to the 30s ceiling
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.L.Error("Failed to start server", "error", err)
		stdlog.Fatalf("Failed to start server: %v", err)
	} else if err == http.ErrServerClosed {
		logger.L.Info("Server stopped gracefully.")
	}
}
