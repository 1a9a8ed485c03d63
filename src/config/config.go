package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	Port         string
	LogLevel     string
	DatabasePath string
	EventLogPath string

	// Merchant-facing API auth
	JWTSecret         string
	AccessTokenExpiry time.Duration

	// Counterpart network endpoint
	GatewayBaseURL string
	GatewayTimeout time.Duration

	// Mutual TLS material. Client cert/key may be empty in sandbox
	// setups where the gateway only requires server-side TLS.
	ClientCertPath string
	ClientKeyPath  string
	CACertPath     string

	// Transport credentials
	GatewayUserID   string
	GatewayPassword string
	GatewayAPIKey   string
	SharedSecret    string

	// Field-level encryption
	MLEKeyID          string
	MLEMasterKey      string
	AllowCleartextPAN bool

	// Inbound webhook verification
	WebhookSecret string

	// Default acquirer / card acceptor identity
	AcquiringBIN         string
	AcquirerCountryCode  string
	MerchantCategoryCode string
	CardAcceptorID       string
	CardAcceptorName     string
	CardAcceptorTerminal string
	CardAcceptorCity     string
	CardAcceptorState    string
	CardAcceptorZip      string
	CardAcceptorCountry  string
}

var Cfg *AppConfig

func LoadConfig() {
	errEnv := godotenv.Load()
	if errEnv != nil {
		log.Println("Info: No .env file found or error loading .env file. Relying on OS environment variables and defaults. Error (if any):", errEnv)
	} else {
		log.Println(".env file loaded successfully.")
	}

	log.Println("Loading application configuration...")

	jwtSecret := getEnv("JWT_SECRET", "your-very-secure-and-long-jwt-secret-key-for-hs256-minimum-32-bytes")
	if jwtSecret == "your-very-secure-and-long-jwt-secret-key-for-hs256-minimum-32-bytes" {
		log.Println("WARNING: Using default insecure JWT_SECRET. Set JWT_SECRET environment variable for production.")
	}

	webhookSecret := getEnv("WEBHOOK_SHARED_SECRET", "")
	if webhookSecret == "" {
		log.Println("WARNING: WEBHOOK_SHARED_SECRET not set. Inbound webhooks will be rejected until it is configured.")
	}

	sharedSecret := getEnv("GATEWAY_SHARED_SECRET", "")
	if sharedSecret == "" {
		log.Println("WARNING: GATEWAY_SHARED_SECRET not set. Signed-token headers degrade to basic auth only.")
	}

	mleMasterKey := getEnv("MLE_MASTER_KEY", "")
	allowCleartext := getEnvAsBool("GATEWAY_ALLOW_CLEARTEXT_PAN", false)
	if mleMasterKey == "" && !allowCleartext {
		log.Println("WARNING: MLE_MASTER_KEY not set and cleartext fallback disabled. Card submissions will fail until key material is configured.")
	}
	if allowCleartext {
		log.Println("WARNING: GATEWAY_ALLOW_CLEARTEXT_PAN is enabled. Account numbers may be transmitted unencrypted. Never enable this outside a sandbox.")
	}

	accessTokenExpiry := getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 60*time.Minute)
	gatewayTimeout := getEnvAsDuration("GATEWAY_TIMEOUT", 30*time.Second)

	Cfg = &AppConfig{
		Port:         getEnv("PORT", "8080"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		DatabasePath: getEnv("DATABASE_PATH", "./cardgate.db"),
		EventLogPath: getEnv("EVENT_LOG_PATH", "./webhook_events.db"),

		JWTSecret:         jwtSecret,
		AccessTokenExpiry: accessTokenExpiry,

		GatewayBaseURL: getEnv("GATEWAY_BASE_URL", "https://sandbox.api.visa.com"),
		GatewayTimeout: gatewayTimeout,

		ClientCertPath: getEnv("GATEWAY_CLIENT_CERT", ""),
		ClientKeyPath:  getEnv("GATEWAY_CLIENT_KEY", ""),
		CACertPath:     getEnv("GATEWAY_CA_CERT", ""),

		GatewayUserID:   getEnv("GATEWAY_USER_ID", ""),
		GatewayPassword: getEnv("GATEWAY_PASSWORD", ""),
		GatewayAPIKey:   getEnv("GATEWAY_API_KEY", ""),
		SharedSecret:    sharedSecret,

		MLEKeyID:          getEnv("MLE_KEY_ID", ""),
		MLEMasterKey:      mleMasterKey,
		AllowCleartextPAN: allowCleartext,

		WebhookSecret: webhookSecret,

		AcquiringBIN:         getEnv("ACQUIRING_BIN", "408999"),
		AcquirerCountryCode:  getEnv("ACQUIRER_COUNTRY_CODE", "840"),
		MerchantCategoryCode: getEnv("MERCHANT_CATEGORY_CODE", "6012"),
		CardAcceptorID:       getEnv("CARD_ACCEPTOR_ID", "CARDGATE01"),
		CardAcceptorName:     getEnv("CARD_ACCEPTOR_NAME", "Cardgate Merchant"),
		CardAcceptorTerminal: getEnv("CARD_ACCEPTOR_TERMINAL", "TERM0001"),
		CardAcceptorCity:     getEnv("CARD_ACCEPTOR_CITY", "San Francisco"),
		CardAcceptorState:    getEnv("CARD_ACCEPTOR_STATE", "CA"),
		CardAcceptorZip:      getEnv("CARD_ACCEPTOR_ZIP", "94105"),
		CardAcceptorCountry:  getEnv("CARD_ACCEPTOR_COUNTRY", "USA"),
	}

	if Cfg.GatewayUserID == "" || Cfg.GatewayPassword == "" {
		log.Println("WARNING: GATEWAY_USER_ID / GATEWAY_PASSWORD not set. Outbound gateway calls will be rejected by the counterpart network.")
	}

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, DBPath=%s, GatewayBaseURL=%s",
		Cfg.Port, Cfg.LogLevel, Cfg.DatabasePath, Cfg.GatewayBaseURL)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	log.Printf("Environment variable %s not set, using default: %s", key, fallback)
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid boolean value for %s ('%s'), using default: %t", key, valueStr, fallback)
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		log.Printf("Duration value for %s not set or empty, using default: %s", key, fallback.String())
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid duration value for %s ('%s'), using default: %s", key, valueStr, fallback.String())
	return fallback
}
