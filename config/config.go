package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port              string
	DBUrl             string
	SupabaseUrl       string
	SupabaseKey       string
	SupabaseJWTSecret string
	FrontendURL       string
	LogLevel          string
	// Redis/Upstash Configuration
	UpstashRedisURL      string
	UpstashRedisPassword string
	ProfileCacheTTL      time.Duration
	ProfileCacheSize     int
	// Rate Limiting Configuration
	RateLimitWindowSeconds int
	RateLimitSyncThreshold int
}

// ClientConfig configures the ppk command line client.
type ClientConfig struct {
	APIURL          string
	SupabaseUrl     string
	SupabaseKey     string
	StateDir        string
	LogLevel        string
	AuthTimeout     time.Duration
	GuardRetries    int
	GuardDelay      time.Duration
	OAuthRedirectTo string
}

func LoadConfig() (*Config, error) {
	// Missing .env is normal outside local development
	_ = godotenv.Load()

	cfg := &Config{
		Port:  getEnv("PORT", "5000"),
		DBUrl: getEnv("DATABASE_URL", ""),
		// Trailing slash would produce ".co//auth" when building endpoint URLs
		SupabaseUrl:       strings.TrimRight(getEnv("SUPABASE_URL", ""), "/"),
		SupabaseKey:       getEnv("SUPABASE_KEY", getEnv("SUPABASE_ANON_KEY", "")),
		SupabaseJWTSecret: getEnv("SUPABASE_JWT_SECRET", getEnv("SUPABASE_JWT_KEY", "")),
		FrontendURL:       strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:5173"), "/"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		// Redis/Upstash Configuration
		UpstashRedisURL:      getEnv("UPSTASH_REDIS_URL", ""),
		UpstashRedisPassword: getEnv("UPSTASH_REDIS_PASSWORD", ""),
		ProfileCacheTTL:      getEnvDuration("PROFILE_CACHE_TTL", 2*time.Minute),
		ProfileCacheSize:     getEnvInt("PROFILE_CACHE_SIZE", 1024),
		// Rate Limiting Configuration
		RateLimitWindowSeconds: getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60),
		RateLimitSyncThreshold: getEnvInt("RATE_LIMIT_SYNC_THRESHOLD", 30),
	}

	if cfg.DBUrl == "" {
		log.Println("WARNING: DATABASE_URL is missing. Application may fail to connect.")
	}

	if cfg.SupabaseUrl == "" || cfg.SupabaseKey == "" {
		log.Println("WARNING: SUPABASE_URL or SUPABASE_ANON_KEY missing. Token verification will fail.")
	}

	if cfg.UpstashRedisURL == "" {
		log.Println("WARNING: UPSTASH_REDIS_URL not configured. Profile cache and rate limiting will use in-memory fallback.")
	}

	return cfg, nil
}

// LoadClientConfig reads the client settings. Defaults mirror the web client:
// a 5s auth initialisation timeout and a 5 x 200ms session guard.
func LoadClientConfig() (*ClientConfig, error) {
	_ = godotenv.Load()

	stateDir := getEnv("PPK_STATE_DIR", "")
	if stateDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, err
		}
		stateDir = filepath.Join(base, "properpakistan")
	}

	cfg := &ClientConfig{
		APIURL:          strings.TrimRight(getEnv("PPK_API_URL", "http://localhost:5000/api"), "/"),
		SupabaseUrl:     strings.TrimRight(getEnv("SUPABASE_URL", ""), "/"),
		SupabaseKey:     getEnv("SUPABASE_ANON_KEY", ""),
		StateDir:        stateDir,
		LogLevel:        getEnv("PPK_LOG_LEVEL", "warn"),
		AuthTimeout:     getEnvDuration("PPK_AUTH_TIMEOUT", 5*time.Second),
		GuardRetries:    getEnvInt("PPK_GUARD_RETRIES", 5),
		GuardDelay:      getEnvDuration("PPK_GUARD_DELAY", 200*time.Millisecond),
		OAuthRedirectTo: getEnv("PPK_OAUTH_REDIRECT", "http://127.0.0.1:54321/callback"),
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt returns an integer environment variable or fallback if not set/invalid
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("200ms", "5s")
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
