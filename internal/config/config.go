package config

import "os"

type Config struct {
	Server   ServerConfig
	Postgres PostgresConfig
	Firebase FirebaseConfig
	Auth     AuthConfig
}

type ServerConfig struct {
	Addr           string
	AllowedOrigins string
}

type PostgresConfig struct {
	DatabaseURL string
	Host        string
	Port        string
	User        string
	Password    string
	Database    string
	SSLMode     string
}

type FirebaseConfig struct {
	ProjectID     string
	IssuerURL     string
	VerifyTimeout string
}

type AuthConfig struct {
	JWTSecret      string
	SessionTTL     string
	CookieName     string
	CookiePath     string
	CookieDomain   string
	CookieSecure   string
	LoginRateLimit string
	LoginRateBurst string
}

func Load() Config {
	return Config{
		Server: ServerConfig{
			Addr:           getenv("SERVER_ADDR", ":8080"),
			AllowedOrigins: os.Getenv("CORS_ALLOWED_ORIGINS"),
		},
		Postgres: PostgresConfig{
			DatabaseURL: os.Getenv("DATABASE_URL"),
			Host:        getenv("PGHOST", "localhost"),
			Port:        getenv("PGPORT", "5432"),
			User:        os.Getenv("PGUSER"),
			Password:    os.Getenv("PGPASSWORD"),
			Database:    os.Getenv("PGDATABASE"),
			SSLMode:     getenv("PGSSLMODE", "disable"),
		},
		Firebase: FirebaseConfig{
			ProjectID:     os.Getenv("FIREBASE_PROJECT_ID"),
			IssuerURL:     os.Getenv("FIREBASE_ISSUER_URL"),
			VerifyTimeout: getenv("FIREBASE_VERIFY_TIMEOUT", "5s"),
		},
		Auth: AuthConfig{
			JWTSecret:      os.Getenv("JWT_SECRET"),
			SessionTTL:     getenv("SESSION_TTL", "720h"),
			CookieName:     getenv("AUTH_COOKIE_NAME", "jwt_token"),
			CookiePath:     getenv("AUTH_COOKIE_PATH", "/"),
			CookieDomain:   os.Getenv("AUTH_COOKIE_DOMAIN"),
			CookieSecure:   os.Getenv("AUTH_COOKIE_SECURE"),
			LoginRateLimit: getenv("LOGIN_RATE_LIMIT", "10"),
			LoginRateBurst: getenv("LOGIN_RATE_BURST", "20"),
		},
	}
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
