package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"kasiran/backend/internal/pricing"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	AutoMigrate           bool
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	StoreID               string
	StoreName             string
	DiscountPercent       decimal.Decimal
	DashboardCacheTTL     time.Duration
	AuthSecret            string
	AccessTokenTTLMinutes int
	ManagerPIN            string
	OpenAIAPIKey          string
	OpenAIModel           string
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}
	dashboardTTL, err := strconv.Atoi(getEnv("DASHBOARD_CACHE_TTL_SECONDS", "30"))
	if err != nil || dashboardTTL < 0 {
		dashboardTTL = 30
	}
	autoMigrate, _ := strconv.ParseBool(getEnv("DB_AUTO_MIGRATE", "false"))

	return Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		AutoMigrate:           autoMigrate,
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		StoreID:               getEnv("DEFAULT_STORE_ID", "main-store"),
		StoreName:             getEnv("STORE_NAME", "Kasiran App"),
		DiscountPercent:       discountPercent(os.Getenv("DISCOUNT_PERCENT")),
		DashboardCacheTTL:     time.Duration(dashboardTTL) * time.Second,
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
		ManagerPIN:            strings.TrimSpace(os.Getenv("MANAGER_PIN")),
		OpenAIAPIKey:          strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIModel:           getEnv("OPENAI_MODEL", "gpt-4o"),
	}
}

// discountPercent parses DISCOUNT_PERCENT, falling back to the default when
// the value is missing, malformed or outside [0, 100].
func discountPercent(raw string) decimal.Decimal {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return pricing.DefaultDiscountPercent
	}
	pct, err := decimal.NewFromString(raw)
	if err != nil || !pricing.ValidPercent(pct) {
		log.Printf("[config] WARN: DISCOUNT_PERCENT %q is not a percentage, using %s", raw, pricing.DefaultDiscountPercent)
		return pricing.DefaultDiscountPercent
	}
	return pct
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	return val
}
