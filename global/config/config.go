package config

import (
	"os"
	"strconv"
	"time"

	"NexusProject/logger"
	"NexusProject/tools/ids"
)

// AppConfig holds node-level settings. Values come from the environment with
// development defaults, same knobs the deploy scripts set.
type AppConfig struct {
	NodeID      int64  // snowflake node, participates in conn ids
	Port        string // HTTP + WS listen port
	DatabaseURL string // pgx pool DSN
	JWTSecret   string

	RedisAddr     string // empty => presence mirror disabled
	RedisPassword string
	RedisDB       int

	PresenceTTL time.Duration // mirror key lifetime, renewed by ping ticker
}

var Global = AppConfig{
	NodeID:      1,
	Port:        "3002",
	JWTSecret:   "nexus-browser-secret-key-change-in-production",
	PresenceTTL: 60 * time.Second,
}

// Load reads the environment into Global. Call once from main().
func Load() {
	if v := os.Getenv("NODE_ID"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			Global.NodeID = n
		}
	}
	if v := os.Getenv("PORT"); v != "" {
		Global.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		Global.DatabaseURL = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		Global.JWTSecret = v
	}
	Global.RedisAddr = os.Getenv("REDIS_ADDR")
	Global.RedisPassword = os.Getenv("REDIS_PASSWORD")
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			Global.RedisDB = n
		}
	}
	if v := os.Getenv("PRESENCE_TTL_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			Global.PresenceTTL = time.Duration(n) * time.Second
		}
	}
}

func ConfigIds() {
	logger.Infof("[config] snowflake node id=%d", Global.NodeID)
	ids.SetNodeID(Global.NodeID)
}

func GetJwtSecret() []byte {
	return []byte(Global.JWTSecret)
}
