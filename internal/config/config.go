package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file specified by BOTFORGE_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("BOTFORGE_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

// TelegramAPIURL overrides the upstream Bot API base URL.
// Empty selects the public endpoint.
func TelegramAPIURL() string {
	return os.Getenv("TELEGRAM_API_URL")
}

// AdminAPIKey is the static bearer key protecting the /v1 API.
func AdminAPIKey() string {
	return os.Getenv("ADMIN_API_KEY")
}

// ValidationTimeout bounds the token validation call.
// Defaults to 10 seconds.
func ValidationTimeout() time.Duration {
	return secondsEnv("VALIDATION_TIMEOUT_SECONDS", 10)
}

// MaxBotsPerOwner is the per-owner quota of non-rejected bots.
// Defaults to 3.
func MaxBotsPerOwner() int {
	n, err := strconv.Atoi(os.Getenv("MAX_BOTS_PER_OWNER"))
	if err != nil || n <= 0 {
		return 3
	}
	return n
}

// SweepInterval is how often the background sweeper runs expiration and
// cleanup. Defaults to 5 minutes.
func SweepInterval() time.Duration {
	return secondsEnv("SWEEP_INTERVAL_SECONDS", 300)
}

// WorkerStopTimeout bounds a graceful worker stop before force cancel.
// Defaults to 10 seconds.
func WorkerStopTimeout() time.Duration {
	return secondsEnv("WORKER_STOP_TIMEOUT_SECONDS", 10)
}

// PollTimeout is the long-poll hold time workers pass upstream.
// Defaults to 30 seconds.
func PollTimeout() time.Duration {
	return secondsEnv("POLL_TIMEOUT_SECONDS", 30)
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}

func secondsEnv(key string, def int) time.Duration {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		n = def
	}
	return time.Duration(n) * time.Second
}
