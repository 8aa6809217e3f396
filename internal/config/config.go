package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Load reads the .env file specified by SYNAPSE_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("SYNAPSE_ENV")
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

func MigrationsPath() string {
	p := os.Getenv("MIGRATIONS_PATH")
	if p == "" {
		return "migrations"
	}
	return p
}

// NeuralEnabled controls whether the updater attempts to load a model at all.
func NeuralEnabled() bool {
	return os.Getenv("NEURAL_ENABLED") != "false"
}

// ModelPath is where the trainer writes and the updater reads the model
// artifact.
func ModelPath() string {
	p := os.Getenv("MODEL_PATH")
	if p == "" {
		return "models/attention.json"
	}
	return p
}

// FallbackToHeuristic controls whether a model load failure degrades the
// updater to heuristic-only instead of failing startup.
// Should always be true in production.
func FallbackToHeuristic() bool {
	return os.Getenv("FALLBACK_TO_HEURISTIC") != "false"
}

// AutoTrain enables a readiness-gated training run at server startup.
func AutoTrain() bool {
	return os.Getenv("AUTO_TRAIN") == "true"
}

// MinTrainingExamples is the readiness-gate floor.
// Defaults to 50 if not set.
func MinTrainingExamples() int {
	n, err := strconv.Atoi(os.Getenv("MIN_TRAINING_EXAMPLES"))
	if err != nil || n <= 0 {
		return 50
	}
	return n
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
