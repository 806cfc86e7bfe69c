// Package config loads server settings from the environment, after
// merging in a .env file when one is present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/sabiprep/sabiprep/internal/llm"
)

// Config is the full server configuration.
type Config struct {
	HTTPAddr string

	DBDriver string
	DBDSN    string

	JWTSecret     string
	TokenTTL      time.Duration
	AdminEmail    string
	AdminPassHash string // bcrypt
	SecureCookies bool

	GuestQuestionLimit int
	AutosaveInterval   time.Duration
	SessionIdleTimeout time.Duration
	DailyGoalQuestions int
	ReviewBatchSize    int

	CORSOrigins     []string
	ShutdownTimeout time.Duration

	LLM llm.Config
}

// Load reads .env (a missing file is ignored) and then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	cfg, err := from(os.Getenv)
	if err != nil {
		return nil, err
	}
	cfg.LLM = llm.ConfigFromEnv()
	return cfg, nil
}

func from(getenv func(string) string) (*Config, error) {
	e := env{getenv: getenv}
	cfg := &Config{
		HTTPAddr:           e.str("SABIPREP_HTTP_ADDR", ":8080"),
		DBDriver:           strings.ToLower(e.str("SABIPREP_DB_DRIVER", "sqlite")),
		DBDSN:              e.str("SABIPREP_DB_DSN", ""),
		JWTSecret:          e.str("SABIPREP_JWT_SECRET", ""),
		TokenTTL:           e.duration("SABIPREP_TOKEN_TTL", 8*time.Hour),
		AdminEmail:         strings.ToLower(e.str("SABIPREP_ADMIN_EMAIL", "")),
		AdminPassHash:      e.str("SABIPREP_ADMIN_PASS_HASH", ""),
		SecureCookies:      e.boolean("SABIPREP_SECURE_COOKIES", false),
		GuestQuestionLimit: e.integer("SABIPREP_GUEST_QUESTION_LIMIT", 5),
		AutosaveInterval:   e.duration("SABIPREP_AUTOSAVE_INTERVAL", 30*time.Second),
		SessionIdleTimeout: e.duration("SABIPREP_SESSION_IDLE_TIMEOUT", 30*time.Minute),
		DailyGoalQuestions: e.integer("SABIPREP_DAILY_GOAL_QUESTIONS", 20),
		ReviewBatchSize:    e.integer("SABIPREP_REVIEW_BATCH_SIZE", 5),
		CORSOrigins:        e.csv("SABIPREP_CORS_ORIGINS"),
		ShutdownTimeout:    e.duration("SABIPREP_SHUTDOWN_TIMEOUT", 10*time.Second),
	}
	if e.err != nil {
		return nil, e.err
	}
	if cfg.DBDriver != "sqlite" && cfg.DBDriver != "postgres" {
		return nil, fmt.Errorf("config: SABIPREP_DB_DRIVER=%q: want sqlite or postgres", cfg.DBDriver)
	}
	return cfg, nil
}

// env reads typed values and keeps the first parse error.
type env struct {
	getenv func(string) string
	err    error
}

func (e *env) str(k, def string) string {
	if v := strings.TrimSpace(e.getenv(k)); v != "" {
		return v
	}
	return def
}

func (e *env) integer(k string, def int) int {
	v := e.getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		e.fail(fmt.Errorf("config: %s=%q is not an integer", k, v))
		return def
	}
	return n
}

func (e *env) duration(k string, def time.Duration) time.Duration {
	v := e.getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		e.fail(fmt.Errorf("config: %s=%q is not a valid duration: %w", k, v, err))
		return def
	}
	return d
}

func (e *env) boolean(k string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(e.getenv(k))) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	default:
		return def
	}
}

func (e *env) csv(k string) []string {
	var out []string
	for _, p := range strings.Split(e.getenv(k), ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (e *env) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}
