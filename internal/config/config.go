package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Award policies for repeated accepted submissions on the same question.
const (
	AwardPolicyFirstAcceptance = "first_acceptance"
	AwardPolicyEveryAcceptance = "every_acceptance"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName             string
	AppEnv              string
	AppPort             string
	CORSAllowOrigins    string
	DatabaseURL         string
	RedisURL            string
	NATSURL             string
	KafkaBrokers        []string
	KafkaVerdictTopic   string
	JWTSecret           string
	LeaderboardCacheTTL time.Duration
	OpenAI              OpenAIConfig
	Scoring             ScoringConfig
	SubmitRateLimit     int
	SubmitRateWindow    time.Duration
}

// OpenAIConfig groups the model settings shared by evaluation and question generation.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
	MaxAttempts int
}

// ScoringConfig controls how accepted submissions turn into leaderboard points.
type ScoringConfig struct {
	AwardPoints       int
	AwardPolicy       string
	MaxAwardAttempts  int
	EnforceWindow     bool
	ReconcileInterval time.Duration
}

// FirstAcceptanceOnly reports whether only the first accepted submission per question scores.
func (s ScoringConfig) FirstAcceptanceOnly() bool {
	return s.AwardPolicy != AwardPolicyEveryAcceptance
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("CODEARENA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "CodeArena API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("cors.allow_origins", "*")
	v.SetDefault("kafka.verdict_topic", "submission.judged")
	v.SetDefault("leaderboard.cache_ttl", "30s")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.max_tokens", 1024)
	v.SetDefault("openai.temperature", 0.2)
	v.SetDefault("openai.timeout", "30s")
	v.SetDefault("openai.max_attempts", 2)
	v.SetDefault("scoring.award_points", 10)
	v.SetDefault("scoring.award_policy", AwardPolicyFirstAcceptance)
	v.SetDefault("scoring.max_award_attempts", 5)
	v.SetDefault("scoring.enforce_window", false)
	v.SetDefault("scoring.reconcile_interval", "1m")
	v.SetDefault("submit.rate_limit", 6)
	v.SetDefault("submit.rate_window", "1m")

	cacheTTL, err := parseDuration(v, "leaderboard.cache_ttl")
	if err != nil {
		return Config{}, err
	}
	aiTimeout, err := parseDuration(v, "openai.timeout")
	if err != nil {
		return Config{}, err
	}
	reconcileInterval, err := parseDuration(v, "scoring.reconcile_interval")
	if err != nil {
		return Config{}, err
	}
	rateWindow, err := parseDuration(v, "submit.rate_window")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:             v.GetString("app.name"),
		AppEnv:              v.GetString("app.env"),
		AppPort:             v.GetString("app.port"),
		CORSAllowOrigins:    v.GetString("cors.allow_origins"),
		DatabaseURL:         v.GetString("database.url"),
		RedisURL:            v.GetString("redis.url"),
		NATSURL:             v.GetString("nats.url"),
		KafkaBrokers:        splitList(v.GetString("kafka.brokers")),
		KafkaVerdictTopic:   v.GetString("kafka.verdict_topic"),
		JWTSecret:           v.GetString("jwt.secret"),
		LeaderboardCacheTTL: cacheTTL,
		OpenAI: OpenAIConfig{
			APIKey:      v.GetString("openai.api_key"),
			BaseURL:     v.GetString("openai.base_url"),
			Model:       v.GetString("openai.model"),
			MaxTokens:   v.GetInt("openai.max_tokens"),
			Temperature: float32(v.GetFloat64("openai.temperature")),
			Timeout:     aiTimeout,
			MaxAttempts: v.GetInt("openai.max_attempts"),
		},
		Scoring: ScoringConfig{
			AwardPoints:       v.GetInt("scoring.award_points"),
			AwardPolicy:       strings.ToLower(strings.TrimSpace(v.GetString("scoring.award_policy"))),
			MaxAwardAttempts:  v.GetInt("scoring.max_award_attempts"),
			EnforceWindow:     v.GetBool("scoring.enforce_window"),
			ReconcileInterval: reconcileInterval,
		},
		SubmitRateLimit:  v.GetInt("submit.rate_limit"),
		SubmitRateWindow: rateWindow,
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	switch cfg.Scoring.AwardPolicy {
	case AwardPolicyFirstAcceptance, AwardPolicyEveryAcceptance:
	default:
		return Config{}, fmt.Errorf("invalid scoring award policy %q", cfg.Scoring.AwardPolicy)
	}

	if cfg.Scoring.AwardPoints <= 0 {
		cfg.Scoring.AwardPoints = 10
	}

	if cfg.Scoring.MaxAwardAttempts <= 0 {
		cfg.Scoring.MaxAwardAttempts = 5
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" || raw == "0" {
		return 0, nil
	}

	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
