package application

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	alarms "vesselwatch/internal/alarms/domain"
)

// Config defines engine configuration.
type Config struct {
	RulesPath             string `yaml:"rules_path"`
	EscalationTickSeconds int    `yaml:"escalation_tick_seconds"`
	DispatchBudgetSeconds int    `yaml:"dispatch_budget_seconds"`
	WebhookURL            string `yaml:"webhook_url"`
	WebhookSecret         string `yaml:"webhook_secret"`
	HTTPAddr              string `yaml:"http_addr"`
	MetricsAddr           string `yaml:"metrics_addr"`
	PostgresDSN           string `yaml:"postgres_dsn"`
	NotifyCooldownSeconds int    `yaml:"notify_cooldown_seconds"`
	NotifyDedupeSeconds   int    `yaml:"notify_dedupe_seconds"`
}

// LoadConfig loads config from yaml or env.
func LoadConfig() (Config, error) {
	cfg := Config{
		RulesPath:             getenvDefault("VESSELWATCH_RULES", "rules.yaml"),
		EscalationTickSeconds: getenvIntDefault("VESSELWATCH_ESCALATION_TICK", 30),
		DispatchBudgetSeconds: getenvIntDefault("VESSELWATCH_DISPATCH_BUDGET", 5),
		WebhookURL:            os.Getenv("VESSELWATCH_WEBHOOK_URL"),
		WebhookSecret:         os.Getenv("VESSELWATCH_WEBHOOK_SECRET"),
		HTTPAddr:              getenvDefault("VESSELWATCH_HTTP_ADDR", ":8080"),
		MetricsAddr:           getenvDefault("VESSELWATCH_METRICS_ADDR", ":9090"),
		PostgresDSN:           os.Getenv("VESSELWATCH_POSTGRES_DSN"),
		NotifyCooldownSeconds: getenvIntDefault("VESSELWATCH_NOTIFY_COOLDOWN", 0),
		NotifyDedupeSeconds:   getenvIntDefault("VESSELWATCH_NOTIFY_DEDUPE", 0),
	}

	if path := os.Getenv("VESSELWATCH_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if cfg.EscalationTickSeconds <= 0 {
		cfg.EscalationTickSeconds = 30
	}
	if cfg.DispatchBudgetSeconds <= 0 {
		cfg.DispatchBudgetSeconds = 5
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	if cfg.RulesPath == "" {
		return cfg, errors.New("config: rules path required")
	}
	return cfg, nil
}

// RulesFile is the on-disk shape of a rules config.
type RulesFile struct {
	Rules []alarms.AlarmRule `yaml:"rules"`
}

// LoadRules reads and validates alarm rules from a yaml file.
func LoadRules(path string) ([]alarms.AlarmRule, error) {
	if path == "" {
		return nil, errors.New("config: empty rules path")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file RulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(file.Rules))
	for i := range file.Rules {
		rule := &file.Rules[i]
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("config: rule %q: %w", rule.ID, err)
		}
		if seen[rule.ID] {
			return nil, fmt.Errorf("config: duplicate rule id %q", rule.ID)
		}
		seen[rule.ID] = true
	}
	return file.Rules, nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
