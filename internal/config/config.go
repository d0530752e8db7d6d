package config

import (
	"fmt"
	"os"

	"finetuner/internal/classifier"
	"finetuner/internal/evaluator"
	"finetuner/internal/ingest"
	"finetuner/internal/orchestrator"
	"finetuner/internal/scheduler"

	"gopkg.in/yaml.v3"
)

// Config holds the application's configuration.
type Config struct {
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Provider struct {
		URL    string `yaml:"url"`
		APIKey string `yaml:"api_key"`
	} `yaml:"provider"`
	Cron struct {
		TriggerSchedule string `yaml:"trigger_schedule"`
		PollSchedule    string `yaml:"poll_schedule"`
	} `yaml:"cron"`
	Classifier   classifier.Config   `yaml:"classifier"`
	Orchestrator orchestrator.Config `yaml:"orchestrator"`
	Scheduler    scheduler.Config    `yaml:"scheduler"`
	Evaluator    evaluator.Config    `yaml:"evaluator"`
	Ingest       ingest.Config       `yaml:"ingest"`
}

// LoadConfig reads configuration from the specified YAML file.
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}

	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	if config.Cron.TriggerSchedule == "" {
		config.Cron.TriggerSchedule = "0 2 * * *"
	}
	if config.Cron.PollSchedule == "" {
		config.Cron.PollSchedule = "*/10 * * * *"
	}

	return config, nil
}
