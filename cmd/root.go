package cmd

import (
	"errors"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/career-assistant/internal/events"
	"github.com/spigell/career-assistant/internal/filtering"
	"github.com/spigell/career-assistant/internal/matching"
	"github.com/spigell/career-assistant/internal/postings"
)

const (
	app = "career-assistant"
)

type Config struct {
	Gemini        *GeminiConfig        `mapstructure:"gemini"`
	FranceTravail *FranceTravailConfig `mapstructure:"france_travail"`
	Matching      *matching.Weights    `mapstructure:"matching"`
	Filters       *filtering.Config    `mapstructure:"filters"`
	Retry         *RetryConfig         `mapstructure:"retry"`
	Session       *SessionConfig       `mapstructure:"session"`
	Events        *events.AMQPConfig   `mapstructure:"events"`
}

type GeminiConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	APIKeyFile   string        `mapstructure:"api_key_file"`
	Model        string        `mapstructure:"model"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxLogLength int           `mapstructure:"max_log_length"`
}

type FranceTravailConfig struct {
	postings.Config  `mapstructure:",squash"`
	ClientIDFile     string `mapstructure:"client_id_file"`
	ClientSecretFile string `mapstructure:"client_secret_file"`
}

type RetryConfig struct {
	Backoff       time.Duration `mapstructure:"backoff"`
	MaxBackoff    time.Duration `mapstructure:"max_backoff"`
	TimeoutFactor float64       `mapstructure:"timeout_factor"`
}

type SessionConfig struct {
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	RedisURL    string        `mapstructure:"redis_url"`
	RedisPrefix string        `mapstructure:"redis_prefix"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "career-assistant is a conversational helper for job seekers: résumé analysis, France Travail job search and interview preparation",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	envs := map[string]string{
		"gemini.api_key_file":               "GEMINI_API_KEY_FILE",
		"france_travail.client_id_file":     "FRANCE_TRAVAIL_CLIENT_ID_FILE",
		"france_travail.client_secret_file": "FRANCE_TRAVAIL_CLIENT_SECRET_FILE",
		"session.redis_url":                 "REDIS_URL",
		"events.url":                        "AMQP_URL",
	}
	for key, env := range envs {
		if err := viper.BindEnv(key, env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	setDefaults()

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is career-assistant.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func setDefaults() {
	weights := matching.DefaultWeights()
	viper.SetDefault("matching.skill", weights.Skill)
	viper.SetDefault("matching.recency", weights.Recency)
	viper.SetDefault("matching.min_overlap", weights.MinOverlap)
	viper.SetDefault("matching.half_life", weights.HalfLife)
	viper.SetDefault("matching.top_n", weights.TopN)

	viper.SetDefault("gemini.model", "gemini-2.5-flash")
	viper.SetDefault("gemini.timeout", 30*time.Second)
	viper.SetDefault("france_travail.timeout", 10*time.Second)

	viper.SetDefault("retry.backoff", 2*time.Second)
	viper.SetDefault("retry.max_backoff", 30*time.Second)
	viper.SetDefault("retry.timeout_factor", 0.5)

	viper.SetDefault("session.idle_timeout", 30*time.Minute)
	viper.SetDefault("events.exchange", events.DefaultExchange)
}

func initConfig() {
	// Values from .env are visible to viper and the secrets loader. A missing file is fine.
	_ = godotenv.Load()

	if versionCmd.CalledAs() != "" {
		return
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// An explicit config must parse. The default one may be absent.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	if config == nil {
		config = &Config{}
	}
	if config.Gemini == nil {
		config.Gemini = &GeminiConfig{}
	}
	if config.FranceTravail == nil {
		config.FranceTravail = &FranceTravailConfig{}
	}
	if config.Matching == nil {
		weights := matching.DefaultWeights()
		config.Matching = &weights
	}
	if config.Retry == nil {
		config.Retry = &RetryConfig{}
	}
	if config.Session == nil {
		config.Session = &SessionConfig{}
	}
	if config.Events == nil {
		config.Events = &events.AMQPConfig{}
	}

	return config, nil
}
