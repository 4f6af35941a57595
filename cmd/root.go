package cmd

import (
	"errors"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app = "grant-scout"
)

// defaultMission anchors relevance scoring when the config does not override it.
const defaultMission = "The Connecticut RISE Network empowers public high schools with " +
	"data-driven strategies and personalized support to improve student outcomes " +
	"and promote postsecondary success, especially for Black, Latinx, " +
	"and low-income youth."

type Config struct {
	Mission string `mapstructure:"mission"`
	Num     int    `mapstructure:"num"`
	Top     int    `mapstructure:"top"`

	Extract  *ExtractConfig  `mapstructure:"extract"`
	Classify *ClassifyConfig `mapstructure:"classify"`
	AI       *AIConfig       `mapstructure:"ai"`
}

type ExtractConfig struct {
	PromptRetries int           `mapstructure:"prompt-retries"`
	MaxTokens     int32         `mapstructure:"max-tokens"`
	CacheTTL      time.Duration `mapstructure:"cache-ttl"`
}

type ClassifyConfig struct {
	MaxTokens int32 `mapstructure:"max-tokens"`
}

type AIConfig struct {
	Provider string `mapstructure:"provider"`
	// Temperature is optional; zero is a valid override and leaving the key
	// out keeps the provider default.
	Temperature *float64      `mapstructure:"temperature"`
	Gemini      *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey         string        `mapstructure:"api-key"`
	APIKeyFile     string        `mapstructure:"api-key-file"`
	ChatModel      string        `mapstructure:"chat-model"`
	EmbedModel     string        `mapstructure:"embed-model"`
	EmbedDimension int           `mapstructure:"embed-dimension"`
	BaseDelay      time.Duration `mapstructure:"base-delay"`
	MaxAttempts    int           `mapstructure:"max-attempts"`
	QPS            float64       `mapstructure:"qps"`
	MaxLogLength   int           `mapstructure:"max-log-length"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "grant-scout researches grant opportunities and ranks them against a mission statement",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	if err := viper.BindEnv("ai.gemini.api-key", "GEMINI_API_KEY"); err != nil {
		log.Fatalf("binding GEMINI_API_KEY environment variable: %v", err)
	}
	if err := viper.BindEnv("ai.gemini.api-key-file", "GEMINI_API_KEY_FILE"); err != nil {
		log.Fatalf("binding GEMINI_API_KEY_FILE environment variable: %v", err)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is grant-scout.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	// Config needed only for run command now. If there is no config, we can skip initialization
	if runCmd.CalledAs() == "" {
		return
	}

	// Pick up GEMINI_API_KEY and friends from a local .env when present.
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app + ".yaml")
	}

	// Every knob has a default, so a missing default config file is fine.
	// An explicitly requested or unparseable config file is not.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return
		}
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	config := &Config{}
	err := viper.Unmarshal(config)
	if err != nil {
		return config, err
	}

	if config.Mission == "" {
		config.Mission = defaultMission
	}
	if config.AI == nil {
		config.AI = &AIConfig{}
	}
	if config.AI.Gemini == nil {
		config.AI.Gemini = &GeminiConfig{}
	}
	if config.Extract == nil {
		config.Extract = &ExtractConfig{}
	}
	if config.Classify == nil {
		config.Classify = &ClassifyConfig{}
	}

	return config, nil
}
