package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/ctrisenet/grant-scout/internal/ai/gemini"
	"github.com/ctrisenet/grant-scout/internal/grants"
	"github.com/ctrisenet/grant-scout/internal/logger"
	"github.com/ctrisenet/grant-scout/internal/pipeline"
	"github.com/ctrisenet/grant-scout/internal/secrets"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	PromptResearch   = "Research & rank grants"
	PromptRefresh    = "Refresh candidates (bypass cache)"
	PromptShowLast   = "Show last result"
	PromptDumpToFile = "Dump last result to file"
	PromptExit       = "Exit"
)

var errExit = errors.New("exit requested")

var prompt = promptui.Select{
	Label: "What next?",
	Items: []string{PromptResearch, PromptRefresh, PromptShowLast, PromptDumpToFile, PromptExit},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the grant-scout research pipeline",
	Run: func(cmd *cobra.Command, _ []string) {
		run(cmd)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolP("once", "o", false, "run the pipeline once, print the table and exit")
}

// run is the main command for the cli.
func run(cmd *cobra.Command) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting grant-scout", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	runner, err := newRunner(ctx, config, logger)
	if err != nil {
		logger.Fatal("building the pipeline",
			zap.Error(err),
			zap.String("hint", "set GEMINI_API_KEY, GEMINI_API_KEY_FILE or the 'ai.gemini.api-key-file' key in the configuration file"),
		)
	}

	fmt.Printf("Mission: %s\n\n", config.Mission)

	if once, _ := cmd.Flags().GetBool("once"); once {
		table, err := executeRun(ctx, runner, false, logger)
		if err != nil {
			logger.Fatal("pipeline run failed", zap.Error(err))
		}
		printTable(table)
		return
	}

	var lastTable *grants.Table
	for {
		_, action, err := prompt.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}

		next, err := handleAction(ctx, action, runner, lastTable, logger)
		if err != nil {
			if errors.Is(err, errExit) {
				return
			}
			logger.Error("action failed", zap.Error(err))
			continue
		}
		if next != nil {
			lastTable = next
		}
	}
}

// handleAction dispatches a menu choice. It returns a new table when the
// action produced one.
func handleAction(ctx context.Context, action string, runner *pipeline.Runner, lastTable *grants.Table, logger *zap.Logger) (*grants.Table, error) {
	switch action {
	case PromptResearch:
		table, err := executeRun(ctx, runner, false, logger)
		if err != nil {
			return nil, err
		}
		printTable(table)
		return table, nil
	case PromptRefresh:
		table, err := executeRun(ctx, runner, true, logger)
		if err != nil {
			return nil, err
		}
		printTable(table)
		return table, nil
	case PromptShowLast:
		printTable(lastTable)
		return nil, nil
	case PromptDumpToFile:
		if lastTable == nil {
			fmt.Println("No run yet - nothing to dump.")
			return nil, nil
		}
		filename, err := lastTable.DumpToTmpFile()
		if err != nil {
			return nil, fmt.Errorf("dump result to file: %w", err)
		}
		logger.Info("dumped result to file", zap.String("filename", filename))
		return nil, nil
	case PromptExit:
		logger.Info("exiting", zap.String("reason", "got exit from prompt"))
		return nil, errExit
	default:
		return nil, fmt.Errorf("invalid action: %s", action)
	}
}

func executeRun(ctx context.Context, runner *pipeline.Runner, refresh bool, logger *zap.Logger) (*grants.Table, error) {
	fmt.Println("Researching grants, this can take a minute...")

	table, err := runner.Run(ctx, refresh)
	if err != nil {
		return nil, fmt.Errorf("pipeline run: %w", err)
	}

	logger.Info("run completed", zap.Int("rows", table.Len()))

	return table, nil
}

// printTable renders the result, distinguishing "no run yet" from an empty run.
func printTable(table *grants.Table) {
	if table == nil {
		fmt.Println("No run yet - choose 'Research & rank grants' to start.")
		return
	}
	if table.Len() == 0 {
		fmt.Println("No usable grants returned - try again in a few minutes.")
		return
	}
	fmt.Println(table.Render())
}

func newRunner(ctx context.Context, config *Config, log *zap.Logger) (*pipeline.Runner, error) {
	provider := strings.TrimSpace(strings.ToLower(config.AI.Provider))
	if provider != "" && provider != "gemini" {
		return nil, fmt.Errorf("unsupported ai provider: %s", config.AI.Provider)
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: config.AI.Gemini.APIKey,
		File:  config.AI.Gemini.APIKeyFile,
		Env:   "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, err
	}

	genLogger := logger.WithCommonFields(log, "gemini", config.AI.Gemini.ChatModel, config.AI.Gemini.EmbedModel)

	generator, err := gemini.NewGenerator(ctx, apiKey, gemini.Config{
		ChatModel:      config.AI.Gemini.ChatModel,
		EmbedModel:     config.AI.Gemini.EmbedModel,
		EmbedDimension: config.AI.Gemini.EmbedDimension,
		Temperature:    config.AI.Temperature,
		MaxAttempts:    config.AI.Gemini.MaxAttempts,
		BaseDelay:      config.AI.Gemini.BaseDelay,
		QPS:            config.AI.Gemini.QPS,
		MaxLogLength:   config.AI.Gemini.MaxLogLength,
	}, genLogger)
	if err != nil {
		return nil, err
	}

	return pipeline.New(pipeline.Config{
		Mission:           config.Mission,
		Num:               config.Num,
		Top:               config.Top,
		PromptRetries:     config.Extract.PromptRetries,
		GenerateMaxTokens: config.Extract.MaxTokens,
		ClassifyMaxTokens: config.Classify.MaxTokens,
		CacheTTL:          config.Extract.CacheTTL,
	}, generator, log)
}
