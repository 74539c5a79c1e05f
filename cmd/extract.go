package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/career-assistant/internal/logger"
	"github.com/spigell/career-assistant/internal/profile"
	"github.com/spigell/career-assistant/internal/textextract"
)

var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Extract a structured profile from a résumé and print it as JSON",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		extract(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().BoolP("text-only", "t", false, "print the raw extracted text and skip the language model")
}

func extract(cmd *cobra.Command, path string) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Fatal("reading résumé", zap.Error(err))
	}

	text, err := textextract.Extract(textextract.Document{Name: filepath.Base(path), Data: data})
	if err != nil {
		logger.Fatal("extracting text", zap.Error(err), zap.String("path", path))
	}

	if textOnly, _ := cmd.Flags().GetBool("text-only"); textOnly {
		fmt.Println(text)
		return
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	generator, err := newGenerator(ctx, config, logger)
	if err != nil {
		logger.Fatal("creating the language model client", zap.Error(err))
	}
	if generator == nil {
		logger.Fatal("a language model is required to extract a profile", zap.String("hint", "use --text-only to print the raw text"))
	}

	p, err := profile.NewExtractor(generator, config.Gemini.Timeout, logger).Extract(ctx, text)
	if err != nil {
		logger.Fatal("extracting profile", zap.Error(err))
	}

	pretty, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		logger.Fatal("encoding profile", zap.Error(err))
	}
	fmt.Println(string(pretty))
}
