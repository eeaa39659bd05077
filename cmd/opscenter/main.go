package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/config"
)

const (
	appName = "opscenter"
	version = "v1.2.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	var configPath string
	var workers int

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Reasoning and dispatch core for operations signals",
		Version: version,
		Long: `opscenter ingests operations signals (email, chat, spreadsheet edits),
classifies them through an external model, decides on an action per
signal, and dispatches to the target platforms with human review for
anything that needs approval. Outcomes feed a learning loop that
derives sender/keyword patterns and evolves the classifier prompt.`,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline with the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return runPipeline(cmd.Context(), cfg, workers)
		},
	}
	runCmd.Flags().IntVar(&workers, "workers", 4, "Pipeline worker count")

	snapshotCmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Fetch the dashboard snapshot from a running instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return fetchSnapshot(cmd.Context(), cfg)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s %s\n", appName, version)
		},
	}

	rootCmd.AddCommand(runCmd, snapshotCmd, versionCmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func loadConfig(path string) (config.Config, error) {
	return config.Load(path)
}

func fetchSnapshot(ctx context.Context, cfg config.Config) error {
	url := fmt.Sprintf("http://%s:%d/snapshot", cfg.HTTP.Host, cfg.HTTP.Port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := (&http.Client{Timeout: 10 * time.Second}).Do(req)
	if err != nil {
		return fmt.Errorf("snapshot fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("snapshot fetch: HTTP %d", resp.StatusCode)
	}

	var pretty json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&pretty); err != nil {
		return err
	}
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
