package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/rehab-triage/internal/config"
	"github.com/danielpatrickdp/rehab-triage/internal/logging"
)

var (
	// Global flags
	configPath string
	envFile    string
	logMode    string
	remoteAddr string

	cfg    *config.Config
	logger *logging.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "triage",
	Short: "Musculoskeletal triage and exercise-difficulty engine",
	Long: `triage scores symptom reports into diagnostic buckets, fuses the ranking
with retrieved evidence, and plans the allowed exercise difficulty range for
a patient from intake capability, pain and recent session reports.

Commands run against the local database unless --remote points at a running
"triage serve" instance.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 1. .env before config so TRIAGE_* overrides see it
		if err := loadEnv(envFile); err != nil {
			return err
		}

		// 2. YAML + env config
		c, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if logMode != "" {
			c.Logging.Mode = logMode
		}
		cfg = c

		// 3. Logger
		logger, err = logging.New(cfg.Logging.Mode)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", envOr("TRIAGE_CONFIG", "triage.yaml"), "path to the YAML config")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")
	rootCmd.PersistentFlags().StringVar(&logMode, "log-mode", "", "override logging mode (dev, prod)")
	rootCmd.PersistentFlags().StringVar(&remoteAddr, "remote", "", "run diagnose/plan/sanitize/record against a triage server")

	rootCmd.AddCommand(
		serveCmd,
		serveEvidenceCmd,
		diagnoseCmd,
		planCmd,
		sanitizeCmd,
		recordCmd,
		resolveCmd,
		inspectCmd,
		exportFixtureCmd,
		importWeightsCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// #region helpers
// loadEnv reads a dotenv file into the process environment. A missing file
// is fine; variables already set win.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers
