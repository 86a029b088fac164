// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the paper-collector CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/paper-collector/internal/logger"
	"github.com/pdiddy/paper-collector/internal/metrics"
	"github.com/pdiddy/paper-collector/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	// loadedSecrets holds credentials loaded from the secrets directory at startup.
	loadedSecrets map[string]string

	// log is the process logger, built from --log-level and --log-format.
	log = zap.NewNop()
)

// rootCmd is the base command for the paper-collector CLI.
var rootCmd = &cobra.Command{
	Use:   "paper-collector",
	Short: "Collect arXiv paper metadata into reviewable run directories",
	Long: `paper-collector fetches arXiv search results for a set of labelled queries
into a run directory, then merges the papers a reviewer chose to keep into a
deduplicated corpus with one metadata directory per paper.

Typical flow: init creates the run, fetch or batch fill query_results/, and
merge materializes the selection. Every request shares a rate-limit state file
so concurrent runs stay within one API budget.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := logger.New(viper.GetString(keyLogFormat), viper.GetString(keyLogLevel))
		if err != nil {
			return err
		}
		log = l
		cmd.SetContext(logger.ContextWithLogger(cmd.Context(), l))

		s, err := secrets.Load(viper.GetString(keySecretsDir), log)
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			log.Debug("loaded secrets", zap.Strings("keys", keys))
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)
	setDefaults()

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./paper-collector.yaml or ~/.config/paper-collector/paper-collector.yaml)")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", "console", "log format: console or json")
	pf.String("metrics-file", "", "write Prometheus metrics to this textfile on exit")
	pf.String("secrets-dir", secrets.DefaultDir, "directory of secret key files")

	_ = viper.BindPFlag(keyLogLevel, pf.Lookup("log-level"))
	_ = viper.BindPFlag(keyLogFormat, pf.Lookup("log-format"))
	_ = viper.BindPFlag(keyMetricsFile, pf.Lookup("metrics-file"))
	_ = viper.BindPFlag(keySecretsDir, pf.Lookup("secrets-dir"))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("paper-collector")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "paper-collector"))
		}
	}

	viper.SetEnvPrefix("PAPER_COLLECTOR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if merr := metrics.WriteTextfile(viper.GetString(keyMetricsFile)); merr != nil {
		fmt.Fprintln(os.Stderr, "Error:", merr)
	}
	_ = log.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
