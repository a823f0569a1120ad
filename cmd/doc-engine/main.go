// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the doc-engine CLI.
// Implements: prd003-orchestration, prd005-lookup, prd006-memory,
//             prd007-creation (CLI surface).
// See docs/ARCHITECTURE § Pipeline Interface, § Project Structure.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/doc-engine/internal/httputil"
	"github.com/pdiddy/doc-engine/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// secretDefault returns the secret value for key if it exists, or fallback otherwise.
func secretDefault(key, fallback string) string {
	if fallback != "" {
		return fallback
	}
	if v, ok := loadedSecrets[key]; ok {
		return v
	}
	return ""
}

// rootCmd is the base command for the doc-engine CLI.
var rootCmd = &cobra.Command{
	Use:   "doc-engine",
	Short: "Agent-driven Markdown document enhancement",
	Long: `doc-engine enhances Markdown documents section by section through a
pipeline of role-specialized agent stages: enrichment, optional
fact-checking, encyclopedia linking, and a final editorial merge. A
recovery ladder guarantees the output is never worse than the input.

Each operation is a subcommand: enhance an existing document, create a
new one from a topic, inspect a document's sections, query the
encyclopedia backend, or manage the cross-run memory store.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(".secrets/")
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
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			httputil.Progress = os.Stderr
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./doc-engine.yaml or ~/.config/doc-engine/config.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "write stage-by-stage progress to stderr")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("doc-engine")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "doc-engine"))
		}
	}

	viper.SetEnvPrefix("DOC_ENGINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// The only default that cannot ride on a zero value: an unset key
	// must mean memory on, not off.
	viper.SetDefault("memory.enabled", true)

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
