// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/MorningCoach/pkg/config"
	"github.com/AleutianAI/MorningCoach/pkg/logging"
)

// --- Global Command Variables ---
var (
	configPath string
	logLevel   string
	logDir     string

	// Set by the root PersistentPreRunE.
	appConfig config.Config
	appLogger *logging.Logger

	rootCmd = &cobra.Command{
		Use:           "morningcoach",
		Short:         "Voice coaching calls that plan your day",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if appLogger != nil {
				_ = appLogger.Close()
			}
		},
	}

	// --- Service ---
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the telephony webhooks and the admin API",
		Args:  cobra.NoArgs,
		RunE:  runServe, // Defined in cmd_serve.go
	}

	// --- Calls ---
	callCmd = &cobra.Command{
		Use:   "call [phone number]",
		Short: "Place an outbound coaching call now",
		Args:  cobra.ExactArgs(1),
		RunE:  runCall, // Defined in cmd_call.go
	}

	simulateCmd = &cobra.Command{
		Use:   "simulate [transcript file]",
		Short: "Replay caller lines through the conversation engine and print the summary",
		Long: `Reads one caller utterance per line. Blank lines and "(silence)" are
silences, lines starting with # are ignored. Prints each coach reply and
the finalized session record. Nothing is written to the journals.`,
		Args: cobra.ExactArgs(1),
		RunE: runSimulate, // Defined in cmd_simulate.go
	}
)

var (
	simulateOffline bool
	simulateFrom    string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"config file (default: ./morningcoach.yaml, then ~/.morningcoach/morningcoach.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"override log.level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "",
		"override log.dir, enables file logging")

	simulateCmd.Flags().BoolVar(&simulateOffline, "offline", false,
		"skip the LLM: scripted replies and heuristic summary")
	simulateCmd.Flags().StringVar(&simulateFrom, "from", "+15550000000",
		"caller number recorded on the simulated call")

	rootCmd.AddCommand(serveCmd, callCmd, simulateCmd)
}

// setup loads configuration and installs the process logger.
func setup(cmd *cobra.Command) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logDir != "" {
		cfg.Log.Dir = logDir
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	appLogger = logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Log.Dir,
		Service: cmd.Name(),
		JSON:    consoleJSON(cfg.Log.Format, cmd.ErrOrStderr()),
		Output:  cmd.ErrOrStderr(),
	})
	appLogger.SetDefault()
	appConfig = cfg
	return nil
}

// consoleJSON resolves log.format for the console writer. "auto" picks
// text for an interactive terminal and JSON for pipes, files and
// service managers.
func consoleJSON(format string, w io.Writer) bool {
	switch format {
	case "json":
		return true
	case "text":
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return true
	}
	return !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd())
}
