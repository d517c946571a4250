// Copyright (C) 2025 Logan Ross
//
// This file is part of OpenGSLB – https://opengslb.org
//
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-OpenGSLB-Commercial

// Package cmd implements the gslbctl subcommands.
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/gslbd/gslbd/cmd/gslbctl/output"
)

var (
	apiEndpoint    string
	timeoutSeconds int
	jsonOutput     bool

	formatter output.Formatter
)

var rootCmd = &cobra.Command{
	Use:   "gslbctl",
	Short: "Inspect a running gslbd instance",
	Long: `gslbctl talks to a gslbd admin API and reports pool status and
per-backend load/health, for operators and scripts.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		formatter = output.New(jsonOutput)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiEndpoint, "api", envOrDefault("GSLBD_API", "http://127.0.0.1:8080"), "gslbd admin API endpoint")
	rootCmd.PersistentFlags().IntVar(&timeoutSeconds, "timeout", 10, "API request timeout in seconds")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(backendsCmd)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
