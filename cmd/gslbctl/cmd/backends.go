// Copyright (C) 2025 Logan Ross
//
// This file is part of OpenGSLB – https://opengslb.org
//
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-OpenGSLB-Commercial

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// backendStatus mirrors internal/api's GET /backends response shape.
type backendStatus struct {
	Pool          string `json:"pool"`
	ID            string `json:"id"`
	Address       string `json:"address"`
	Port          int    `json:"port"`
	Health        string `json:"health"`
	Weight        int32  `json:"weight"`
	Order         int    `json:"order"`
	Queries       uint64 `json:"queries"`
	Reuseds       uint64 `json:"reuseds"`
	Outstanding   int64  `json:"outstanding"`
	LatencyEWMAus int64  `json:"latency_ewma_us"`
}

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List backends and their current load/health",
	RunE: func(cmd *cobra.Command, args []string) error {
		var backends []backendStatus
		if err := newAPIClient().get("/backends", &backends); err != nil {
			return err
		}

		if jsonOutput {
			return formatter.Print(backends)
		}

		if len(backends) == 0 {
			fmt.Println("no backends registered")
			return nil
		}

		rows := make([][]string, 0, len(backends))
		for _, b := range backends {
			rows = append(rows, []string{
				b.Pool,
				b.ID,
				fmt.Sprintf("%s:%d", b.Address, b.Port),
				b.Health,
				fmt.Sprintf("%d", b.Weight),
				fmt.Sprintf("%d", b.Outstanding),
				fmt.Sprintf("%d", b.LatencyEWMAus),
			})
		}
		formatter.PrintTable([]string{"POOL", "ID", "ADDRESS", "HEALTH", "WEIGHT", "OUTSTANDING", "LATENCY_US"}, rows)
		return nil
	},
}
