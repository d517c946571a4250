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

// poolStatus mirrors internal/api's GET /status response shape.
type poolStatus struct {
	Name          string `json:"name"`
	Policy        string `json:"policy"`
	TotalWeightUp int64  `json:"total_weight_up"`
	UpCount       int    `json:"up_count"`
	DownCount     int    `json:"down_count"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show per-pool selection status",
	RunE: func(cmd *cobra.Command, args []string) error {
		var pools []poolStatus
		if err := newAPIClient().get("/status", &pools); err != nil {
			return err
		}

		if jsonOutput {
			return formatter.Print(pools)
		}

		if len(pools) == 0 {
			fmt.Println("no pools configured")
			return nil
		}

		rows := make([][]string, 0, len(pools))
		for _, p := range pools {
			rows = append(rows, []string{
				p.Name,
				p.Policy,
				fmt.Sprintf("%d", p.TotalWeightUp),
				fmt.Sprintf("%d", p.UpCount),
				fmt.Sprintf("%d", p.DownCount),
			})
		}
		formatter.PrintTable([]string{"POOL", "POLICY", "WEIGHT_UP", "UP", "DOWN"}, rows)
		return nil
	},
}
