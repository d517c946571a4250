// Copyright (C) 2025 Logan Ross
//
// This file is part of OpenGSLB – https://opengslb.org
//
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-OpenGSLB-Commercial

// Package output renders gslbctl command results as either a
// human-readable table or JSON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

// Formatter renders command output in one consistent format.
type Formatter interface {
	Print(data any) error
	PrintTable(headers []string, rows [][]string)
	PrintKeyValue(pairs []KVPair)
}

// KVPair is one row of a key/value summary rendered by PrintKeyValue.
type KVPair struct {
	Key   string
	Value string
}

// TableFormatter writes tab-aligned, human-readable output.
type TableFormatter struct {
	Writer io.Writer
}

func NewTableFormatter() *TableFormatter {
	return &TableFormatter{Writer: os.Stdout}
}

func (f *TableFormatter) Print(data any) error {
	fmt.Fprintf(f.Writer, "%+v\n", data)
	return nil
}

func (f *TableFormatter) PrintTable(headers []string, rows [][]string) {
	if len(rows) == 0 {
		fmt.Fprintln(f.Writer, "no data")
		return
	}

	w := tabwriter.NewWriter(f.Writer, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, strings.Join(headers, "\t"))
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
}

func (f *TableFormatter) PrintKeyValue(pairs []KVPair) {
	width := 0
	for _, p := range pairs {
		if len(p.Key) > width {
			width = len(p.Key)
		}
	}
	for _, p := range pairs {
		fmt.Fprintf(f.Writer, "%-*s  %s\n", width+1, p.Key+":", p.Value)
	}
}

// JSONFormatter writes indented JSON.
type JSONFormatter struct {
	Writer io.Writer
}

func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{Writer: os.Stdout}
}

func (f *JSONFormatter) Print(data any) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func (f *JSONFormatter) PrintTable(headers []string, rows [][]string) {
	out := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		obj := make(map[string]string, len(headers))
		for i, h := range headers {
			if i < len(row) {
				obj[strings.ToLower(strings.ReplaceAll(h, " ", "_"))] = row[i]
			}
		}
		out = append(out, obj)
	}
	f.Print(out)
}

func (f *JSONFormatter) PrintKeyValue(pairs []KVPair) {
	obj := make(map[string]string, len(pairs))
	for _, p := range pairs {
		obj[strings.ToLower(strings.ReplaceAll(p.Key, " ", "_"))] = p.Value
	}
	f.Print(obj)
}

// New picks a Formatter based on the --json flag.
func New(jsonOutput bool) Formatter {
	if jsonOutput {
		return NewJSONFormatter()
	}
	return NewTableFormatter()
}
