// Copyright (C) 2025 Logan Ross
//
// This file is part of OpenGSLB – https://opengslb.org
//
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-OpenGSLB-Commercial

package invariant

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestCheck_PassingConditionDoesNothing(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	Check(logger, true, "outstanding >= 0, got %d", -1)

	if buf.Len() != 0 {
		t.Errorf("expected no log output for a passing check, got: %s", buf.String())
	}
}

func TestCheck_FailingConditionLogs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	Check(logger, false, "outstanding >= 0, got %d", -1)

	if !strings.Contains(buf.String(), "invariant violated") {
		t.Errorf("expected invariant log, got: %s", buf.String())
	}
}

func TestCheck_PanicsWhenDebugEnabled(t *testing.T) {
	Debug = true
	defer func() { Debug = false }()

	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic when Debug is true")
		}
	}()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	Check(logger, false, "ring_points sorted")
}
