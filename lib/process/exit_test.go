// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"bytes"
	"errors"
	"testing"
)

func TestReportFormat(t *testing.T) {
	var buffer bytes.Buffer
	report(&buffer, errors.New("listen :8080: address already in use"))

	if got, want := buffer.String(), "error: listen :8080: address already in use\n"; got != want {
		t.Errorf("report wrote %q, want %q", got, want)
	}
}
