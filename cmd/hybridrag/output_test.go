package main

import (
	"strings"
	"testing"
)

func TestColorize(t *testing.T) {
	noColor = false
	defer func() { noColor = false }()

	got := colorize(colorGreen, "done")
	if !strings.HasPrefix(got, colorGreen) || !strings.HasSuffix(got, colorReset) {
		t.Errorf("colorize = %q, want wrapped in escape codes", got)
	}

	noColor = true
	if got := colorize(colorGreen, "done"); got != "done" {
		t.Errorf("colorize with no-color = %q, want plain text", got)
	}
}
