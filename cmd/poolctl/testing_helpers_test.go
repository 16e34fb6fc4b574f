package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

// runCommand executes poolctl with args and returns what it wrote to stdout.
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetGlobalFlags(t)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return out.String(), err
}

// resetGlobalFlags restores flag variables that earlier runs may have set.
func resetGlobalFlags(t *testing.T) {
	t.Helper()
	verbose, quiet, jsonOut, logLevel = false, false, false, ""
}

// assertJSON checks that output is valid JSON
func assertJSON(t *testing.T, output string) {
	t.Helper()
	var result any
	if err := json.Unmarshal([]byte(output), &result); err != nil {
		t.Errorf("invalid JSON output: %v\nOutput: %s", err, output)
	}
}

// assertContains checks that output contains all expected strings
func assertContains(t *testing.T, output string, expected []string) {
	t.Helper()
	for _, want := range expected {
		if !strings.Contains(output, want) {
			t.Errorf("output missing expected string %q\nGot: %s", want, output)
		}
	}
}
