package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stellarlinkco/evalsight-go/internal/runstore"
)

func TestRootCmdHasSubcommands(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	want := map[string]bool{"gen": false, "serve": false, "runs": false}
	for _, cmd := range root.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing subcommand %s", name)
		}
	}
}

func TestRunsCmdListsRuns(t *testing.T) {
	t.Parallel()

	storePath := filepath.Join(t.TempDir(), "runs.db")
	st, err := runstore.Open(storePath)
	if err != nil {
		t.Fatalf("runstore.Open: %v", err)
	}

	ctx := context.Background()
	started := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	if err := st.CreateRun(ctx, &runstore.RunRecord{
		ID:             "run-1",
		TestExternalID: "my-suite",
		StartedAt:      started,
	}); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if err := st.EndRun(ctx, "run-1", started.Add(3*time.Second)); err != nil {
		t.Fatalf("EndRun: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"runs", "my-suite", "--store", storePath})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	text := out.String()
	if !strings.Contains(text, "run-1") || !strings.Contains(text, "3s") {
		t.Errorf("unexpected output:\n%s", text)
	}
}

func TestGenCmdFailsWithoutConfig(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"gen", "--config", filepath.Join(t.TempDir(), "missing.yaml")})
	if err := root.Execute(); err == nil {
		t.Fatal("expected error for missing config")
	}
}
