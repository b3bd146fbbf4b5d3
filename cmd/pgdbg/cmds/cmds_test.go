package cmds

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("PGDBG_CONFIG_DIR", t.TempDir())
	root := New(false)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestDemo(t *testing.T) {
	out, err := runCommand(t, "demo")
	if err != nil {
		t.Fatalf("demo: %v\n%s", err, out)
	}
	for _, want := range []string{
		"WHERE clause:",
		"$a0 (BoolExpr *)",
		"--$a1 (OpExpr *)",
		"plan:",
		"(HashJoin *)",
		"(IndexScan *)",
		"expressions:",
		"List with 3 ptr_value elements",
		"OIDs:",
		"List with 2 oid_value elements",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output does not contain %q:\n%s", want, out)
		}
	}
}

func TestDemoSection(t *testing.T) {
	out, err := runCommand(t, "demo", "plan")
	if err != nil {
		t.Fatalf("demo plan: %v", err)
	}
	if strings.Contains(out, "WHERE clause:") || !strings.HasPrefix(out, "plan:\n") {
		t.Errorf("unexpected output:\n%s", out)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 6 {
		t.Errorf("expected a title and 5 plan nodes, got %d lines:\n%s", len(lines), out)
	}

	if _, err := runCommand(t, "demo", "bogus"); err == nil {
		t.Error("expected error for unknown demo")
	}
}

func TestWalkNeedsCore(t *testing.T) {
	_, err := runCommand(t, "expr", "0x10")
	if err == nil || !strings.Contains(err.Error(), "--core and --exe") {
		t.Fatalf("expected missing core error, got %v", err)
	}
	_, err = runCommand(t, "--core", filepath.Join(t.TempDir(), "missing"), "--exe", os.Args[0], "plan", "0x10")
	if err == nil || !strings.Contains(err.Error(), "could not open core file") {
		t.Fatalf("expected open error, got %v", err)
	}
}

func TestVersion(t *testing.T) {
	out, err := runCommand(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "pgdbg\nVersion: ") {
		t.Errorf("unexpected version output %q", out)
	}
}

func TestConfigFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte("max-alias-len: [\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := runCommand(t, "--config", path, "demo"); err == nil {
		t.Fatal("expected error loading malformed configuration")
	}
}
