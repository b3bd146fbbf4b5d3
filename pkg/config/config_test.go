package config

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"gopkg.in/yaml.v2"

	"github.com/pgdbg/pgdbg/pkg/alias"
	"github.com/pgdbg/pgdbg/pkg/tagged"
)

func TestDefaultConfigDecodes(t *testing.T) {
	var buf bytes.Buffer
	if err := writeDefaultConfig(&buf); err != nil {
		t.Fatal(err)
	}
	c, err := decode(&buf)
	if err != nil {
		t.Fatalf("default config does not decode: %v", err)
	}
	if c.Tags() != tagged.DefaultTags {
		t.Errorf("expected default tags, got %#v", c.Tags())
	}
	if c.AliasLen() != alias.DefaultMaxLen {
		t.Errorf("expected default alias length, got %d", c.AliasLen())
	}
	if c.AliasColor() != 32 {
		t.Errorf("expected default color 32, got %d", c.AliasColor())
	}
	if !reflect.DeepEqual(c.DebugInfoDirectories, []string{"/usr/lib/debug/.build-id"}) {
		t.Errorf("unexpected debug info directories %#v", c.DebugInfoDirectories)
	}
}

func TestPartialListTags(t *testing.T) {
	c, err := decode(bytes.NewBufferString("list-tags: {ptr: 7}\n"))
	if err != nil {
		t.Fatal(err)
	}
	want := tagged.DefaultTags
	want.Ptr = 7
	if c.Tags() != want {
		t.Fatalf("expected %#v, got %#v", want, c.Tags())
	}
	if k, err := c.Tags().Kind(tagged.DefaultTags.Int); err != nil || k != tagged.IntKind {
		t.Errorf("expected tag %d to stay an int list, got %v, %v", tagged.DefaultTags.Int, k, err)
	}
	if _, err := c.Tags().Kind(0); err == nil {
		t.Error("tag 0 must not name a list kind")
	}

	if _, err := decode(bytes.NewBufferString("list-tags: {ptr: 451}\n")); err == nil {
		t.Error("expected error for list tags shared by two kinds")
	}
}

func TestLoadConfigFrom(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	err := os.WriteFile(path, []byte(`
aliases:
  plan: ["p"]
list-tags: {ptr: 1, int: 381, oid: 382, xid: 383}
display-fields:
  RelabelType: ["resulttype"]
  Const: []
max-alias-len: 3
color: 0
scripts:
  plan: ["a.star", "b.star"]
`), 0o600)
	if err != nil {
		t.Fatal(err)
	}

	c, err := LoadConfigFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := (tagged.Tags{Ptr: 1, Int: 381, Oid: 382, Xid: 383}); c.Tags() != want {
		t.Errorf("expected %#v, got %#v", want, c.Tags())
	}
	if c.AliasLen() != 3 {
		t.Errorf("expected alias length 3, got %d", c.AliasLen())
	}
	if c.AliasColor() != 0 {
		t.Errorf("expected color disabled, got %d", c.AliasColor())
	}
	if !reflect.DeepEqual(c.Aliases["plan"], []string{"p"}) {
		t.Errorf("unexpected aliases %#v", c.Aliases)
	}
	if fields, ok := c.DisplayFields["Const"]; !ok || len(fields) != 0 {
		t.Errorf("expected empty field list for Const, got %#v", c.DisplayFields)
	}
	if !reflect.DeepEqual(c.Scripts.Plan, []string{"a.star", "b.star"}) || len(c.Scripts.Expr) != 0 {
		t.Errorf("unexpected scripts %#v", c.Scripts)
	}
}

func TestLoadConfigFromErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadConfigFrom(filepath.Join(dir, "missing.yml")); err == nil {
		t.Error("expected an error for a missing file")
	}
	bad := filepath.Join(dir, "bad.yml")
	if err := os.WriteFile(bad, []byte("max-alias-len: [1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfigFrom(bad); err == nil {
		t.Error("expected an error for malformed yaml")
	}
}

func TestLoadConfigCreatesDefault(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cfg")
	t.Setenv("PGDBG_CONFIG_DIR", dir)

	c := LoadConfig()
	if c.Tags() != tagged.DefaultTags {
		t.Errorf("expected default tags, got %#v", c.Tags())
	}
	if _, err := os.Stat(filepath.Join(dir, configFile)); err != nil {
		t.Fatalf("default config file not created: %v", err)
	}

	c.MaxAliasLen = 4
	if err := SaveConfig(c); err != nil {
		t.Fatal(err)
	}
	if got := LoadConfig().AliasLen(); got != 4 {
		t.Errorf("expected saved alias length 4, got %d", got)
	}

	hist, err := HistoryFilePath()
	if err != nil {
		t.Fatal(err)
	}
	if hist != filepath.Join(dir, historyFile) {
		t.Errorf("unexpected history path %q", hist)
	}
}

func TestSaveRoundTripKeepsUnsetColor(t *testing.T) {
	out, err := yaml.Marshal(Config{})
	if err != nil {
		t.Fatal(err)
	}
	c, err := decode(bytes.NewReader(out))
	if err != nil {
		t.Fatal(err)
	}
	if c.Color != nil || c.ListTags != nil {
		t.Errorf("unset options were written out: %s", out)
	}
}
