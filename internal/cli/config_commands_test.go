package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rescale/credvend/internal/config"
)

// runCLI executes the full command tree with args and returns stdout.
func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cfgFile, verbose, debug = "", false, false

	root := NewRootCmd()
	AddCommands(root)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

const testProperties = `
server.port=9090
aws.region=eu-west-1
s3.bucketPath.0=s3://lake
s3.accessKey.0=AKIAEXAMPLE
s3.secretKey.0=wJalrXUtnFEMI
adls.containerPath.0=abfss://data@acct.dfs.core.windows.net
adls.tenantId.0=tenant-1
adls.clientId.0=client-1
adls.clientSecret.0=hunter2hunter2
`

func TestConfigCommandTree(t *testing.T) {
	cmd := newConfigCmd()
	want := map[string]bool{"show": false, "test": false, "path": false}
	for _, sub := range cmd.Commands() {
		if _, ok := want[sub.Name()]; ok {
			want[sub.Name()] = true
		}
		if sub.Short == "" {
			t.Errorf("%s has no short description", sub.Name())
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("config %s is missing", name)
		}
	}
}

func TestConfigShow_MasksSecrets(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "server.properties", testProperties)

	out, err := runCLI(t, "", "config", "show", "--config", path)
	if err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	for _, leaked := range []string{"AKIAEXAMPLE", "wJalrXUtnFEMI", "hunter2hunter2"} {
		if strings.Contains(out, leaked) {
			t.Errorf("secret %q printed without --reveal:\n%s", leaked, out)
		}
	}
	for _, want := range []string{"9090", "eu-west-1", "s3://lake", "abfss://data@acct.dfs.core.windows.net", "tenant-1", "<set (11 chars)>", path} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	// Buffers are never terminals
	if strings.Contains(out, "\033[") {
		t.Error("escape codes written to a non-terminal")
	}
}

func TestConfigShow_Reveal(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "server.properties", testProperties)

	out, err := runCLI(t, "", "config", "show", "-c", path, "--reveal")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "hunter2hunter2") || !strings.Contains(out, "AKIAEXAMPLE") {
		t.Errorf("--reveal should print secrets:\n%s", out)
	}
}

func TestConfigShow_MissingExplicitFile(t *testing.T) {
	if _, err := runCLI(t, "", "config", "show", "-c", filepath.Join(t.TempDir(), "nope.properties")); err == nil {
		t.Error("expected error for a missing --config file")
	}
}

func TestSecret(t *testing.T) {
	tests := []struct {
		in     string
		reveal bool
		want   string
	}{
		{"", false, "<not set>"},
		{"", true, "<not set>"},
		{"abc", false, "<set (3 chars)>"},
		{"abc", true, "abc"},
	}
	for _, tt := range tests {
		if got := secret(tt.in, tt.reveal); got != tt.want {
			t.Errorf("secret(%q, %v) = %q, want %q", tt.in, tt.reveal, got, tt.want)
		}
	}
}

func TestShowProperties_Color(t *testing.T) {
	var buf bytes.Buffer
	showProperties(&buf, config.Defaults(), false, true)
	if !strings.Contains(buf.String(), "\033[1mServer:\033[0m") {
		t.Errorf("expected bold headings:\n%s", buf.String())
	}
	if !strings.Contains(buf.String(), "using defaults") {
		t.Error("defaults should be reported")
	}
}

func TestConfigTest(t *testing.T) {
	dir := t.TempDir()
	catalogPath := writeFile(t, dir, "catalog.yaml", `
tables:
  - table_id: t-1
    name: trips
    catalog_name: main
    schema_name: default
    storage_location: s3://lake/trips
`)
	keyPath := writeFile(t, dir, "sa.json", `{}`)

	good := writeFile(t, dir, "good.properties",
		"server.catalogFile="+catalogPath+"\ngcs.bucketPath.0=gs://bucket\ngcs.jsonKeyFilePath.0="+keyPath+"\n")
	out, err := runCLI(t, "", "config", "test", "-c", good)
	if err != nil {
		t.Fatalf("config test failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "1 table(s), 0 volume(s)") || !strings.Contains(out, "Configuration OK") {
		t.Errorf("unexpected output:\n%s", out)
	}

	bad := writeFile(t, dir, "bad.properties",
		"gcs.bucketPath.0=gs://bucket\ngcs.jsonKeyFilePath.0="+filepath.Join(dir, "missing.json")+"\n")
	out, err = runCLI(t, "", "config", "test", "-c", bad)
	if err == nil {
		t.Fatalf("expected failure for a missing key file:\n%s", out)
	}
	if !strings.Contains(out, "gs://bucket") {
		t.Errorf("failing bucket not reported:\n%s", out)
	}
}

func TestConfigPath(t *testing.T) {
	out, err := runCLI(t, "", "config", "path", "-c", "/etc/credvend/server.properties")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "/etc/credvend/server.properties\n") {
		t.Errorf("unexpected output %q", out)
	}
}
