package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"comic2kindle/internal/testsupport"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	configPath := filepath.Join(root, "config.toml")
	content := fmt.Sprintf(`[paths]
data_dir = %q
upload_dir = %q
output_dir = %q
log_dir = %q
api_bind = "127.0.0.1:0"

[logging]
format = "json"
level = "error"
`,
		filepath.Join(root, "data"),
		filepath.Join(root, "uploads"),
		filepath.Join(root, "outputs"),
		filepath.Join(root, "logs"),
	)
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return configPath
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestDevicesCommandListsCatalog(t *testing.T) {
	output, err := runCommand(t, "devices")
	if err != nil {
		t.Fatalf("devices: %v", err)
	}
	for _, want := range []string{"kindle_paperwhite_5", "1236x1648", "kobo_clara_2e"} {
		if !strings.Contains(output, want) {
			t.Fatalf("devices output missing %q:\n%s", want, output)
		}
	}
}

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")
	output, err := runCommand(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(output, target) {
		t.Fatalf("init output missing target path:\n%s", output)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[paths]") {
		t.Fatal("sample config missing [paths] section")
	}

	if _, err := runCommand(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected second init without --overwrite to fail")
	}
}

func TestConfigShowPrintsEffectiveConfig(t *testing.T) {
	configPath := writeTestConfig(t)
	output, err := runCommand(t, "--config", configPath, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(output, "api_bind = '127.0.0.1:0'") && !strings.Contains(output, `api_bind = "127.0.0.1:0"`) {
		t.Fatalf("config show missing bind address:\n%s", output)
	}
}

func TestConvertCommandProducesEPUB(t *testing.T) {
	configPath := writeTestConfig(t)

	archive := filepath.Join(t.TempDir(), "My Series - Chapter 001.cbz")
	testsupport.WriteCBZ(t, archive, map[string][]byte{
		"p1.jpg": testsupport.JPEGPage(t, 200, 300),
		"p2.jpg": testsupport.JPEGPage(t, 200, 300),
	})
	outDir := t.TempDir()

	output, err := runCommand(t, "--config", configPath, "convert", "--output", outDir, archive)
	if err != nil {
		t.Fatalf("convert: %v\n%s", err, output)
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatalf("read output dir: %v", err)
	}
	if len(entries) != 1 || !strings.HasSuffix(entries[0].Name(), ".epub") {
		t.Fatalf("expected one epub in output dir, got %v", entries)
	}
	if !strings.Contains(output, "Wrote ") {
		t.Fatalf("convert output missing artifact report:\n%s", output)
	}
}

func TestConvertCommandRejectsUnknownDevice(t *testing.T) {
	configPath := writeTestConfig(t)
	archive := filepath.Join(t.TempDir(), "book.cbz")
	testsupport.WriteCBZ(t, archive, map[string][]byte{
		"p1.jpg": testsupport.JPEGPage(t, 200, 300),
	})

	if _, err := runCommand(t, "--config", configPath, "convert", "--device", "kindle_dx", archive); err == nil {
		t.Fatal("expected unknown device profile to be rejected")
	}
}
