package calibre

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func TestNewCLIWithBinary(t *testing.T) {
	cli := NewCLI(WithBinary("/opt/calibre/ebook-convert"))
	if cli.binary != "/opt/calibre/ebook-convert" {
		t.Fatalf("expected binary override to be applied, got %q", cli.binary)
	}
}

func TestConvertRequiresPaths(t *testing.T) {
	cli := NewCLI()
	if err := cli.Convert(context.Background(), "", "/tmp/out.mobi"); err == nil {
		t.Fatal("expected error when epub path is empty")
	}
	if err := cli.Convert(context.Background(), "/tmp/in.epub", ""); err == nil {
		t.Fatal("expected error when mobi path is empty")
	}
}

func TestConvertPassesExpectedFlags(t *testing.T) {
	var capturedArgs []string
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		capturedArgs = append([]string(nil), args...)
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "CALIBRE_HELPER_OUT="+args[1])
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})

	dir := t.TempDir()
	epubPath := filepath.Join(dir, "in.epub")
	mobiPath := filepath.Join(dir, "out.mobi")

	cli := NewCLI()
	if err := cli.Convert(context.Background(), epubPath, mobiPath); err != nil {
		t.Fatalf("Convert: %v", err)
	}

	want := []string{epubPath, mobiPath, "--output-profile=kindle", "--no-inline-toc", "--mobi-file-type=both"}
	if len(capturedArgs) != len(want) {
		t.Fatalf("args %v, want %v", capturedArgs, want)
	}
	for i := range want {
		if capturedArgs[i] != want[i] {
			t.Fatalf("args %v, want %v", capturedArgs, want)
		}
	}
}

func TestConvertFailsWhenNoOutputProduced(t *testing.T) {
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1")
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})

	dir := t.TempDir()
	cli := NewCLI()
	if err := cli.Convert(context.Background(), filepath.Join(dir, "in.epub"), filepath.Join(dir, "out.mobi")); err == nil {
		t.Fatal("expected error when converter writes no file")
	}
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	if out := os.Getenv("CALIBRE_HELPER_OUT"); out != "" {
		if err := os.WriteFile(out, []byte("mobi"), 0o644); err != nil {
			os.Exit(1)
		}
	}
	os.Exit(0)
}
