// Package calibre wraps Calibre's ebook-convert for deriving legacy MOBI
// output from an assembled EPUB.
package calibre

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
)

var commandContext = exec.CommandContext

// Converter derives a legacy-format artifact from a primary package.
type Converter interface {
	Convert(ctx context.Context, epubPath, mobiPath string) error
}

// Option configures the CLI client.
type Option func(*CLI)

// WithBinary overrides the default binary name.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if binary != "" {
			c.binary = binary
		}
	}
}

// CLI wraps the ebook-convert command-line tool.
type CLI struct {
	binary string
}

// NewCLI constructs a CLI client using defaults.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "ebook-convert"}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

// Available reports whether the converter binary is on PATH.
func (c *CLI) Available() bool {
	_, err := exec.LookPath(c.binary)
	return err == nil
}

// Convert runs ebook-convert on the EPUB and verifies the MOBI exists
// afterwards. Callers treat failures as warnings, not job failures.
func (c *CLI) Convert(ctx context.Context, epubPath, mobiPath string) error {
	if epubPath == "" {
		return errors.New("epub path required")
	}
	if mobiPath == "" {
		return errors.New("mobi path required")
	}

	args := []string{
		epubPath,
		mobiPath,
		"--output-profile=kindle",
		"--no-inline-toc",
		"--mobi-file-type=both",
	}
	cmd := commandContext(ctx, c.binary, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return fmt.Errorf("ebook-convert not found; install Calibre for MOBI output: %w", err)
		}
		return fmt.Errorf("ebook-convert failed: %s: %w", firstLine(output), err)
	}
	if _, statErr := os.Stat(mobiPath); statErr != nil {
		return fmt.Errorf("ebook-convert produced no output: %w", statErr)
	}
	return nil
}

func firstLine(output []byte) string {
	for i, c := range output {
		if c == '\n' {
			return string(output[:i])
		}
	}
	return string(output)
}

var _ Converter = (*CLI)(nil)
