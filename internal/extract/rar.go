package extract

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"

	"comic2kindle/internal/services"
)

var commandContext = exec.CommandContext

// rarTools lists extraction commands in preference order. Each builds the
// argv for extracting archive into dir.
var rarTools = []struct {
	binary string
	args   func(archive, dir string) []string
}{
	{binary: "unrar", args: func(archive, dir string) []string {
		return []string{"x", "-y", archive, dir + string(os.PathSeparator)}
	}},
	{binary: "7z", args: func(archive, dir string) []string {
		return []string{"x", archive, "-o" + dir, "-y"}
	}},
}

// readRar extracts a RAR archive through an external tool into a scratch
// directory, then collects the image entries. Tries unrar first, 7z second.
func readRar(ctx context.Context, srcPath string) ([]pageEntry, error) {
	scratch, err := os.MkdirTemp("", "comic2kindle-rar-*")
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "extracting", "rar scratch dir", "cannot create scratch directory", err)
	}
	defer os.RemoveAll(scratch)

	var lastErr error
	extracted := false
	for _, tool := range rarTools {
		cmd := commandContext(ctx, tool.binary, tool.args(srcPath, scratch)...)
		output, err := cmd.CombinedOutput()
		if err == nil {
			extracted = true
			break
		}
		if errors.Is(err, exec.ErrNotFound) {
			lastErr = err
			continue
		}
		lastErr = services.Wrap(services.ErrExternalTool, "extracting", tool.binary,
			"archive extraction failed: "+firstLine(output), err)
	}
	if !extracted {
		if lastErr == nil || errors.Is(lastErr, exec.ErrNotFound) {
			return nil, services.Wrap(services.ErrConfiguration, "extracting", "rar",
				"no RAR extraction tool available (tried unrar and 7z)", lastErr)
		}
		return nil, lastErr
	}

	var entries []pageEntry
	err = filepath.WalkDir(scratch, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || skipEntry(d.Name()) || !IsImageName(d.Name()) {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		entries = append(entries, pageEntry{name: d.Name(), data: data})
		return nil
	})
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "extracting", "rar", "cannot read extracted files", err)
	}
	sortNatural(entries)
	return entries, nil
}

func firstLine(output []byte) string {
	for i, c := range output {
		if c == '\n' {
			return string(output[:i])
		}
	}
	return string(output)
}
