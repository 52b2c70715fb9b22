package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// minVolumeSizeBytes is the smallest accepted volume budget. Anything below
// this cannot hold even a single typical transformed page plus package
// overhead and is rejected at configuration or submission time.
const minVolumeSizeBytes = 1 << 20

// MinVolumeBytes returns the smallest accepted volume budget in bytes.
func MinVolumeBytes() int64 { return minVolumeSizeBytes }

// Validate checks semantic correctness of the configuration.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Paths.DataDir) == "" {
		problems = append(problems, "paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.UploadDir) == "" {
		problems = append(problems, "paths.upload_dir must be set")
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		problems = append(problems, "paths.output_dir must be set")
	}

	if c.Pipeline.Workers < 0 {
		problems = append(problems, "pipeline.workers must not be negative")
	}
	if c.Pipeline.JPEGQuality < 1 || c.Pipeline.JPEGQuality > 100 {
		problems = append(problems, "pipeline.jpeg_quality must be between 1 and 100")
	}
	if c.Pipeline.MaxPageFailureRatio < 0 || c.Pipeline.MaxPageFailureRatio > 1 {
		problems = append(problems, "pipeline.max_page_failure_ratio must be between 0 and 1")
	}

	switch c.Output.DefaultFormat {
	case "epub", "mobi", "both":
	default:
		problems = append(problems, fmt.Sprintf("output.default_format %q is not one of epub, mobi, both", c.Output.DefaultFormat))
	}
	if c.MaxVolumeBytes() < minVolumeSizeBytes {
		problems = append(problems, fmt.Sprintf(
			"output.max_volume_size_mb must allow at least %s per volume",
			humanize.IBytes(uint64(minVolumeSizeBytes))))
	}
	if strings.TrimSpace(c.Output.NamingTemplate) == "" {
		problems = append(problems, "output.naming_template must be set")
	}

	switch c.Logging.Format {
	case "", "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q is not one of console, json", c.Logging.Format))
	}

	if c.Metadata.RequestTimeout <= 0 {
		problems = append(problems, "metadata.request_timeout must be positive")
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.New("invalid configuration: " + strings.Join(problems, "; "))
}
