package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"comic2kindle/internal/assembly"
	"comic2kindle/internal/config"
	"comic2kindle/internal/devices"
	"comic2kindle/internal/extract"
	"comic2kindle/internal/fileutil"
	"comic2kindle/internal/imaging"
	"comic2kindle/internal/jobs"
	"comic2kindle/internal/logging"
	"comic2kindle/internal/nameparse"
	"comic2kindle/internal/pages"
	"comic2kindle/internal/planner"
	"comic2kindle/internal/services/calibre"
	"comic2kindle/internal/upscale"
)

type convertFlags struct {
	outputDir     string
	device        string
	customWidth   int
	customHeight  int
	format        string
	merge         bool
	maxVolumeMB   int
	direction     string
	upscaleMethod string
	quality       int
	detectSpreads bool
	splitSpreads  bool
	rotateSpreads bool
	fillScreen    bool
	title         string
	series        string
	author        string
	chapter       string
	template      string
}

func newConvertCommand(ctx *commandContext) *cobra.Command {
	defaults := imaging.DefaultTransformOptions()
	flags := convertFlags{}

	cmd := &cobra.Command{
		Use:   "convert [archives or image directories]",
		Short: "Convert archives to e-reader ebooks without the daemon",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return runLocalConversion(cmd, cfg, flags, args)
		},
	}

	cmd.Flags().StringVarP(&flags.outputDir, "output", "o", ".", "Directory for produced ebooks")
	cmd.Flags().StringVar(&flags.device, "device", defaults.Profile, "Target device profile (see `comic2kindle devices`)")
	cmd.Flags().IntVar(&flags.customWidth, "width", 0, "Custom screen width (device profile \"custom\")")
	cmd.Flags().IntVar(&flags.customHeight, "height", 0, "Custom screen height (device profile \"custom\")")
	cmd.Flags().StringVar(&flags.format, "format", "epub", "Output format: epub, mobi, or both")
	cmd.Flags().BoolVar(&flags.merge, "merge", false, "Merge all inputs into one book")
	cmd.Flags().IntVar(&flags.maxVolumeMB, "max-volume-mb", 0, "Per-volume size budget in MB (0 uses the configured default)")
	cmd.Flags().StringVar(&flags.direction, "direction", string(defaults.Direction), "Reading direction: ltr or rtl")
	cmd.Flags().StringVar(&flags.upscaleMethod, "upscale", string(defaults.UpscaleMethod), "Upscale method: none, lanczos, or external")
	cmd.Flags().IntVar(&flags.quality, "quality", defaults.Quality, "JPEG re-encode quality (1-100)")
	cmd.Flags().BoolVar(&flags.detectSpreads, "detect-spreads", defaults.DetectSpreads, "Detect double-page spreads")
	cmd.Flags().BoolVar(&flags.splitSpreads, "split-spreads", defaults.SplitSpreads, "Split spreads into two pages")
	cmd.Flags().BoolVar(&flags.rotateSpreads, "rotate-spreads", defaults.RotateSpreads, "Rotate unsplit spreads to landscape")
	cmd.Flags().BoolVar(&flags.fillScreen, "fill", defaults.FillScreen, "Crop pages to fill the screen exactly")
	cmd.Flags().StringVar(&flags.title, "title", "", "Book title (defaults to the parsed filename)")
	cmd.Flags().StringVar(&flags.series, "series", "", "Series name (defaults to the parsed filenames)")
	cmd.Flags().StringVar(&flags.author, "author", "", "Author name")
	cmd.Flags().StringVar(&flags.chapter, "chapter", "", "Chapter label")
	cmd.Flags().StringVar(&flags.template, "name-template", "", "Output naming template")
	return cmd
}

func runLocalConversion(cmd *cobra.Command, cfg *config.Config, flags convertFlags, paths []string) error {
	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	direction := pages.ParseDirection(flags.direction)
	format, ok := jobs.ParseFormat(flags.format)
	if !ok {
		return fmt.Errorf("unknown output format %q", flags.format)
	}
	if _, found := devices.Lookup(flags.device); !found && flags.device != devices.Custom {
		return fmt.Errorf("unknown device profile %q", flags.device)
	}

	opts := imaging.TransformOptions{
		Profile:       flags.device,
		CustomWidth:   flags.customWidth,
		CustomHeight:  flags.customHeight,
		UpscaleMethod: imaging.UpscaleMethod(flags.upscaleMethod),
		DetectSpreads: flags.detectSpreads,
		SplitSpreads:  flags.splitSpreads,
		RotateSpreads: flags.rotateSpreads,
		FillScreen:    flags.fillScreen,
		Quality:       flags.quality,
		Direction:     direction,
	}

	budget := int64(flags.maxVolumeMB) * 1024 * 1024
	if budget == 0 {
		budget = cfg.MaxVolumeBytes()
	}
	if budget < config.MinVolumeBytes() {
		return fmt.Errorf("volume budget must be at least %s", humanize.IBytes(uint64(config.MinVolumeBytes())))
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}

	// Process inputs in suggested reading order, not argument order.
	ordered := make([]string, 0, len(paths))
	names := make([]string, len(paths))
	for i, path := range paths {
		names[i] = filepath.Base(path)
	}
	for _, index := range nameparse.SuggestOrder(names) {
		ordered = append(ordered, paths[index])
	}

	var external upscale.Upscaler
	if opts.UpscaleMethod == imaging.UpscaleExternal {
		external = upscale.NewRealESRGAN(cfg.Pipeline.UpscalerBinary, logger)
	}
	transformer := imaging.NewTransformer(opts, external, logger)

	var docs []*pages.SourceDocument
	var warnings []string
	for _, path := range ordered {
		fmt.Fprintf(out, "Extracting %s\n", filepath.Base(path))
		doc, err := extract.Extract(ctx, path, filepath.Base(path), direction)
		if err != nil {
			return err
		}
		result, err := transformer.ProcessDocument(ctx, doc, cfg.Pipeline.Workers, cfg.Pipeline.MaxPageFailureRatio, nil)
		if err != nil {
			return err
		}
		warnings = append(warnings, result.Warnings...)
		docs = append(docs, result.Document)
	}

	plan, err := planner.Build(docs, flags.merge, budget)
	if err != nil {
		return err
	}
	warnings = append(warnings, plan.Warnings...)

	meta := localMetadata(flags, names)
	if err := os.MkdirAll(flags.outputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	var converter calibre.Converter
	if format.WantsMOBI() {
		cli := calibre.NewCLI()
		if cli.Available() {
			converter = cli
		} else {
			warnings = append(warnings, "ebook-convert not found, producing EPUB only")
		}
	}

	targetWidth, targetHeight := transformer.TargetDimensions()
	template := flags.template
	if template == "" {
		template = cfg.Output.NamingTemplate
	}
	total := len(plan.Volumes)
	for _, volume := range plan.Volumes {
		name := assembly.RenderName(template, meta, volume.Index, total)
		epubPath := fileutil.UniquePath(filepath.Join(flags.outputDir, name+".epub"))
		if err := assembly.WriteEPUB(epubPath, volume, meta, total, assembly.EPUBOptions{
			TargetWidth:  targetWidth,
			TargetHeight: targetHeight,
		}); err != nil {
			return err
		}
		reportArtifact(out, epubPath)

		if converter != nil {
			mobiPath := strings.TrimSuffix(epubPath, ".epub") + ".mobi"
			if err := converter.Convert(ctx, epubPath, mobiPath); err != nil {
				warnings = append(warnings, fmt.Sprintf("MOBI conversion of %s failed: %v", filepath.Base(epubPath), err))
			} else {
				reportArtifact(out, mobiPath)
				if format == jobs.FormatMOBI {
					_ = os.Remove(epubPath)
				}
			}
		}
	}

	for _, warning := range warnings {
		fmt.Fprintf(out, "warning: %s\n", warning)
	}
	return nil
}

// localMetadata fills book metadata from flags, falling back to what the
// filenames reveal.
func localMetadata(flags convertFlags, names []string) assembly.Metadata {
	meta := assembly.Metadata{
		Title:   strings.TrimSpace(flags.title),
		Series:  strings.TrimSpace(flags.series),
		Author:  strings.TrimSpace(flags.author),
		Chapter: strings.TrimSpace(flags.chapter),
	}
	if meta.Series == "" {
		meta.Series = nameparse.TitleCase(nameparse.SuggestSeries(names))
	}
	if meta.Title == "" && len(names) > 0 {
		parsed := nameparse.Parse(names[0])
		meta.Title = nameparse.TitleCase(parsed.Series)
		if meta.Chapter == "" && parsed.Chapter > 0 {
			meta.Chapter = fmt.Sprintf("%d", parsed.Chapter)
		}
	}
	return meta
}

func reportArtifact(out io.Writer, path string) {
	size := int64(0)
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}
	fmt.Fprintf(out, "Wrote %s (%s)\n", path, humanize.IBytes(uint64(size)))
}
