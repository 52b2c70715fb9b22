// Package extract turns uploaded comic archives and image folders into
// ordered source documents for the transform stage.
package extract

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"comic2kindle/internal/pages"
	"comic2kindle/internal/services"
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
	".bmp":  true,
}

// IsImageName reports whether the entry name has a supported image extension.
func IsImageName(name string) bool {
	return imageExtensions[strings.ToLower(path.Ext(name))]
}

// SupportedArchive reports whether the file extension is a recognized input
// container format.
func SupportedArchive(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".cbz", ".zip", ".cbr", ".rar", ".epub":
		return true
	default:
		return false
	}
}

// Extract loads every page image from the archive or directory at srcPath.
// Pages carry raw encoded bytes in original natural-sort order; decoding is
// the transform stage's job. Returns a validation error when no images are
// found.
func Extract(ctx context.Context, srcPath, docID string, direction pages.ReadingDirection) (*pages.SourceDocument, error) {
	info, err := os.Stat(srcPath)
	if err != nil {
		return nil, services.Wrap(services.ErrNotFound, "extracting", "stat", "source file missing", err)
	}

	var entries []pageEntry
	switch {
	case info.IsDir():
		entries, err = readImageDir(srcPath)
	default:
		switch strings.ToLower(filepath.Ext(srcPath)) {
		case ".cbz", ".zip":
			entries, err = readZip(srcPath)
		case ".cbr", ".rar":
			entries, err = readRar(ctx, srcPath)
		case ".epub":
			entries, err = readEPUB(srcPath)
		default:
			return nil, services.Wrap(services.ErrValidation, "extracting", "extract",
				fmt.Sprintf("unsupported archive format %q", filepath.Ext(srcPath)), nil)
		}
	}
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, services.Wrap(services.ErrValidation, "extracting", "extract",
			fmt.Sprintf("no page images found in %s", filepath.Base(srcPath)), nil)
	}

	doc := &pages.SourceDocument{
		ID:        docID,
		Name:      filepath.Base(srcPath),
		Direction: direction,
		Pages:     make([]*pages.Page, 0, len(entries)),
	}
	for i, entry := range entries {
		doc.Pages = append(doc.Pages, &pages.Page{
			DocumentID: docID,
			Index:      i,
			Name:       entry.name,
			Data:       entry.data,
		})
	}
	return doc, nil
}

// CountPages reports the number of page images in a zip-based archive
// without reading their contents. RAR archives report zero; their count is
// only known after extraction.
func CountPages(srcPath string) (int, error) {
	switch strings.ToLower(filepath.Ext(srcPath)) {
	case ".cbz", ".zip", ".epub":
		reader, err := zip.OpenReader(srcPath)
		if err != nil {
			return 0, err
		}
		defer reader.Close()
		count := 0
		for _, file := range reader.File {
			if skipEntry(file.Name) {
				continue
			}
			if IsImageName(file.Name) {
				count++
			}
		}
		return count, nil
	default:
		return 0, nil
	}
}

type pageEntry struct {
	name string
	data []byte
}

// skipEntry filters directory markers, macOS resource forks, and hidden files.
func skipEntry(name string) bool {
	if strings.HasSuffix(name, "/") {
		return true
	}
	if strings.HasPrefix(name, "__MACOSX") {
		return true
	}
	base := path.Base(name)
	return strings.HasPrefix(base, ".")
}

func readZip(srcPath string) ([]pageEntry, error) {
	reader, err := zip.OpenReader(srcPath)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "extracting", "open zip", "archive is not a readable zip", err)
	}
	defer reader.Close()

	entries := make([]pageEntry, 0, len(reader.File))
	for _, file := range reader.File {
		if skipEntry(file.Name) || !IsImageName(file.Name) {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "extracting", "read zip entry",
				fmt.Sprintf("cannot read %s", file.Name), err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "extracting", "read zip entry",
				fmt.Sprintf("cannot read %s", file.Name), err)
		}
		entries = append(entries, pageEntry{name: path.Base(file.Name), data: data})
	}
	sortNatural(entries)
	return entries, nil
}

func readImageDir(dir string) ([]pageEntry, error) {
	var entries []pageEntry
	err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skipEntry(d.Name() + "/") {
				return filepath.SkipDir
			}
			return nil
		}
		if skipEntry(d.Name()) || !IsImageName(d.Name()) {
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
		return nil, services.Wrap(services.ErrValidation, "extracting", "read image directory", "cannot walk image directory", err)
	}
	sortNatural(entries)
	return entries, nil
}
