// Package assembly packages planned volumes into fixed-layout EPUB files
// and derives their output filenames.
package assembly

import (
	"fmt"
	"strings"

	"comic2kindle/internal/textutil"
)

// Metadata carries the book-level fields embedded into each volume.
type Metadata struct {
	Title       string `json:"title"`
	Series      string `json:"series"`
	Author      string `json:"author"`
	Description string `json:"description"`
	// Chapter is a display string such as "12" or "1-16".
	Chapter string `json:"chapter"`
	// SeriesIndex orders the book within its series. Zero means unset.
	SeriesIndex int `json:"series_index"`
	Language    string `json:"language"`
	// Cover holds explicit cover image bytes. Empty means the first page
	// is used.
	Cover []byte `json:"-"`
}

// DisplayTitle returns the title with chapter information appended.
func (m Metadata) DisplayTitle() string {
	title := strings.TrimSpace(m.Title)
	if title == "" {
		title = strings.TrimSpace(m.Series)
	}
	if title == "" {
		title = "Untitled"
	}
	if chapter := strings.TrimSpace(m.Chapter); chapter != "" && !strings.Contains(title, chapter) {
		return fmt.Sprintf("%s - Chapter %s", title, chapter)
	}
	return title
}

// VolumeTitle returns the display title with a part suffix when the plan
// produced more than one volume.
func (m Metadata) VolumeTitle(index, total int) string {
	title := m.DisplayTitle()
	if total > 1 {
		return fmt.Sprintf("%s (Part %d/%d)", title, index, total)
	}
	return title
}

// RenderName expands the naming template into a sanitized base filename
// without extension. Recognized placeholders: {series}, {title}, {chapter},
// {volume}. When the plan has multiple volumes and the template does not
// use {volume}, a part suffix is appended.
func RenderName(template string, m Metadata, index, total int) string {
	if strings.TrimSpace(template) == "" {
		template = "{series} - Chapter {chapter}"
	}
	replacer := strings.NewReplacer(
		"{series}", fallback(m.Series, m.Title, "Untitled"),
		"{title}", fallback(m.Title, m.Series, "Untitled"),
		"{chapter}", fallback(m.Chapter, "1"),
		"{volume}", fmt.Sprintf("%d", index),
	)
	name := strings.TrimSpace(replacer.Replace(template))
	if total > 1 && !strings.Contains(template, "{volume}") {
		name = fmt.Sprintf("%s_part%02d", name, index)
	}
	sanitized := textutil.SanitizeFileName(name)
	if sanitized == "" {
		return fmt.Sprintf("volume_%02d", index)
	}
	return sanitized
}

func fallback(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
