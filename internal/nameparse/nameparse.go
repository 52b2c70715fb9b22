// Package nameparse extracts series, volume, and chapter information from
// comic archive filenames and suggests reading order for batches.
package nameparse

import (
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Result holds the fields recovered from one filename.
type Result struct {
	Series  string `json:"series"`
	Volume  int    `json:"volume"`
	Chapter int    `json:"chapter"`
	Title   string `json:"title"`
}

type pattern struct {
	re *regexp.Regexp
	// kinds maps capture groups after the series to "volume"/"chapter"/"number".
	kinds []string
}

// Patterns are ordered by specificity; the first match wins.
var patterns = []pattern{
	// "Series Name - Vol.01 Ch.001"
	{regexp.MustCompile(`(?i)^(.+?)\s*[-_]\s*vol\.?\s*(\d+)\s*ch(?:apter)?\.?\s*(\d+)`), []string{"volume", "chapter"}},
	// "Series Name Vol.01 Ch.001"
	{regexp.MustCompile(`(?i)^(.+?)\s+vol\.?\s*(\d+)\s*ch(?:apter)?\.?\s*(\d+)`), []string{"volume", "chapter"}},
	// "Series Name - Chapter 001"
	{regexp.MustCompile(`(?i)^(.+?)\s*[-_]\s*ch(?:apter)?\.?\s*(\d+)`), []string{"chapter"}},
	// "Series Name Chapter 001"
	{regexp.MustCompile(`(?i)^(.+?)\s+ch(?:apter)?\.?\s*(\d+)`), []string{"chapter"}},
	// "Series #1"
	{regexp.MustCompile(`(?i)^(.+?)\s*#\s*(\d+)`), []string{"chapter"}},
	// "Series Name - Vol.01"
	{regexp.MustCompile(`(?i)^(.+?)\s*[-_]\s*vol(?:ume)?\.?\s*(\d+)`), []string{"volume"}},
	// "Series Name Vol.01"
	{regexp.MustCompile(`(?i)^(.+?)\s+vol(?:ume)?\.?\s*(\d+)`), []string{"volume"}},
	// "Series Part 1"
	{regexp.MustCompile(`(?i)^(.+?)\s+part\.?\s*(\d+)`), []string{"chapter"}},
	// "Series Name - 001"
	{regexp.MustCompile(`(?i)^(.+?)\s*[-_]\s*(\d{2,4})(?:\s|$|\.)`), []string{"number"}},
	// "Series Name 001"
	{regexp.MustCompile(`(?i)^(.+?)\s+(\d{2,4})(?:\s|$|\.)`), []string{"number"}},
	// "[Group] Series Name - 001"
	{regexp.MustCompile(`(?i)^\[.+?\]\s*(.+?)\s*[-_]\s*(\d{2,4})`), []string{"number"}},
	// "(Group) Series Name - 001"
	{regexp.MustCompile(`(?i)^\(.+?\)\s*(.+?)\s*[-_]\s*(\d{2,4})`), []string{"number"}},
}

var (
	leadingGroup    = regexp.MustCompile(`^\s*(?:\[[^\]]*\]|\([^)]*\))\s*`)
	trailingNumber  = regexp.MustCompile(`\s*[-_]?\s*\d+\s*$`)
	bracketedSuffix = regexp.MustCompile(`\s*\[.*?\]\s*$`)
	parenSuffix     = regexp.MustCompile(`\s*\(.*?\)\s*$`)
	whitespaceRuns  = regexp.MustCompile(`\s+`)
	anyNumber       = regexp.MustCompile(`\d+`)
	hashNumber      = regexp.MustCompile(`#\s*(\d+)`)

	titleCaser = cases.Title(language.Und, cases.NoLower)
)

// Parse recovers series, volume, and chapter from a filename. Unmatched
// filenames return the cleaned stem as both series and title.
func Parse(filename string) Result {
	stem := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))

	for _, p := range patterns {
		match := p.re.FindStringSubmatch(stem)
		if match == nil {
			continue
		}
		result := Result{
			Series: cleanSeries(match[1]),
			Title:  stem,
		}
		for i, kind := range p.kinds {
			value, err := strconv.Atoi(match[i+2])
			if err != nil {
				continue
			}
			switch kind {
			case "volume":
				result.Volume = value
			case "chapter":
				result.Chapter = value
			case "number":
				// A bare number is a volume when the name mentions one,
				// otherwise a chapter.
				if strings.Contains(strings.ToLower(stem), "vol") {
					result.Volume = value
				} else {
					result.Chapter = value
				}
			}
		}
		return result
	}

	return Result{Series: cleanSeries(stem), Title: stem}
}

// SuggestOrder returns the indices of filenames in suggested reading
// order: by volume, then chapter, then any trailing number, then name.
func SuggestOrder(filenames []string) []int {
	type entry struct {
		index    int
		volume   int
		chapter  int
		fallback int
	}
	entries := make([]entry, len(filenames))
	for i, name := range filenames {
		result := Parse(name)
		e := entry{index: i, volume: result.Volume, chapter: result.Chapter}
		if e.volume == 0 && e.chapter == 0 {
			e.fallback = extractNumber(name)
		}
		entries[i] = e
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.volume != b.volume {
			return a.volume < b.volume
		}
		if a.chapter != b.chapter {
			return a.chapter < b.chapter
		}
		if a.fallback != b.fallback {
			return a.fallback < b.fallback
		}
		return filenames[a.index] < filenames[b.index]
	})
	order := make([]int, len(entries))
	for i, e := range entries {
		order[i] = e.index
	}
	return order
}

// SuggestSeries proposes a common series name for a batch of filenames.
// Returns empty when nothing usable is found.
func SuggestSeries(filenames []string) string {
	var names []string
	for _, filename := range filenames {
		if result := Parse(filename); result.Series != "" {
			names = append(names, result.Series)
		}
	}
	if len(names) == 0 {
		return ""
	}

	allSame := true
	for _, name := range names[1:] {
		if name != names[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return names[0]
	}

	if common := strings.Trim(commonPrefix(names), " -_"); len(common) >= 3 {
		return common
	}

	// Fall back to the most frequent name.
	counts := make(map[string]int)
	best := names[0]
	for _, name := range names {
		counts[name]++
		if counts[name] > counts[best] {
			best = name
		}
	}
	return best
}

// TitleCase normalizes a series name for display.
func TitleCase(name string) string {
	return titleCaser.String(strings.ToLower(strings.TrimSpace(name)))
}

func cleanSeries(series string) string {
	series = leadingGroup.ReplaceAllString(series, "")
	series = strings.Trim(series, " -_.")
	series = trailingNumber.ReplaceAllString(series, "")
	series = bracketedSuffix.ReplaceAllString(series, "")
	series = parenSuffix.ReplaceAllString(series, "")
	series = whitespaceRuns.ReplaceAllString(series, " ")
	return strings.TrimSpace(series)
}

// extractNumber pulls the most specific number out of a filename: a "#n"
// issue marker when present, otherwise the last number in the stem.
func extractNumber(filename string) int {
	stem := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if match := hashNumber.FindStringSubmatch(stem); match != nil {
		if value, err := strconv.Atoi(match[1]); err == nil {
			return value
		}
	}
	numbers := anyNumber.FindAllString(stem, -1)
	if len(numbers) == 0 {
		return 0
	}
	value, err := strconv.Atoi(numbers[len(numbers)-1])
	if err != nil {
		return 0
	}
	return value
}

func commonPrefix(names []string) string {
	prefix := names[0]
	for _, name := range names[1:] {
		for prefix != "" && !strings.HasPrefix(name, prefix) {
			prefix = prefix[:len(prefix)-1]
		}
	}
	return prefix
}
