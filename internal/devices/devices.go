// Package devices holds the catalog of supported e-reader screen profiles.
package devices

import "sort"

// Profile describes an e-reader screen and its preferred output format.
type Profile struct {
	ID                string `json:"id"`
	DisplayName       string `json:"display_name"`
	Manufacturer      string `json:"manufacturer"`
	Width             int    `json:"width"`
	Height            int    `json:"height"`
	DPI               int    `json:"dpi"`
	SupportsColor     bool   `json:"supports_color"`
	RecommendedFormat string `json:"recommended_format"`
}

// Custom is the profile ID that signals caller-supplied dimensions.
const Custom = "custom"

// Fallback dimensions match the Kindle Paperwhite 5.
const (
	fallbackWidth  = 1236
	fallbackHeight = 1648
	fallbackDPI    = 300
)

var catalog = map[string]Profile{
	"kindle_basic": {
		ID:                "kindle_basic",
		DisplayName:       `Kindle Basic (6")`,
		Manufacturer:      "kindle",
		Width:             600,
		Height:            800,
		DPI:               167,
		RecommendedFormat: "mobi",
	},
	"kindle_paperwhite_5": {
		ID:                "kindle_paperwhite_5",
		DisplayName:       `Kindle Paperwhite 5 (6.8")`,
		Manufacturer:      "kindle",
		Width:             1236,
		Height:            1648,
		DPI:               300,
		RecommendedFormat: "epub",
	},
	"kindle_scribe": {
		ID:                "kindle_scribe",
		DisplayName:       `Kindle Scribe (10.2")`,
		Manufacturer:      "kindle",
		Width:             1860,
		Height:            2480,
		DPI:               300,
		RecommendedFormat: "epub",
	},
	"kobo_clara_2e": {
		ID:                "kobo_clara_2e",
		DisplayName:       `Kobo Clara 2E (6")`,
		Manufacturer:      "kobo",
		Width:             1072,
		Height:            1448,
		DPI:               300,
		RecommendedFormat: "epub",
	},
	"kobo_libra_2": {
		ID:                "kobo_libra_2",
		DisplayName:       `Kobo Libra 2 (7")`,
		Manufacturer:      "kobo",
		Width:             1264,
		Height:            1680,
		DPI:               300,
		RecommendedFormat: "epub",
	},
	"kobo_sage": {
		ID:                "kobo_sage",
		DisplayName:       `Kobo Sage (8")`,
		Manufacturer:      "kobo",
		Width:             1440,
		Height:            1920,
		DPI:               300,
		RecommendedFormat: "epub",
	},
}

// All returns every known profile sorted by ID.
func All() []Profile {
	profiles := make([]Profile, 0, len(catalog))
	for _, profile := range catalog {
		profiles = append(profiles, profile)
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].ID < profiles[j].ID })
	return profiles
}

// Lookup returns the profile for the given ID.
func Lookup(id string) (Profile, bool) {
	profile, ok := catalog[id]
	return profile, ok
}

// Dimensions resolves the target page dimensions for a profile ID. Custom
// profiles use the supplied dimensions when both are positive. Unknown IDs
// and incomplete custom dimensions fall back to the Paperwhite 5 screen.
func Dimensions(id string, customWidth, customHeight int) (int, int) {
	if id == Custom {
		if customWidth > 0 && customHeight > 0 {
			return customWidth, customHeight
		}
		return fallbackWidth, fallbackHeight
	}
	if profile, ok := catalog[id]; ok {
		return profile.Width, profile.Height
	}
	return fallbackWidth, fallbackHeight
}

// DPI resolves the screen density for a profile ID.
func DPI(id string) int {
	if profile, ok := catalog[id]; ok {
		return profile.DPI
	}
	return fallbackDPI
}
