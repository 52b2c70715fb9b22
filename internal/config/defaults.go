package config

// Default returns a configuration populated with the built-in defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:   "~/.local/share/comic2kindle",
			UploadDir: "~/.local/share/comic2kindle/uploads",
			OutputDir: "~/.local/share/comic2kindle/output",
			LogDir:    "~/.local/share/comic2kindle/logs",
			APIBind:   "127.0.0.1:8799",
		},
		Pipeline: Pipeline{
			Workers:             0,
			JPEGQuality:         85,
			MaxPageFailureRatio: 0.2,
			KeepPartialOutput:   false,
			UpscalerBinary:      "realesrgan-ncnn-vulkan",
		},
		Output: Output{
			DefaultFormat:   "epub",
			MaxVolumeSizeMB: 200,
			NamingTemplate:  "{series} - Chapter {chapter}",
		},
		Metadata: Metadata{
			MangaDexBaseURL: "https://api.mangadex.org",
			AniListBaseURL:  "https://graphql.anilist.co",
			RequestTimeout:  30,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
			Completion:     true,
			Errors:         true,
		},
		Logging: Logging{
			Format: "console",
			Level:  "info",
		},
	}
}
