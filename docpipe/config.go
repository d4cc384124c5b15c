package docpipe

import "log/slog"

// Config configures the document pipeline.
type Config struct {
	// MaxFileSize is the maximum input size to process (default: 100 MB).
	MaxFileSize int64 `json:"max_file_size" yaml:"max_file_size"`

	// MaxTextRunes truncates RawText (default: 400k runes, 0 keeps the
	// default, negative disables truncation).
	MaxTextRunes int `json:"max_text_runes" yaml:"max_text_runes"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 100 * 1024 * 1024
	}
	if c.MaxTextRunes == 0 {
		c.MaxTextRunes = 400_000
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
