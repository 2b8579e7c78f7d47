// Package logger configures structured logging for the Bridge community bot.
// Components receive a *slog.Logger; this package only owns construction
// and the domain-specific attribute helpers.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options configures logger construction.
type Options struct {
	// Level is the minimum level: debug, info, warn, error.
	Level string

	// Format is "json" (production) or "text" (development).
	Format string

	// Output defaults to os.Stdout.
	Output io.Writer
}

// ParseLevel maps a config string to a slog level. Unknown values fall
// back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a *slog.Logger from the given options.
func New(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}

	var handler slog.Handler
	if strings.ToLower(opts.Format) == "text" {
		handler = slog.NewTextHandler(out, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(out, handlerOpts)
	}

	return slog.New(handler)
}

// Default returns a JSON logger at info level.
func Default() *slog.Logger {
	return New(Options{Level: "info", Format: "json"})
}

// Attribute helpers shared across the bot's components, so every
// component spells these keys the same way.

func EventID(id int64) slog.Attr         { return slog.Int64("event_id", id) }
func ResultID(id int64) slog.Attr        { return slog.Int64("result_id", id) }
func DiscordID(id string) slog.Attr      { return slog.String("discord_id", id) }
func GuildID(id string) slog.Attr        { return slog.String("guild_id", id) }
func ChannelID(id string) slog.Attr      { return slog.String("channel_id", id) }
func TierLabel(label string) slog.Attr   { return slog.String("tier", label) }
func SkipReason(reason string) slog.Attr { return slog.String("skip_reason", reason) }
