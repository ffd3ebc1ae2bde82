/*
Package options contains a set of common CLI options and helper functions to use them.
*/
package options

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/crgwbr/knit/pkg/config"
)

// ConfigFile is a flag for commands that load their configuration from a
// file.
var ConfigFile = &cli.StringFlag{
	Name:    "config-file",
	Aliases: []string{"c"},
	Usage:   "Path to the knit configuration file",
	EnvVars: []string{"KNIT_CONFIG"},
}

// Discover is a flag for overriding the mesh seed peer to join through.
var Discover = &cli.StringFlag{
	Name:    "discover",
	Aliases: []string{"d"},
	Usage:   "Address of a mesh peer to join through, overriding Mesh.Discover",
	EnvVars: []string{"KNIT_DISCOVER"},
}

// Debug is a flag that enables debug-level logging regardless of the
// configured log level.
var Debug = &cli.BoolFlag{
	Name:    "debug",
	Usage:   "Enable debug logging, overriding configuration",
	EnvVars: []string{"KNIT_DEBUG"},
}

// ForceTimestampLogs is a flag that enables timestamp logging for every log
// record even when the program is not running in a terminal.
var ForceTimestampLogs = &cli.BoolFlag{
	Name:    "force-timestamp-logs",
	Usage:   "Enable timestamps for log entries even outside a terminal",
	EnvVars: []string{"KNIT_FORCE_TIMESTAMP_LOGS"},
}

// GetConfigFromContext loads the configuration named by --config-file, or
// returns config.Default() if the flag is absent.
func GetConfigFromContext(ctx *cli.Context) (config.Config, error) {
	path := ctx.String(ConfigFile.Name)
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

var (
	// _winfileSinkRegistered denotes whether zap has registered the
	// user-supplied factory for winfile-prefixed sink URLs.
	_winfileSinkRegistered bool
	_winfileSinkCloser     func() error
)

// HandleLoggingParams builds a zap.Logger from cfg, the --debug and
// --force-timestamp-logs flags in ctx, and the local terminal. If a log
// path is configured on Windows it returns a closer for the opened sink.
func HandleLoggingParams(ctx *cli.Context, cfg config.Logger) (*zap.Logger, func() error, error) {
	level := zapcore.InfoLevel
	if cfg.LogLevel != "" {
		if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
			return nil, nil, fmt.Errorf("log setting: %w", err)
		}
	}
	if ctx != nil && ctx.Bool(Debug.Name) {
		level = zapcore.DebugLevel
	}

	encoding := "console"
	if cfg.LogEncoding != "" {
		encoding = cfg.LogEncoding
	}

	cc := zap.NewProductionConfig()
	cc.DisableCaller = true
	cc.DisableStacktrace = true
	cc.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	cc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	forceTimestamps := (cfg.LogTimestamp != nil && *cfg.LogTimestamp) || (ctx != nil && ctx.Bool(ForceTimestampLogs.Name))
	if term.IsTerminal(int(os.Stdout.Fd())) || forceTimestamps {
		cc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		cc.EncoderConfig.EncodeTime = func(time.Time, zapcore.PrimitiveArrayEncoder) {}
	}
	cc.Encoding = encoding
	cc.Level = zap.NewAtomicLevelAt(level)
	cc.Sampling = nil

	if logPath := cfg.LogPath; logPath != "" {
		if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}

		if runtime.GOOS == "windows" {
			if !_winfileSinkRegistered {
				// See https://github.com/uber-go/zap/issues/621.
				err := zap.RegisterSink("winfile", func(u *url.URL) (zap.Sink, error) {
					if u.User != nil {
						return nil, fmt.Errorf("user and password not allowed with file URLs: got %v", u)
					}
					if u.Fragment != "" {
						return nil, fmt.Errorf("fragments not allowed with file URLs: got %v", u)
					}
					if u.RawQuery != "" {
						return nil, fmt.Errorf("query parameters not allowed with file URLs: got %v", u)
					}
					if u.Port() != "" {
						return nil, fmt.Errorf("ports not allowed with file URLs: got %v", u)
					}
					if hn := u.Hostname(); hn != "" && hn != "localhost" {
						return nil, fmt.Errorf("file URLs must leave host empty or use localhost: got %v", u)
					}
					switch u.Path {
					case "stdout":
						return os.Stdout, nil
					case "stderr":
						return os.Stderr, nil
					}
					f, err := os.OpenFile(u.Path[1:], os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
					_winfileSinkCloser = func() error {
						_winfileSinkCloser = nil
						return f.Close()
					}
					return f, err
				})
				if err != nil {
					return nil, nil, fmt.Errorf("register windows sink: %w", err)
				}
				_winfileSinkRegistered = true
			}
			logPath = "winfile:///" + logPath
		}

		cc.OutputPaths = []string{logPath}
	}

	log, err := cc.Build()
	return log, _winfileSinkCloser, err
}
