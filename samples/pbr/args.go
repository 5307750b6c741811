package main

import (
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spaghettifunk/anima-samples/engine"
	"github.com/spaghettifunk/anima-samples/engine/core"
	"github.com/spf13/pflag"
)

const usageName = "SAMPLE_PBR"

const usageText = `SAMPLE_PBR is an example of loading PBR assets with base color + packed metallic/roughness
Usage:
    SAMPLE_PBR [options] <OBJ/FBX/COLLADA>
Options:
   --help, -h
       Prints this message

   --ibl=<path to cmgen IBL>, -i <path>
       Applies an IBL generated by cmgen's deploy option

   --split-view, -v
       Splits the window into 4 views

   --scale=[number], -s [number]
       Applies uniform scale

   --packed-map=<path to PNG/JPG/BMP/GIF/TIFF/WEBP>, -p <path>
       Packed metallic (R) / roughness (G) map to apply to the loaded meshes

   --basecolor-map=<path to PNG/JPG/BMP/GIF/TIFF/WEBP>, -c <path>
       Base color map to apply to the loaded meshes

   --config=<path to TOML file>
       Reads the application settings from a file, flags take precedence

   --headless
       Renders without a window, see --frames and --snapshot

   --frames=[number]
       Number of frames rendered when headless

   --snapshot=<path to PNG>
       Writes the last headless frame

   --log-level=<debug|info|warn|error>
       Minimum level of the log messages

   --watch
       Reloads the maps when they change on disk

`

// ExitError stops the sample with an exit code. Message, when set, is
// printed on stderr.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

type pbrConfig struct {
	metallicRoughnessMap string
	baseColorMap         string
}

type options struct {
	config engine.ApplicationConfig
	pbr    pbrConfig
	files  []string
}

func printUsage(w io.Writer, name string) {
	fmt.Fprint(w, strings.ReplaceAll(usageText, usageName, filepath.Base(name)))
}

/**
 * @brief parseArgs reads the command line. Help, unknown options and a missing
 * mesh path print the usage on stdout and return an ExitError, with code 0
 * for the first two and 1 for the last.
 */
func parseArgs(args []string, stdout io.Writer) (*options, error) {
	name := usageName
	if len(args) > 0 {
		name = args[0]
		args = args[1:]
	}

	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}
	fs.SortFlags = false

	var (
		help       bool
		scale      string
		configPath string
		pbr        pbrConfig
		flagCfg    = engine.DefaultApplicationConfig()
	)
	fs.BoolVarP(&help, "help", "h", false, "")
	fs.StringVarP(&flagCfg.IBLDirectory, "ibl", "i", "", "")
	fs.BoolVarP(&flagCfg.SplitView, "split-view", "v", false, "")
	fs.StringVarP(&scale, "scale", "s", "", "")
	fs.StringVarP(&pbr.metallicRoughnessMap, "packed-map", "p", "", "")
	fs.StringVarP(&pbr.baseColorMap, "basecolor-map", "c", "", "")
	fs.StringVar(&configPath, "config", "", "")
	fs.BoolVar(&flagCfg.Headless, "headless", false, "")
	fs.Uint32Var(&flagCfg.Frames, "frames", flagCfg.Frames, "")
	fs.StringVar(&flagCfg.Snapshot, "snapshot", "", "")
	fs.StringVar(&flagCfg.LogLevel, "log-level", flagCfg.LogLevel, "")
	fs.BoolVar(&flagCfg.Watch, "watch", false, "")

	if err := fs.Parse(args); err != nil || help {
		if err != nil {
			core.LogDebug("parsing options: %v", err)
		}
		printUsage(stdout, name)
		return nil, &ExitError{Code: 0}
	}
	if fs.NArg() < 1 {
		printUsage(stdout, name)
		return nil, &ExitError{Code: 1}
	}

	cfg := engine.DefaultApplicationConfig()
	if configPath != "" {
		if err := engine.LoadApplicationConfig(configPath, &cfg); err != nil {
			return nil, &ExitError{Code: 1, Message: err.Error()}
		}
	}

	// flags given on the command line win over the file
	fs.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "ibl":
			cfg.IBLDirectory = flagCfg.IBLDirectory
		case "split-view":
			cfg.SplitView = flagCfg.SplitView
		case "scale":
			cfg.Scale = parseScale(scale, cfg.Scale)
		case "headless":
			cfg.Headless = flagCfg.Headless
		case "frames":
			cfg.Frames = flagCfg.Frames
		case "snapshot":
			cfg.Snapshot = flagCfg.Snapshot
		case "log-level":
			cfg.LogLevel = flagCfg.LogLevel
		case "watch":
			cfg.Watch = flagCfg.Watch
		}
	})

	return &options{config: cfg, pbr: pbr, files: fs.Args()}, nil
}

// parseScale returns the value of s, or fallback when s is not a finite
// float32.
func parseScale(s string, fallback float32) float32 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 32)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return fallback
	}
	return float32(v)
}
