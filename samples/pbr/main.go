/*
PBR loads meshes and shades them with a physically based material, optionally
driven by a base color map and a packed metallic/roughness map.
*/
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spaghettifunk/anima-samples/engine"
	"github.com/spaghettifunk/anima-samples/engine/core"
)

// launcher runs the application for a configured sample.
type launcher func(config engine.ApplicationConfig, sample *pbrSample) error

func launchApplication(config engine.ApplicationConfig, sample *pbrSample) error {
	app, err := engine.New(config)
	if err != nil {
		return err
	}
	sample.watch = app
	return app.Run(sample.setup, sample.cleanup)
}

func run(args []string, stdout, stderr io.Writer, launch launcher) int {
	opts, err := parseArgs(args, stdout)
	if err != nil {
		var exit *ExitError
		if errors.As(err, &exit) {
			if exit.Message != "" {
				fmt.Fprintln(stderr, exit.Message)
			}
			return exit.Code
		}
		fmt.Fprintln(stderr, err)
		return 1
	}

	for _, filename := range opts.files {
		if _, err := os.Stat(filename); err != nil {
			fmt.Fprintf(stderr, "file %s not found!\n", filename)
			return 1
		}
	}

	opts.config.Title = "PBR"
	sample := newPBRSample(opts.pbr, opts.files, opts.config.Scale, stdout)
	if err := launch(opts.config, sample); err != nil {
		core.LogError("%v", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr, launchApplication))
}
