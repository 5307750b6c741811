//go:build mage

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Runs the PBR sample. Arguments are read from SAMPLE_ARGS, e.g.
// SAMPLE_ARGS="-c albedo.png -p orm.png monkey.obj".
func (Run) Sample() error {
	mg.Deps(Build.Sample)
	args := strings.Fields(os.Getenv("SAMPLE_ARGS"))
	fmt.Println("Run sample...")
	if _, err := executeCmd(sampleBinary, withArgs(args...), withStream()); err != nil {
		return err
	}
	return nil
}

// Runs the tests of every package.
func Test() error {
	if _, err := executeCmd("go", withArgs("test", "./..."), withStream()); err != nil {
		return err
	}
	return nil
}
