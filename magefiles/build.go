//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

const sampleBinary = "bin/pbr"

// Builds the PBR sample into bin/.
func (Build) Sample() error {
	fmt.Println("Build sample...")
	if _, err := executeCmd("go", withArgs("build", "-o", sampleBinary, "./samples/pbr"), withStream()); err != nil {
		return err
	}
	return nil
}

// Runs go mod tidy.
func (Build) Tidy() error {
	return goTidy()
}
