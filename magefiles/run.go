//go:build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Loads ./assets (or $ASSETS) with debug logging and keeps watching it.
func (Run) Loader() error {
	mg.Deps(Build.Loader)

	dir := os.Getenv("ASSETS")
	if dir == "" {
		dir = "assets"
	}
	fmt.Println("Run loader...")
	if _, err := executeCmd("bin/anima-loader", withArgs("--assets", dir, "--watch", "--log-level", "debug"), withStream()); err != nil {
		return err
	}
	return nil
}
