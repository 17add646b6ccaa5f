// Command packwatch checks, downloads, verifies, and installs updates for
// a configured set of Linux desktop applications.
package main

import (
	"os"

	"github.com/pthomasgarcia/packwatch/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
