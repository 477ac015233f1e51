// The main package for the gsc-indexer executable.
package main

import (
	"github.com/JakeFAU/gsc-indexer/cmd"
)

// main defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
