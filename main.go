// The main package for the newswire executable.
package main

import (
	"github.com/newsscope/newswire/cmd"
)

// main defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
