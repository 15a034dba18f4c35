// The main package for the articleforge executable.
package main

import (
	"articleforge/cmd"
)

// main defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
