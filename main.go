// The main package for the crawldash executable.
package main

import (
	"github.com/JakeFAU/crawldash/cmd"
)

func main() {
	cmd.Execute()
}
