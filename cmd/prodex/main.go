// The main package for the prodex executable.
package main

import (
	"github.com/prodexio/prodex/cmd"
)

func main() {
	cmd.Execute()
}
