// dkg-go fuses multi-stage hardware design artifacts (RTL, synthesis,
// constraints, floorplan, timing, board) into a single design knowledge
// graph that can be queried, abstracted into views, and served over MCP.
package main

import (
	"fmt"
	"os"

	"github.com/Benny93/dkg-go/cmd"
)

func main() {
	cli := cmd.NewCLI()

	if err := cli.Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
