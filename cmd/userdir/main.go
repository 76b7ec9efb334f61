// Command userdir manages a small directory of users from the terminal.
package main

import (
	"os"

	"github.com/steveyegge/userdir/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
