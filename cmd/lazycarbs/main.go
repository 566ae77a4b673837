// Command lazycarbs edits the LazyCarbs parameters and runs calculations from
// the terminal, against the same backend and credential store as the console.
package main

import (
	"fmt"
	"os"

	"lazycarbs-console/internal/apperr"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if apperr.KindOf(err).PromptsCredential() {
			fmt.Fprintln(os.Stderr, "run 'lazycarbs login <key>' to provide a valid credential")
		}
		os.Exit(1)
	}
}
