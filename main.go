package main

import (
	"fmt"
	"os"
	"unicode"

	"github.com/omnicli/omni/cmd"
)

func main() {
	os.Exit(run())
}

// run maps cmd.Execute's error into spec.md's exit codes: 0 success, 1 step
// failure or configuration error, 2 trust-check negative.
func run() int {
	err := cmd.Execute()
	if err == nil {
		return 0
	}

	errMsg := err.Error()
	if errMsg != "" {
		runes := []rune(errMsg)
		runes[0] = unicode.ToUpper(runes[0])
		errMsg = string(runes)
	}
	fmt.Fprintln(os.Stderr, errMsg)

	if cmd.IsNotTrusted(err) {
		return 2
	}
	return 1
}
