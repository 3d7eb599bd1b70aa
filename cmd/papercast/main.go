package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		// Interrupted runs already logged their shutdown; keep stderr quiet.
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "papercast:", err)
		}
		os.Exit(1)
	}
}
