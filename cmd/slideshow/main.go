// Package main provides the slideshow command-line renderer.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/maauso/slideshow/internal/apperr"
)

// Exit codes.
const (
	exitOK        = 0
	exitFailure   = 1
	exitCancelled = 130
)

func main() {
	os.Exit(execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	code := exitCode(err)
	if code == exitFailure {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return code
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, apperr.ErrCancelled):
		return exitCancelled
	default:
		return exitFailure
	}
}
