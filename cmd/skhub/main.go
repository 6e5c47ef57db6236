// Command skhub is a CLI harness for the skhub package.
// It loads scikit-learn style models from the Hugging Face Hub.
//
// Configuration is loaded from environment variables:
//   - SKHUB_CACHE_DIR: Override for the hub cache directory (optional)
//   - HF_TOKEN: Access token for private repositories (optional)
//   - HF_ENDPOINT: Override for the Hub URL (optional)
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/prethora/skhub"
	"github.com/prethora/skhub/joblib"
	"github.com/prethora/skhub/pickle"
)

// CLI exit codes for standardized error reporting.
const (
	// ExitSuccess indicates the operation completed successfully.
	ExitSuccess = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError = 1

	// ExitInvalidArgs indicates invalid command line arguments or configuration.
	ExitInvalidArgs = 2

	// ExitNotFound indicates a local file does not exist.
	ExitNotFound = 3

	// ExitDecodeError indicates a model file could not be decoded.
	ExitDecodeError = 4

	// ExitInterrupted indicates the operation was canceled.
	ExitInterrupted = 130
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd := skhub.NewCommand(skhub.Config{})
	if err := cmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(exitCodeFromError(err))
	}
}

// exitCodeFromError maps error types to exit codes.
func exitCodeFromError(err error) int {
	if err == nil {
		return ExitSuccess
	}

	switch {
	case errors.Is(err, skhub.ErrInvalidArgument):
		return ExitInvalidArgs
	case errors.Is(err, skhub.ErrInvalidRef):
		return ExitInvalidArgs
	case errors.Is(err, skhub.ErrConfig):
		return ExitInvalidArgs
	case errors.Is(err, pickle.ErrInvalidPickle):
		return ExitDecodeError
	case errors.Is(err, pickle.ErrUnsupported):
		return ExitDecodeError
	case errors.Is(err, joblib.ErrUnsupported):
		return ExitDecodeError
	case errors.Is(err, os.ErrNotExist):
		return ExitNotFound
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	default:
		return ExitGeneralError
	}
}
