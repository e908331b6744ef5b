package common

import (
	"context"
	"errors"

	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/storyrelay/internal/infrastructure/di"
)

// InitializeContainer creates a DI container from the loaded settings.
// Logs go to the command's stderr and results to its stdout.
func InitializeContainer(cmd *cobra.Command) (*di.Container, error) {
	cfg := GetGlobalConfig()
	if cfg == nil {
		return nil, goerr.New("configuration is not loaded")
	}
	return di.NewContainer(cmd.Context(), cfg, di.Options{
		Fs:           GetFs(),
		LogWriter:    cmd.ErrOrStderr(),
		OutputWriter: cmd.OutOrStdout(),
		OutputFormat: GetOutputFormat(),
	})
}

// Action is the body of a command. It returns the success message and the
// data to present.
type Action func(ctx context.Context, c *di.Container) (string, any, error)

// Execute runs action against a fresh container and presents the outcome.
// A failed action is presented and its error returned so the process exits non-zero.
func Execute(cmd *cobra.Command, action Action) error {
	container, err := InitializeContainer(cmd)
	if err != nil {
		return goerr.Wrap(err, "failed to initialize container")
	}
	defer func() {
		if cerr := container.Close(); cerr != nil {
			container.GetLogger().With("error", cerr).Warn("failed to close container")
		}
	}()

	message, data, err := action(cmd.Context(), container)
	if err != nil {
		_ = container.GetPresenter().PresentError(err)
		return presentedError{err}
	}
	return container.GetPresenter().PresentSuccess(message, data)
}

// presentedError marks an error the presenter already showed
type presentedError struct {
	error
}

func (e presentedError) Unwrap() error { return e.error }

// IsPresented reports whether err was already shown to the user
func IsPresented(err error) bool {
	var p presentedError
	return errors.As(err, &p)
}
