// Package cli implements the audio2midi command line interface.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/maauso/audio2midi/internal/batch"
	"github.com/maauso/audio2midi/internal/bootstrap"
	"github.com/maauso/audio2midi/internal/config"
	"github.com/spf13/cobra"
)

// ServiceFactory builds the batch service for one CLI run. outDir overrides
// the configured output directory when non-empty; listener receives every
// progress event.
type ServiceFactory func(outDir string, listener func(batch.Event)) (*batch.Service, func(), error)

// NewRootCommand creates the audio2midi command tree. A nil factory uses the
// environment configuration.
func NewRootCommand(factory ServiceFactory) *cobra.Command {
	if factory == nil {
		factory = envServiceFactory(os.Stderr)
	}

	root := &cobra.Command{
		Use:           "audio2midi",
		Short:         "Convert audio recordings to MIDI",
		Long:          `audio2midi transcribes audio files and YouTube links into Standard MIDI Files.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newConvertCommand(factory), newInspectCommand())
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	cobra.CheckErr(NewRootCommand(nil).Execute())
}

func envServiceFactory(logOut io.Writer) ServiceFactory {
	return func(outDir string, listener func(batch.Event)) (*batch.Service, func(), error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, nil, fmt.Errorf("load config: %w", err)
		}
		if outDir != "" {
			cfg.OutputDir = outDir
		}

		logger := cfg.NewLoggerTo(logOut)
		deps, err := bootstrap.NewDependencies(cfg, logger,
			batch.WithEventListener(listener),
			batch.WithFlatPublish(),
		)
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() { _ = deps.Transcriber.Dispose() }
		return deps.Batches, cleanup, nil
	}
}
