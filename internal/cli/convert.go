package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/maauso/audio2midi/internal/batch"
	"github.com/maauso/audio2midi/internal/source"
	"github.com/spf13/cobra"
)

// ErrNothingConverted is returned when a run produced no MIDI file.
var ErrNothingConverted = errors.New("no files converted")

type convertOptions struct {
	out             string
	start           float64
	end             float64
	maxNoteDuration float64
	filterDuration  bool
	archive         bool
	archiveName     string
	keepOriginal    bool
	includeOriginal bool
	title           string
}

func newConvertCommand(factory ServiceFactory) *cobra.Command {
	var opts convertOptions

	cmd := &cobra.Command{
		Use:   "convert [files or urls...]",
		Short: "Convert audio files and YouTube links to MIDI",
		Long: `Convert transcribes each input in order and writes the MIDI output to the
output directory. Press Ctrl+C to stop after the file in progress.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := opts.settings(cmd)
			return runConvert(cmd, factory, opts.out, args, settings)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.out, "out", "o", "", "output directory (default OUTPUT_DIR)")
	f.Float64Var(&opts.start, "start", 0, "trim start in seconds")
	f.Float64Var(&opts.end, "end", 0, "trim end in seconds, 0 keeps the rest")
	f.Float64Var(&opts.maxNoteDuration, "max-note-duration", 0, "drop notes longer than this many seconds")
	f.BoolVar(&opts.filterDuration, "filter-duration", false, "enable the note duration filter")
	f.BoolVar(&opts.archive, "archive", false, "bundle several outputs into one zip")
	f.StringVar(&opts.archiveName, "archive-name", "", "zip file name")
	f.BoolVar(&opts.keepOriginal, "keep-original", false, "keep the original audio with the results")
	f.BoolVar(&opts.includeOriginal, "include-original", false, "add the original audio to the zip")
	f.StringVarP(&opts.title, "title", "t", "", "custom output name")
	return cmd
}

func (o convertOptions) settings(cmd *cobra.Command) batch.Settings {
	s := batch.Settings{
		StartTime:                o.start,
		EndTime:                  o.end,
		EnableDurationFilter:     o.filterDuration,
		ArchiveOutput:            o.archive,
		ArchiveName:              o.archiveName,
		KeepOriginalAudio:        o.keepOriginal,
		IncludeOriginalInArchive: o.includeOriginal,
		CustomTitle:              o.title,
	}
	if cmd.Flags().Changed("max-note-duration") {
		d := o.maxNoteDuration
		s.MaxNoteDuration = &d
		// Passing a threshold implies filtering
		s.EnableDurationFilter = true
	}
	return s
}

func runConvert(cmd *cobra.Command, factory ServiceFactory, out string, args []string, settings batch.Settings) error {
	stdout := cmd.OutOrStdout()

	sources, err := collectSources(args, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	svc, cleanup, err := factory(out, func(e batch.Event) { printEvent(stdout, e) })
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	job, err := svc.Create(ctx, sources, settings)
	if err != nil {
		return err
	}
	done, err := svc.Process(ctx, job.ID)
	if err != nil {
		return err
	}

	printSummary(stdout, done)
	if len(done.Results) == 0 {
		return ErrNothingConverted
	}
	if done.DeliveryError != "" {
		return fmt.Errorf("deliver output: %s", done.DeliveryError)
	}
	return nil
}

// collectSources turns arguments into sources: local files first, then
// URLs, each group in argument order. URLs are recognized by shape.
func collectSources(args []string, warn io.Writer) ([]source.AudioSource, error) {
	var sources []source.AudioSource
	var uploads []source.Upload
	for _, arg := range args {
		if source.IsYouTubeURL(arg) {
			src, err := source.FromURL(arg)
			if err != nil {
				return nil, err
			}
			sources = append(sources, src)
			continue
		}
		data, err := os.ReadFile(arg)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", arg, err)
		}
		uploads = append(uploads, source.Upload{Name: filepath.Base(arg), Data: data})
	}

	if len(uploads) > 0 {
		kept, dropped, err := source.FilterUploads(uploads, nil)
		if dropped > 0 {
			fmt.Fprintf(warn, "skipped %d non-audio file(s)\n", dropped)
		}
		if err != nil && len(sources) == 0 {
			return nil, err
		}
		sources = append(kept, sources...)
	}
	return sources, nil
}

func printEvent(w io.Writer, e batch.Event) {
	pct := int(e.Progress * 100)
	switch e.Kind {
	case batch.EventItemStarted:
		fmt.Fprintf(w, "[%3d%%] %d/%d %s\n", pct, e.Index+1, e.Total, e.Source)
	case batch.EventItemStage:
		fmt.Fprintf(w, "[%3d%%]   %s\n", pct, e.Stage)
	case batch.EventItemDone:
		fmt.Fprintf(w, "[%3d%%]   done: %s\n", pct, e.Message)
	case batch.EventItemFailed:
		fmt.Fprintf(w, "[%3d%%]   failed: %s\n", pct, e.Message)
	case batch.EventBatchCancelled:
		fmt.Fprintf(w, "cancelled: %s\n", e.Message)
	case batch.EventBatchFailed:
		fmt.Fprintf(w, "failed: %s\n", e.Message)
	case batch.EventBatchCompleted:
		fmt.Fprintf(w, "completed: %s\n", e.Message)
	}
}

func printSummary(w io.Writer, j *batch.Job) {
	for _, loc := range j.Locations {
		fmt.Fprintf(w, "wrote %s\n", loc)
	}
	for _, e := range j.Errors {
		fmt.Fprintf(w, "error: %s (%s): %s\n", e.SourceName, e.Kind, e.Message)
	}
}
