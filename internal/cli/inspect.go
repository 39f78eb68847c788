package cli

import (
	"fmt"
	"os"

	"github.com/maauso/audio2midi/internal/midi"
	"github.com/spf13/cobra"
)

func newInspectCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "inspect [file.mid]",
		Short: "Print the notes of a MIDI file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			notes, err := midi.Decode(data)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "notes: %d\n", midi.NoteCount(notes))
			fmt.Fprintf(w, "duration: %.3fs\n", midi.Duration(notes))
			for i, n := range notes {
				if limit > 0 && i >= limit {
					fmt.Fprintf(w, "... %d more\n", len(notes)-limit)
					break
				}
				fmt.Fprintf(w, "%8.3f %8.3f pitch=%3d velocity=%3d\n", n.StartTime, n.EndTime, n.Pitch, n.Velocity)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum notes to print, 0 for all")
	return cmd
}
