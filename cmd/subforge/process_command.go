package main

import (
	"github.com/spf13/cobra"
)

func newProcessCommand(app *appContext) *cobra.Command {
	var opts jobOptions

	cmd := &cobra.Command{
		Use:   "process [input]",
		Short: "Segment recognizer words and rewrite them into clean subtitles",
		Long: `Process reads a JSON array of timed recognizer words from input (or
stdin when input is omitted or "-"), segments them into subtitle lines, and
optionally rewrites each line through the configured model. Timestamps in the
output are copied verbatim from the input words.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				opts.input = args[0]
			}
			// Rewrite mode: the model cleans up phrasing in the source
			// language.
			opts.targetLanguage = ""
			return runJob(cmd.Context(), app.cfg, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().BoolVar(&opts.noModel, "no-model", false, "skip the model pass and emit the original segment texts")

	return cmd
}
