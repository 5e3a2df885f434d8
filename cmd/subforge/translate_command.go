package main

import (
	"errors"

	"github.com/spf13/cobra"
)

func newTranslateCommand(app *appContext) *cobra.Command {
	var opts jobOptions
	var to string

	cmd := &cobra.Command{
		Use:   "translate [input]",
		Short: "Segment recognizer words and translate the subtitles",
		Long: `Translate behaves like process but asks the model to translate each
subtitle line into the target language. The translated text is realigned onto
the original timeline, so timestamps survive the language change unchanged.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				opts.input = args[0]
			}
			opts.targetLanguage = to
			if opts.targetLanguage == "" {
				opts.targetLanguage = app.cfg.Optimize.TargetLanguage
			}
			if opts.targetLanguage == "" {
				return errors.New("translate: a target language is required (--to or optimize.target_language)")
			}
			if app.cfg.Optimize.Provider.Name == "" {
				return errors.New("translate: optimize.provider must be configured")
			}
			return runJob(cmd.Context(), app.cfg, opts)
		},
	}

	cmd.Flags().StringVar(&to, "to", "", `target language, e.g. "German"`)
	cmd.Flags().StringVar(&opts.targetScript, "target-script", "", "script of the translated text: latin or cjk (default: the configured source script)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (default stdout)")

	return cmd
}
