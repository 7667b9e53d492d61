package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/phrazzld/scry-gen/internal/domain"
	"github.com/spf13/cobra"
)

func newExpandCmd(opts *globalOptions) *cobra.Command {
	var (
		file string
		req  domain.TranscriptRequest
	)

	cmd := &cobra.Command{
		Use:   "expand",
		Short: "Expand a transcript toward a target word count and print it as JSON",
		Long: `Expand reads a transcript request from --file (JSON, "-" for stdin) or from
flags, runs the length refinement loop and prints the resulting transcript.
A degraded result is printed and exits successfully; a run with no usable
attempt fails.`,
		Example: `  scry-gen expand --topic "ocean tides" --words 400
  scry-gen expand --file request.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file != "" {
				fileReq, err := readTranscriptRequest(cmd.InOrStdin(), file)
				if err != nil {
					return err
				}
				req = mergeTranscriptRequest(fileReq, req)
			}

			cfg, log, err := opts.loadWithLogOutput(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			app, err := newApplication(cfg, log)
			if err != nil {
				return err
			}
			return runExpand(cmd, app, req)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON transcript request, - for stdin")
	cmd.Flags().StringVar(&req.Topic, "topic", "", "Transcript topic")
	cmd.Flags().IntVar(&req.TargetWords, "words", 0, "Target word count")
	cmd.Flags().StringVar(&req.Style, "style", "", "Optional style hint")
	cmd.Flags().IntVar(&req.MaxAttempts, "attempts", 0, "Refinement attempts (default 3)")
	return cmd
}

func runExpand(cmd *cobra.Command, app *application, req domain.TranscriptRequest) error {
	transcript, err := app.content.ExpandTranscript(cmd.Context(), req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(transcript); err != nil {
		return fmt.Errorf("failed to write transcript: %w", err)
	}
	return nil
}

func readTranscriptRequest(stdin io.Reader, path string) (domain.TranscriptRequest, error) {
	var (
		req domain.TranscriptRequest
		r   = stdin
	)
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return req, fmt.Errorf("failed to open request file: %w", err)
		}
		defer f.Close()
		r = f
	}

	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return req, fmt.Errorf("failed to parse request file: %w", err)
	}
	return req, nil
}

// mergeTranscriptRequest lets explicit flags override fields read from a file.
func mergeTranscriptRequest(base, flags domain.TranscriptRequest) domain.TranscriptRequest {
	if flags.Topic != "" {
		base.Topic = flags.Topic
	}
	if flags.TargetWords != 0 {
		base.TargetWords = flags.TargetWords
	}
	if flags.Style != "" {
		base.Style = flags.Style
	}
	if flags.MaxAttempts != 0 {
		base.MaxAttempts = flags.MaxAttempts
	}
	return base
}
