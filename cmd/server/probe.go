package main

import (
	"encoding/json"
	"fmt"

	"github.com/phrazzld/scry-gen/internal/transport"
	"github.com/spf13/cobra"
)

type probeOutput struct {
	transport.ProxyStatus
	Preferred transport.Variant `json:"preferred"`
}

func newProbeCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Run one proxy health check and print the transport status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.loadWithLogOutput(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			app, err := newApplication(cfg, log)
			if err != nil {
				return err
			}
			return runProbe(cmd, app)
		},
	}
}

func runProbe(cmd *cobra.Command, app *application) error {
	preferred := app.selector.Preferred(cmd.Context(), app.transport)
	out := probeOutput{
		ProxyStatus: app.selector.ProxyStatus(app.transport),
		Preferred:   preferred,
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("failed to write status: %w", err)
	}
	return nil
}
