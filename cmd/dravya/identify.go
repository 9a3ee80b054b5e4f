package main

import (
	"encoding/json"
	"fmt"

	"github.com/dravya-labs/dravya/pkg/models"
	"github.com/spf13/cobra"
)

func newIdentifyCmd() *cobra.Command {
	var (
		ph, tds, turbidity, gas, colorIndex, temp float64
		withImage                                 bool
	)

	cmd := &cobra.Command{
		Use:     "identify",
		Short:   "Identify a dravya from one set of sensor readings and print the JSON response",
		Example: `  dravya identify --ph 6.5 --tds 320 --turbidity 12 --gas 150 --color-index 0.42 --temp 27`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			if !withImage {
				cfg.Generation.Image.Enabled = false
			}

			a, err := newApp(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			resp, err := a.svc.Identify(cmd.Context(), models.NewSensorInput(ph, tds, turbidity, gas, colorIndex, temp))
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(resp); err != nil {
				return fmt.Errorf("encode response: %w", err)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.Float64Var(&ph, "ph", 0, "pH reading")
	f.Float64Var(&tds, "tds", 0, "total dissolved solids")
	f.Float64Var(&turbidity, "turbidity", 0, "turbidity")
	f.Float64Var(&gas, "gas", 0, "gas sensor reading")
	f.Float64Var(&colorIndex, "color-index", 0, "colour index")
	f.Float64Var(&temp, "temp", 0, "temperature")
	f.BoolVar(&withImage, "image", false, "also generate an image (printed as base64)")
	for _, name := range []string{"ph", "tds", "turbidity", "gas", "color-index", "temp"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}
