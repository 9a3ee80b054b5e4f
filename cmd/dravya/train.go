package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dravya-labs/dravya/pkg/dataset"
	"github.com/dravya-labs/dravya/pkg/predictor"
	"github.com/spf13/cobra"
)

func newTrainCmd() *cobra.Command {
	var (
		datasetPath string
		modelPath   string
		kind        string
		k           int
	)

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train the classifier from the sensor dataset and save it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			if datasetPath != "" {
				cfg.DatasetPath = datasetPath
			}
			if modelPath != "" {
				cfg.ModelPath = modelPath
			}
			if kind != "" {
				cfg.Model.Kind = kind
			}
			if k > 0 {
				cfg.Model.K = k
			}
			switch predictor.Kind(cfg.Model.Kind) {
			case predictor.KindCentroid, predictor.KindKNN:
			default:
				return fmt.Errorf("unknown model kind %q (use centroid or knn)", cfg.Model.Kind)
			}

			ds, err := dataset.Load(cfg.DatasetPath)
			if err != nil {
				return err
			}
			m, err := trainModel(cfg, ds)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Dataset:\t%s (%d rows)\n", cfg.DatasetPath, ds.Len())
			fmt.Fprintf(w, "Model:\t%s\n", m.Kind)
			if m.Kind == predictor.KindKNN {
				fmt.Fprintf(w, "K:\t%d\n", m.K)
			}
			fmt.Fprintf(w, "Classes:\t%v\n", m.Classes)
			fmt.Fprintf(w, "Hold-out accuracy:\t%.2f%%\n", m.Accuracy*100)
			fmt.Fprintf(w, "Saved to:\t%s\n", cfg.ModelPath)
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&datasetPath, "dataset", "", "CSV dataset (overrides dataset_path)")
	cmd.Flags().StringVarP(&modelPath, "output", "o", "", "model file to write (overrides model_path)")
	cmd.Flags().StringVar(&kind, "kind", "", "model kind: centroid or knn")
	cmd.Flags().IntVar(&k, "k", 0, "neighbours for knn")
	return cmd
}
