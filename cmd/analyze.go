package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/dataloom/internal/analysis"
	"github.com/KaramelBytes/dataloom/internal/dataset"
	"github.com/KaramelBytes/dataloom/internal/utils"
)

var (
	anaOutputPath string
	anaJSON       bool
	anaSampleRows int
	anaTopValues  int
	anaTopCorr    int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file.csv>",
	Short: "Analyze a CSV offline and print its summary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open csv: %w", err)
		}
		defer f.Close()

		t, err := dataset.Load(f)
		if err != nil {
			return err
		}
		opt := analysis.DefaultOptions()
		if anaSampleRows > 0 {
			opt.SampleRows = anaSampleRows
		}
		if anaTopValues > 0 {
			opt.TopValues = anaTopValues
		}
		if anaTopCorr > 0 {
			opt.TopCorrelations = anaTopCorr
		}
		result, err := analysis.Analyze(t, opt)
		if err != nil {
			return err
		}
		result.Filename = path

		var out []byte
		if anaJSON {
			out, err = utils.PrettyJSON(result)
			if err != nil {
				return err
			}
		} else {
			out = []byte(result.Markdown())
		}
		if anaOutputPath != "" {
			if err := utils.SafeWriteFile(anaOutputPath, out); err != nil {
				return err
			}
			fmt.Printf("✓ Wrote analysis to %s\n", anaOutputPath)
			return nil
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringVarP(&anaOutputPath, "output", "o", "", "optional path to write the analysis")
	analyzeCmd.Flags().BoolVar(&anaJSON, "json", false, "emit JSON instead of Markdown")
	analyzeCmd.Flags().IntVar(&anaSampleRows, "sample-rows", 5, "number of sample rows to include")
	analyzeCmd.Flags().IntVar(&anaTopValues, "top-values", 10, "categorical top-N size")
	analyzeCmd.Flags().IntVar(&anaTopCorr, "top-correlations", 5, "number of strongest correlation pairs to report")
}
