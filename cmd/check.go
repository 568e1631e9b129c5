package cmd

import (
	"os"

	"github.com/andresmejia3/facedetector/internal/detect"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Load every cascade and print the classifier startup report",
	Long:  "Runs the same validation pass as serve without opening a listener. Exits non-zero when no classifier can be loaded.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("cascades") {
			Cfg.Detection.CascadeDir = checkCascades
		}
		reg, err := loadClassifiers(os.Stdout, Cfg.Detection)
		if err != nil {
			return err
		}
		return reg.Close()
	},
}

var checkCascades string

func init() {
	checkCmd.Flags().StringVarP(&checkCascades, "cascades", "c", detect.DefaultCascadeDir, "Directory holding the OpenCV haarcascade_*.xml files (shipped with OpenCV under share/opencv4/haarcascades)")
	rootCmd.AddCommand(checkCmd)
}
