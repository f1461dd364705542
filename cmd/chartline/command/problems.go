package command

import (
	"github.com/spf13/cobra"
)

var patientId string

var problemsCmd = &cobra.Command{
	Use:   "problems",
	Short: "Inspect patient problem lists",
}

func init() {
	problemsCmd.PersistentFlags().StringVar(&patientId, "patient", "", "Patient id")
	rootCmd.AddCommand(problemsCmd)
}
