package command

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chartline-org/chartline/problems"
)

var problemId string

var problemsHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show a problem's visit history, newest first",
	RunE:  func(cmd *cobra.Command, args []string) error { return Run(showHistory) },
}

func showHistory(ledger problems.Ledger) error {
	history, err := ledger.GetVisitHistory(context.TODO(), problemId)
	if err != nil {
		return err
	}

	for _, entry := range history {
		signed := "draft"
		if entry.Signed {
			signed = "signed"
		}
		fmt.Printf("#%d %s %-10s %-6s %s\n", entry.Seq, entry.Date.Format("2006-01-02"), entry.StatusAtVisit, signed, entry.NoteExcerpt)
	}

	return nil
}

func init() {
	problemsHistoryCmd.Flags().StringVar(&problemId, "problem", "", "Problem id")
	problemsCmd.AddCommand(problemsHistoryCmd)
}
