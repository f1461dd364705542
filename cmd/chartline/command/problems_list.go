package command

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chartline-org/chartline/problems"
)

var openOnly bool

var problemsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a patient's medical problems",
	RunE:  func(cmd *cobra.Command, args []string) error { return Run(listProblems) },
}

func listProblems(repo problems.Repository) error {
	var statuses []problems.Status
	if openOnly {
		statuses = problems.OpenStatuses()
	}

	list, err := repo.ListForPatient(context.TODO(), patientId, statuses)
	if err != nil {
		return err
	}

	for _, problem := range list {
		fmt.Printf("%s %-10s %-12s %s\n", problem.Id.Hex(), problem.CurrentIcd10Code, problem.ProblemStatus, problem.ProblemTitle)
	}
	fmt.Printf("Found %v problems\n", len(list))

	return nil
}

func init() {
	problemsListCmd.Flags().BoolVar(&openOnly, "open", false, "Only open problems")
	problemsCmd.AddCommand(problemsListCmd)
}
