package command

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chartline-org/chartline/patients"
	"github.com/chartline-org/chartline/pointer"
	"github.com/chartline-org/chartline/store"
)

var patientSearch string

var patientsCmd = &cobra.Command{
	Use:   "patients",
	Short: "Inspect patients",
}

var patientsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List patients",
	RunE:  func(cmd *cobra.Command, args []string) error { return Run(listPatients) },
}

func listPatients(service patients.Service) error {
	filter := &patients.Filter{}
	if patientSearch != "" {
		filter.Search = &patientSearch
	}

	page := store.DefaultPagination().WithLimit(1000)
	list, err := service.List(context.TODO(), filter, page)
	if err != nil {
		return err
	}

	for _, patient := range list {
		fmt.Printf("%s %-10s %s\n", patient.Id.Hex(), pointer.ToString(patient.Mrn), pointer.ToString(patient.FullName))
	}
	fmt.Printf("Found %v patients\n", len(list))

	return nil
}

func init() {
	patientsListCmd.Flags().StringVar(&patientSearch, "search", "", "Search by name or MRN")
	patientsCmd.AddCommand(patientsListCmd)
	rootCmd.AddCommand(patientsCmd)
}
