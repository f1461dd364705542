package command

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chartline-org/chartline/encounters"
)

var encounterId string
var providerId string
var force bool

var encountersCmd = &cobra.Command{
	Use:   "encounters",
	Short: "Manage encounters",
}

var encountersSignCmd = &cobra.Command{
	Use:   "sign",
	Short: "Sign an encounter",
	RunE:  func(cmd *cobra.Command, args []string) error { return Run(signEncounter) },
}

func signEncounter(coordinator encounters.Coordinator) error {
	result, err := coordinator.Sign(context.TODO(), encounters.SignRequest{
		EncounterId: encounterId,
		ProviderId:  providerId,
		Force:       force,
	})
	if err != nil {
		return err
	}

	if !result.CanSign {
		fmt.Println("Encounter cannot be signed:")
		for _, e := range result.Errors {
			fmt.Printf("  - %s\n", e)
		}
		return nil
	}

	fmt.Printf("Signed at %s\n", result.SignedAt.Format("2006-01-02 15:04:05"))
	return nil
}

func init() {
	encountersSignCmd.Flags().StringVar(&encounterId, "encounter", "", "Encounter id")
	encountersSignCmd.Flags().StringVar(&providerId, "provider", "", "Provider id")
	encountersSignCmd.Flags().BoolVar(&force, "force", false, "Sign even when requirements fail")
	encountersCmd.AddCommand(encountersSignCmd)
	rootCmd.AddCommand(encountersCmd)
}
