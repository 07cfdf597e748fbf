package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"oracle-protocol/internal/domain"
)

type derivedAddress struct {
	Address domain.Pubkey `json:"address"`
	Bump    uint8         `json:"bump"`
}

func newDeriveCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Derive registry account addresses",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "provider <name>",
		Short: "Derive the address of a provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			programs, err := a.programs()
			if err != nil {
				return err
			}
			address, bump, err := programs.ProviderAddress(args[0])
			if err != nil {
				return fmt.Errorf("derive provider: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), derivedAddress{Address: address, Bump: bump})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "oracle <provider-address> <name>",
		Short: "Derive the address of an oracle under a provider",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			programs, err := a.programs()
			if err != nil {
				return err
			}
			provider, err := domain.ParsePubkey(args[0])
			if err != nil {
				return fmt.Errorf("provider address: %w", err)
			}
			address, bump, err := programs.OracleAddress(provider, args[1])
			if err != nil {
				return fmt.Errorf("derive oracle: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), derivedAddress{Address: address, Bump: bump})
		},
	})

	return cmd
}
