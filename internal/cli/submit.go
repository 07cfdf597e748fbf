package cli

import (
	"crypto/ed25519"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"oracle-protocol/internal/domain"
	"oracle-protocol/internal/runtime"
)

func newProviderCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provider",
		Short: "Provider transactions",
	}

	var capacity uint32
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a provider owned by the keypair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			programs, err := a.programs()
			if err != nil {
				return err
			}
			key, user, err := a.signer()
			if err != nil {
				return err
			}
			ix, err := runtime.NewProviderInitialize(programs, user, args[0], capacity)
			if err != nil {
				return err
			}
			return a.submit(cmd, ix, key)
		},
	}
	create.Flags().Uint32Var(&capacity, "capacity", 1, "declared oracle capacity")
	cmd.AddCommand(create)

	return cmd
}

func newOracleCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "oracle",
		Short: "Oracle transactions",
	}

	var createAttrs []string
	create := &cobra.Command{
		Use:   "create <provider-address> <name>",
		Short: "Create an oracle under a provider owned by the keypair",
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
			attrs, err := parseAttributes(createAttrs)
			if err != nil {
				return err
			}
			key, user, err := a.signer()
			if err != nil {
				return err
			}
			ix, err := runtime.NewOracleInitialize(programs, user, provider, args[1], attrs)
			if err != nil {
				return err
			}
			return a.submit(cmd, ix, key)
		},
	}
	create.Flags().StringArrayVar(&createAttrs, "attr", nil, "attribute as name=value (repeatable, order kept)")
	cmd.AddCommand(create)

	var updateAttrs []string
	update := &cobra.Command{
		Use:   "update <oracle-address> <provider-address>",
		Short: "Replace the attributes of an oracle",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			programs, err := a.programs()
			if err != nil {
				return err
			}
			oracle, err := domain.ParsePubkey(args[0])
			if err != nil {
				return fmt.Errorf("oracle address: %w", err)
			}
			provider, err := domain.ParsePubkey(args[1])
			if err != nil {
				return fmt.Errorf("provider address: %w", err)
			}
			attrs, err := parseAttributes(updateAttrs)
			if err != nil {
				return err
			}
			key, user, err := a.signer()
			if err != nil {
				return err
			}
			return a.submit(cmd, runtime.NewOracleUpdate(programs, user, oracle, provider, attrs), key)
		},
	}
	update.Flags().StringArrayVar(&updateAttrs, "attr", nil, "attribute as name=value (repeatable, order kept)")
	cmd.AddCommand(update)

	return cmd
}

// submit signs ix and sends it to the configured server, printing the receipt.
func (a *app) submit(cmd *cobra.Command, ix runtime.Instruction, key ed25519.PrivateKey) error {
	tx := &runtime.Transaction{Instruction: ix}
	tx.Sign(key)

	receipt, err := newServerClient(a.v.GetString(keyServer)).Submit(cmd.Context(), tx)
	if receipt != nil {
		if perr := printJSON(cmd.OutOrStdout(), receipt); perr != nil {
			return perr
		}
	}
	return err
}

// parseAttributes turns name=value pairs into an ordered attribute list.
func parseAttributes(pairs []string) ([]domain.Attribute, error) {
	attrs := make([]domain.Attribute, 0, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("attribute %q: want name=value", pair)
		}
		attrs = append(attrs, domain.Attribute{Name: name, Value: value})
	}
	return attrs, nil
}
