package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"oracle-protocol/internal/domain"
	"oracle-protocol/internal/feed"
	"oracle-protocol/internal/solana"
)

func (a *app) reader() (*feed.Reader, error) {
	programs, err := a.programs()
	if err != nil {
		return nil, err
	}
	rpc := solana.NewHTTPClient(a.v.GetString(keyRPCEndpoint))
	return feed.NewReader(rpc, programs), nil
}

func newFetchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Read registry accounts from the cluster",
	}

	var listOracles bool
	provider := &cobra.Command{
		Use:   "provider <address>",
		Short: "Fetch a provider account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			address, err := domain.ParsePubkey(args[0])
			if err != nil {
				return fmt.Errorf("provider address: %w", err)
			}
			r, err := a.reader()
			if err != nil {
				return err
			}
			p, err := r.Provider(cmd.Context(), address)
			if err != nil {
				return err
			}
			if !listOracles {
				return printJSON(cmd.OutOrStdout(), providerView(p))
			}

			oracles, err := r.Oracles(cmd.Context(), address)
			if err != nil {
				return err
			}
			views := make([]oracleJSON, len(oracles))
			for i, o := range oracles {
				views[i] = oracleView(o)
			}
			return printJSON(cmd.OutOrStdout(), struct {
				providerJSON
				Oracles []oracleJSON `json:"oracles"`
			}{providerView(p), views})
		},
	}
	provider.Flags().BoolVar(&listOracles, "oracles", false, "also list the provider's oracles")
	cmd.AddCommand(provider)

	cmd.AddCommand(&cobra.Command{
		Use:   "oracle <address>",
		Short: "Fetch an oracle account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			address, err := domain.ParsePubkey(args[0])
			if err != nil {
				return fmt.Errorf("oracle address: %w", err)
			}
			r, err := a.reader()
			if err != nil {
				return err
			}
			o, err := r.Oracle(cmd.Context(), address)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), oracleView(o))
		},
	})

	return cmd
}

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <oracle-address>",
		Short: "Stream changes of an oracle account until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			address, err := domain.ParsePubkey(args[0])
			if err != nil {
				return fmt.Errorf("oracle address: %w", err)
			}
			programs, err := a.programs()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ws, err := solana.NewWSClient(ctx, a.v.GetString(keyWSEndpoint), nil)
			if err != nil {
				return err
			}
			defer ws.Close()

			return watchOracle(ctx, cmd, feed.NewWatcher(feed.WatcherOptions{WS: ws, Programs: programs}), address)
		},
	}
}

// watchOracle prints one JSON line per update until ctx ends.
func watchOracle(ctx context.Context, cmd *cobra.Command, w *feed.Watcher, address domain.Pubkey) error {
	updates, err := w.Watch(ctx, address)
	if err != nil {
		return err
	}
	for u := range updates {
		if u.Err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "slot %d: %v\n", u.Slot, u.Err)
			continue
		}
		line := struct {
			Slot int64 `json:"slot"`
			oracleJSON
		}{u.Slot, oracleView(u.Oracle)}
		if err := printJSON(cmd.OutOrStdout(), line); err != nil {
			return err
		}
	}
	return nil
}

type providerJSON struct {
	Address  domain.Pubkey `json:"address"`
	Name     string        `json:"name"`
	Owner    domain.Pubkey `json:"owner"`
	Capacity uint32        `json:"capacity"`
	Bump     uint8         `json:"bump"`
}

func providerView(p *domain.Provider) providerJSON {
	return providerJSON{Address: p.Address, Name: p.Name, Owner: p.Owner, Capacity: p.Capacity, Bump: p.Bump}
}

type oracleJSON struct {
	Address    domain.Pubkey      `json:"address"`
	Provider   domain.Pubkey      `json:"provider"`
	Name       string             `json:"name"`
	Attributes []domain.Attribute `json:"attributes"`
	Bump       uint8              `json:"bump"`
}

func oracleView(o *domain.Oracle) oracleJSON {
	return oracleJSON{Address: o.Address, Provider: o.Provider, Name: o.Name, Attributes: o.Attributes, Bump: o.Bump}
}
