// Package cli implements the oraclectl command tree.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config keys, also accepted as ORACLECTL_<KEY> environment variables and in
// the config file.
const (
	keyServer          = "server"
	keyRPCEndpoint     = "rpc_endpoint"
	keyWSEndpoint      = "ws_endpoint"
	keyKeypair         = "keypair"
	keyProviderProgram = "provider_program_id"
	keyOracleProgram   = "oracle_program_id"
)

// app carries the state shared by every command of one invocation.
type app struct {
	v          *viper.Viper
	configFile string
}

// Execute runs oraclectl with the process arguments.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// NewRootCmd builds the full command tree.
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "oraclectl",
		Short: "Provider and oracle registry client",
		Long: `oraclectl derives registry addresses, signs and submits provider and
oracle transactions to a registry server, and reads or watches registry
accounts on a Solana cluster.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.initConfig(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (yaml, toml or json)")
	flags.String("server", "http://localhost:8080", "registry server URL")
	flags.String("rpc-endpoint", "https://api.devnet.solana.com", "Solana JSON-RPC endpoint")
	flags.String("ws-endpoint", "wss://api.devnet.solana.com", "Solana WebSocket endpoint")
	flags.String("keypair", defaultKeypairPath(), "Solana JSON keypair file used to sign")
	flags.String("provider-program-id", "", "provider program ID (default: deployed program)")
	flags.String("oracle-program-id", "", "oracle program ID (default: deployed program)")

	root.AddCommand(
		newDeriveCmd(a),
		newProviderCmd(a),
		newOracleCmd(a),
		newFetchCmd(a),
		newWatchCmd(a),
	)
	return root
}

// initConfig layers flags over environment over the optional config file.
func (a *app) initConfig(cmd *cobra.Command) error {
	flags := cmd.Root().PersistentFlags()
	bindings := map[string]string{
		keyServer:          "server",
		keyRPCEndpoint:     "rpc-endpoint",
		keyWSEndpoint:      "ws-endpoint",
		keyKeypair:         "keypair",
		keyProviderProgram: "provider-program-id",
		keyOracleProgram:   "oracle-program-id",
	}
	for key, flag := range bindings {
		if err := a.v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return fmt.Errorf("bind --%s: %w", flag, err)
		}
	}

	a.v.SetEnvPrefix("ORACLECTL")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	a.v.AutomaticEnv()

	if a.configFile != "" {
		a.v.SetConfigFile(a.configFile)
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config file %s: %w", a.configFile, err)
		}
	}
	return nil
}

// printJSON writes v indented to the command output.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
