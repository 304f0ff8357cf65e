package keys

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/bridgeval/engine/internal/config"
	"github.com/bridgeval/engine/pkg/keystore"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// New returns the command group inspecting the key store.
func New(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Inspect the key shares held by this engine",
	}
	cmd.AddCommand(newListCmd(configPath), newShowCmd(configPath))
	return cmd
}

func openStore(configPath string) (*keystore.FileStore, error) {
	cfg, err := config.Resolve(configPath)
	if err != nil {
		return nil, err
	}
	return keystore.NewFileStore(cfg.KeystorePath, cfg.Passphrase(), log.Logger)
}

func newListCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the aggregate public keys in the key store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore(*configPath)
			if err != nil {
				return err
			}
			keys, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, k := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), keystore.KeyName(k))
			}
			return nil
		},
	}
}

func newShowCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show <public key>",
		Short: "Show the parameters of a key share",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			publicKey, err := hex.DecodeString(strings.TrimPrefix(args[0], "0x"))
			if err != nil {
				return errors.Wrap(err, "invalid public key")
			}
			store, err := openStore(*configPath)
			if err != nil {
				return err
			}
			share, err := store.Get(cmd.Context(), publicKey)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "public key:  %s\n", keystore.KeyName(share.PublicKeyBytes()))
			fmt.Fprintf(out, "own index:   %d\n", share.Index)
			fmt.Fprintf(out, "parties:     %d\n", share.Params.N)
			fmt.Fprintf(out, "threshold:   %d\n", share.Params.T)
			for _, id := range share.ValidatorMap.Indices() {
				account, _ := share.ValidatorMap.IDOf(id)
				fmt.Fprintf(out, "  %3d  %s\n", id, account)
			}
			return nil
		},
	}
}
