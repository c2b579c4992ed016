package commands

import (
	"fmt"

	"github.com/cmwaters/cunner/p2p"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/spf13/cobra"
)

// NewKeygenCmd returns the command that prints a fresh node identity
func NewKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a private key to pass to node --key",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := p2p.DecodeKey("")
			if err != nil {
				return err
			}
			encoded, err := p2p.EncodeKey(key)
			if err != nil {
				return err
			}
			id, err := peer.IDFromPrivateKey(key)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "PeerID: %s\nPrivateKey: %s\n", id, encoded)
			return nil
		},
	}
}
