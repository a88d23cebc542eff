package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/blnkfinance/faucet/internal/settlement"
)

// sequenceCommands prints the next sequence the settlement node expects from the
// funding account. Useful when checking that a resync caught up.
func sequenceCommands(f *faucetInstance) *cobra.Command {
	return &cobra.Command{
		Use:   "sequence",
		Short: "print the next sequence of the funding account",
		Run: func(cmd *cobra.Command, args []string) {
			signer, err := settlement.NewSigner(f.cnf.Airdrop.SecretSeed)
			if err != nil {
				log.Fatalf("Error loading funding account: %v", err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			client, err := dialSettlement(ctx, f.cnf)
			if err != nil {
				log.Fatal(err)
			}
			defer client.Close()

			next, err := client.NextSequence(ctx, signer.Address())
			if err != nil {
				log.Fatalf("Error fetching sequence: %v", err)
			}
			fmt.Printf("%s %d\n", signer.Address(), next)
		},
	}
}
