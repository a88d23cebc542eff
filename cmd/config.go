package main

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

const masked = "********"

func configCommands(f *faucetInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "config outputs your instances computed configuration",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := *f.cnf
			if cfg.Airdrop.SecretSeed != "" {
				cfg.Airdrop.SecretSeed = masked
			}
			if cfg.Server.AuthToken != "" {
				cfg.Server.AuthToken = masked
			}

			data, err := json.MarshalIndent(cfg, "", "    ")
			if err != nil {
				log.Fatalf("Error printing config: %v\n", err)
			}

			fmt.Println(string(data))
		},
	}
	return cmd
}
