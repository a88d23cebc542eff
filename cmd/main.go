/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/blnkfinance/faucet/config"
	"github.com/blnkfinance/faucet/internal/settlement"
)

// Faucet represents the CLI application, encapsulating the root Cobra command.
type Faucet struct {
	cmd *cobra.Command
}

// faucetInstance holds the configuration shared by the subcommands.
type faucetInstance struct {
	cnf *config.Configuration
}

// recoverPanic handles any panics during program execution and logs the error using Logrus.
func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration before any command runs. Commands connect to the
// services they need themselves, so that migrate works without a settlement node.
func preRun(app *faucetInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig(*configFile)
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}
		app.cnf = cnf
		return nil
	}
}

// dialSettlement connects to the settlement node. The first connection must succeed;
// later drops are handled by the client's reconnect loop.
func dialSettlement(ctx context.Context, cnf *config.Configuration) (*settlement.WSClient, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	client, err := settlement.Dial(ctx, cnf.Settlement.Url,
		settlement.WithMaxReconnectInterval(time.Duration(cnf.Settlement.ReconnectMaxSec)*time.Second))
	if err != nil {
		return nil, fmt.Errorf("error connecting to settlement node: %v", err)
	}
	return client, nil
}

// NewCLI creates the command-line interface (CLI) for the faucet.
func NewCLI() *Faucet {
	var configFile string
	f := &faucetInstance{}

	var rootCmd = &cobra.Command{
		Use:   "faucet",
		Short: "Single-use token faucet",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./faucet.json", "Configuration file for the faucet")
	rootCmd.PersistentPreRunE = preRun(f, &configFile)

	rootCmd.AddCommand(serverCommands(f))
	rootCmd.AddCommand(migrateCommands(f))
	rootCmd.AddCommand(sequenceCommands(f))
	rootCmd.AddCommand(configCommands(f))

	return &Faucet{cmd: rootCmd}
}

func (w Faucet) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
