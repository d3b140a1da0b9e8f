// Copyright 2025.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/avasko/sshbridge/internal/adapters/config"
	"github.com/avasko/sshbridge/internal/adapters/identity"
	"github.com/avasko/sshbridge/internal/adapters/sshconfig"
	"github.com/avasko/sshbridge/internal/adapters/transport/sshx"
	"github.com/avasko/sshbridge/internal/core/domain"
	"github.com/avasko/sshbridge/internal/core/services"
	"github.com/avasko/sshbridge/internal/logger"
	"github.com/spf13/cobra"
)

var (
	version   = "develop"
	gitCommit = "unknown"
)

func main() {
	log, err := logger.New("SSHBRIDGE")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	//nolint:errcheck // log.Sync may return an error which is safe to ignore here
	defer log.Sync()

	cfg := config.NewOSConfig()
	settings := config.LoadSettings(cfg)

	rootCmd := &cobra.Command{
		Use:   "sshbridge",
		Short: "Connection and session core for driving SSH fleets",
	}
	rootCmd.SilenceUsage = true

	identityCmd := &cobra.Command{
		Use:   "identity",
		Short: "Print the managed public key for authorized_keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager := identity.NewManager(log, settings.IdentityFile)
			if err := manager.Ensure(); err != nil {
				log.Errorw("failed to ensure managed identity", "error", err)
				return err
			}
			key, err := manager.PublicKey()
			if err != nil {
				return err
			}
			fmt.Println(key)
			return nil
		},
	}

	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "Print the effective configuration",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("session strategy:  %s\n", settings.Strategy)
			fmt.Printf("session timeout:   %s\n", settings.SessionTTL)
			fmt.Printf("command timeout:   %s\n", settings.CommandTimeout)
			fmt.Printf("max output bytes:  %d\n", settings.MaxOutput)
			fmt.Printf("session header:    %s\n", settings.SessionHeader)
			fmt.Printf("identity file:     %s\n", settings.IdentityFile)
			sshConfig := settings.SSHConfig
			if sshConfig == "" {
				sshConfig = "~/.ssh/config"
			}
			fmt.Printf("ssh config:        %s\n", sshConfig)
			fmt.Printf("allowed root:      %s\n", settings.AllowedRoot)
		},
	}

	var (
		execAlias    string
		execHost     string
		execPort     int
		execUser     string
		execPassword string
		execKey      string
	)
	execCmd := &cobra.Command{
		Use:   "exec [flags] -- command...",
		Short: "Connect to a host and run one command",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager := identity.NewManager(log, settings.IdentityFile)
			dialer := sshx.NewDialer(log, manager, 0)
			resolver := sshconfig.NewResolver(log, settings.SSHConfig)
			registry := services.NewRegistry(log, dialer, manager, resolver)
			defer registry.DisconnectAll()

			conn, err := registry.Connect(cmd.Context(), services.ConnectParams{
				Alias:  execAlias,
				Target: domain.Target{Host: execHost, Port: execPort, User: execUser},
				Auth:   domain.Auth{Password: execPassword, KeyPath: execKey},
			})
			if err != nil {
				return err
			}

			executor := services.NewExecutor(log, settings.CommandTimeout, settings.MaxOutput)
			result, err := executor.Execute(cmd.Context(), conn, strings.Join(args, " "), 0)
			if err != nil {
				return err
			}

			fmt.Print(result.Stdout)
			if result.Stderr != "" {
				fmt.Fprint(os.Stderr, result.Stderr)
			}
			if result.Truncated {
				fmt.Fprintln(os.Stderr, "[output truncated]")
			}
			if result.ExitStatus != 0 {
				registry.DisconnectAll()
				//nolint:errcheck // log.Sync may return an error which is safe to ignore here
				log.Sync()
				os.Exit(result.ExitStatus)
			}
			return nil
		},
	}
	execCmd.Flags().StringVar(&execAlias, "alias", "", "connection alias (resolved via ssh config when no host is given)")
	execCmd.Flags().StringVar(&execHost, "host", "", "remote host")
	execCmd.Flags().IntVar(&execPort, "port", 0, "remote port (default 22)")
	execCmd.Flags().StringVar(&execUser, "user", "", "remote user")
	execCmd.Flags().StringVar(&execPassword, "password", "", "password authentication")
	execCmd.Flags().StringVar(&execKey, "key", "", "private key file authentication")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sshbridge %s (%s)\n", version, gitCommit)
		},
	}

	rootCmd.AddCommand(identityCmd, settingsCmd, execCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
