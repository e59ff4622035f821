// pyreticd is the policy runtime's CLI entrypoint.
//
// Noun-group pattern, following the teacher's cmd/newtron convention:
//
//	pyreticd run                 start the runtime with the configured mode/backend
//	pyreticd show topology       print a notice; switches are not listed
//	pyreticd show classifier     print the flow tables mirrored in the Redis backend
//
// The mode and backend come from the config file, not from flags.
//
// Examples:
//
//	pyreticd run --policy to-controller
//	pyreticd show classifier --switch 1
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jameskyle/pyretic/pkg/backend"
	"github.com/jameskyle/pyretic/pkg/backend/inmemory"
	"github.com/jameskyle/pyretic/pkg/backend/redisbackend"
	"github.com/jameskyle/pyretic/pkg/cli"
	"github.com/jameskyle/pyretic/pkg/config"
	"github.com/jameskyle/pyretic/pkg/extended"
	"github.com/jameskyle/pyretic/pkg/network"
	"github.com/jameskyle/pyretic/pkg/packet"
	"github.com/jameskyle/pyretic/pkg/policy"
	"github.com/jameskyle/pyretic/pkg/rlog"
	"github.com/jameskyle/pyretic/pkg/runtime"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "pyreticd",
		Short: "Policy runtime for an OpenFlow-style SDN controller",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to runtime.yaml (default: "+config.DefaultConfigPath()+")")

	root.AddCommand(runCmd())
	root.AddCommand(showCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Runtime, error) {
	if configPath == "" {
		return config.Load()
	}
	return config.LoadFrom(configPath)
}

func buildBackend(cfg *config.Runtime) (backend.Backend, func(), error) {
	switch cfg.Backend.Kind {
	case "redis":
		addr := cfg.Backend.Addr
		var closeTunnel func()
		if cfg.Backend.SSHHost != "" {
			tunnel, err := redisbackend.NewTunnel(cfg.Backend.SSHHost, cfg.Backend.SSHUser, cfg.Backend.SSHPass, cfg.Backend.SSHPort, addr)
			if err != nil {
				return nil, nil, fmt.Errorf("ssh tunnel: %w", err)
			}
			addr = tunnel.LocalAddr()
			closeTunnel = func() { tunnel.Close() }
		}
		be := redisbackend.New(addr)
		if err := be.Connect(); err != nil {
			if closeTunnel != nil {
				closeTunnel()
			}
			return nil, nil, fmt.Errorf("redis connect: %w", err)
		}
		cleanup := func() {
			be.Close()
			if closeTunnel != nil {
				closeTunnel()
			}
		}
		return be, cleanup, nil
	default:
		return inmemory.New(), func() {}, nil
	}
}

func runCmd() *cobra.Command {
	var policyKind string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the runtime",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			rlog.SetVerbosity(cfg.Verbosity)

			mode, err := runtime.ParseMode(cfg.Mode)
			if err != nil {
				return err
			}

			be, cleanup, err := buildBackend(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			var root policy.Policy
			switch policyKind {
			case "drop":
				root = policy.None()
			case "to-controller":
				root = policy.ToController()
			default:
				root = policy.Identity()
			}

			coord := runtime.New(runtime.Config{
				Mode:       mode,
				Policy:     root,
				Backend:    be,
				Translator: packet.NewTranslator(extended.NewCodec()),
			})
			defer coord.Stop()

			rlog.WithField("mode", mode.String()).Info("runtime started")

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()
			rlog.Logger.Info("shutting down")
			return nil
		},
	}
	cmd.Flags().StringVar(&policyKind, "policy", "identity", "built-in policy to run: identity, drop, to-controller")
	return cmd
}

func showCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Inspect runtime state",
	}
	cmd.AddCommand(showTopologyCmd())
	cmd.AddCommand(showClassifierCmd())
	return cmd
}

func showTopologyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "topology",
		Short: "Check the redis backend is reachable and print a notice; switches are not listed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Backend.Kind != "redis" {
				fmt.Println("no persisted topology: backend.kind is not redis, nothing to inspect from a separate process")
				return nil
			}
			_, cleanup, err := buildBackend(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			fmt.Println("topology introspection requires the runtime's live process; use pyreticd show classifier to inspect installed flow state instead")
			return nil
		},
	}
}

func showClassifierCmd() *cobra.Command {
	var switchID uint64
	cmd := &cobra.Command{
		Use:   "classifier",
		Short: "Print the flow table mirrored in the Redis backend for a switch",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Backend.Kind != "redis" {
				return fmt.Errorf("show classifier requires backend.kind: redis in the runtime config")
			}
			be, cleanup, err := buildBackend(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			rb, ok := be.(*redisbackend.Backend)
			if !ok {
				return fmt.Errorf("internal error: redis backend kind did not produce *redisbackend.Backend")
			}

			flows, err := rb.Flows(network.SwitchID(switchID))
			if err != nil {
				return err
			}
			sort.Slice(flows, func(i, j int) bool { return flows[i].Priority > flows[j].Priority })

			table := cli.NewTable("PRIORITY", "MATCH", "ACTIONS")
			for _, f := range flows {
				table.Row(fmt.Sprintf("%d", f.Priority), fmt.Sprintf("%v", f.Match), fmt.Sprintf("%v", f.Actions))
			}
			table.Flush()
			return nil
		},
	}
	cmd.Flags().Uint64Var(&switchID, "switch", 1, "switch ID to inspect")
	return cmd
}
