package main

import (
	"os"

	"github.com/SanjoDeundiak/peer-runner/pkg/lib"
	"github.com/SanjoDeundiak/peer-runner/pkg/lib/config"
	"github.com/spf13/cobra"
)

type rootFlags struct {
	configPath string
	debug      bool
	peers      int
	version    string
}

func NewRootCmd() *cobra.Command {
	return newRootCmd(&rootFlags{})
}

func newRootCmd(flags *rootFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "peer-runner",
		Short: "Build, launch and supervise a local fleet of peers",
		Long: "peer-runner builds the peer program, starts peer0 as the anchor and peer1..peerN-1 next to it,\n" +
			"and prints their output in one colored console. Type commands on stdin while it runs, or use the\n" +
			"subcommands from another terminal.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flags.debug {
				lib.EnableDebugLog(os.Stderr)
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			return runSupervisor(cmd.Context(), cfg)
		},
	}

	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", config.DefaultConfigPath, "configuration file")
	root.PersistentFlags().BoolVar(&flags.debug, "debug", false, "write internal logs to stderr")
	root.Flags().IntVarP(&flags.peers, "peers", "n", 5, "number of peers to launch")
	root.Flags().StringVarP(&flags.version, "version-tag", "v", "1.0", "protocol version handed to every peer")

	root.AddCommand(newStateCmd(flags))
	root.AddCommand(newStartCmd(flags))
	root.AddCommand(newStopCmd(flags))
	root.AddCommand(newRestartCmd(flags))
	root.AddCommand(newLogsCmd(flags))

	return root
}

// loadConfig layers defaults, the config file, environment and finally explicitly set flags.
// The file is only required when --config was given.
func loadConfig(cmd *cobra.Command, flags *rootFlags) (config.Config, error) {
	cfg, err := config.Load(flags.configPath, cmd.Flags().Changed("config"))
	if err != nil {
		return cfg, err
	}
	if f := cmd.Flags().Lookup("peers"); f != nil && f.Changed {
		cfg.Peers = flags.peers
	}
	if f := cmd.Flags().Lookup("version-tag"); f != nil && f.Changed {
		cfg.Version = flags.version
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
