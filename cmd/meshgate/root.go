package main

import (
	"github.com/hupe1980/meshgate"
	"github.com/hupe1980/meshgate/config"
	"github.com/hupe1980/meshgate/logging"
	"github.com/spf13/cobra"
)

var version = "dev"

type rootFlags struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "meshgate",
		Short:         "Multi-agent personal assistant served over WhatsApp",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "meshgate.yaml", "Path to the YAML config file (optional)")
	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Log to stderr for one-shot commands")

	cmd.AddCommand(
		newServeCmd(flags),
		newAskCmd(flags),
		newAgentsCmd(flags),
	)

	return cmd
}

// loadMesh loads the config and builds a Mesh. One-shot commands skip the
// channel credential check and stay quiet unless verbose is set.
func loadMesh(flags *rootFlags, serving bool) (*meshgate.Mesh, error) {
	cfg, err := config.Load(flags.configPath, func(o *config.LoadOptions) {
		o.SkipChannel = !serving
	})
	if err != nil {
		return nil, err
	}

	return meshgate.New(cfg, func(o *meshgate.Options) {
		if serving {
			return
		}

		if flags.verbose {
			cfg.Logging.Output = "stderr"
			return
		}

		o.Logger = logging.NoOpLogger{}
		o.DisableTracing = true
	})
}
