// Command hypermetfit is a demonstration CLI: it builds a synthetic
// gamma-ray spectrum window, fits it with the hypermet/region/optimize
// stack, and reports the recovered peak parameters.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/bcdannyboy/hypermet/fitconfig"
)

var log = logrus.New()

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.WithError(err).Error("hypermetfit failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var envPath string
	var verbose bool

	root := &cobra.Command{
		Use:   "hypermetfit",
		Short: "Fit a synthetic gamma-ray spectrum window with the Hypermet peak model",
		RunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				log.SetLevel(logrus.DebugLevel)
			}
			if err := fitconfig.LoadEnvironment(envPath); err != nil {
				return fmt.Errorf("loading environment: %w", err)
			}

			cfg := fitconfig.Default()
			if configPath != "" {
				loaded, err := fitconfig.Load(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}

			return runDemo(cfg)
		},
	}

	root.Flags().StringVar(&configPath, "config", "", "path to an optimizer config YAML file (optional)")
	root.Flags().StringVar(&envPath, "env", ".env", "path to a .env file to load (ignored if missing)")
	root.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	return root
}
