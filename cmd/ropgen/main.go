// Command ropgen is the command-line surface over the chaining engine:
// running a build from flags or a YAML config, and scanning/listing a
// gadget database pulled out of a raw binary.
//
// Grounded on sliver's client/command cobra tree: one *Cmd(...)
// *cobra.Command constructor per subcommand, registered onto a root
// command in main.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/subfortress/ropforge/internal/logs"
)

func main() {
	root := &cobra.Command{
		Use:   "ropgen",
		Short: "Synthesize ROP chains from a scanned gadget database",
	}
	root.PersistentFlags().Bool("debug", false, "enable debug logging")
	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if debug, _ := cmd.Flags().GetBool("debug"); debug {
			logs.SetLevel(logrus.DebugLevel)
		}
	}

	root.AddCommand(BuildCmd())
	root.AddCommand(GadgetsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error: %s", err))
		os.Exit(1)
	}
}
