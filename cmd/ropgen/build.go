package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/subfortress/ropforge/internal/config"
	"github.com/subfortress/ropforge/internal/engine"
	"github.com/subfortress/ropforge/internal/gadget"
	"github.com/subfortress/ropforge/internal/gadgetdb"
	"github.com/subfortress/ropforge/internal/trace"
)

// BuildCmd - synthesize a chain for one register-assignment query
func BuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build <binary> <dest-reg> <value>",
		Short: "Find a ROP chain that assigns value to dest-reg",
		Args:  cobra.ExactArgs(3),
		Run:   buildRun,
	}
	cmd.Flags().String("config", "", "path to a build config YAML file")
	cmd.Flags().Bool("shortest", false, "binary-search for the shortest chain")
	cmd.Flags().Bool("trace", false, "render the binary-search trial tree")
	return cmd
}

func buildRun(cmd *cobra.Command, args []string) {
	binPath, destName, valStr := args[0], args[1], args[2]

	cfgPath, _ := cmd.Flags().GetString("config")
	var cfg *config.BuildConfig
	if cfgPath != "" {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, color.RedString("%s", err))
			os.Exit(1)
		}
		cfg = loaded
	} else {
		cfg = config.DefaultBuildConfig()
	}

	shortest, _ := cmd.Flags().GetBool("shortest")
	cfg.Shortest = cfg.Shortest || shortest

	a, err := cfg.ResolveArch()
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("%s", err))
		os.Exit(1)
	}

	code, err := os.ReadFile(binPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("read %s: %s", binPath, err))
		os.Exit(1)
	}
	db, err := gadgetdb.Scan(code, 0, a)
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("scan %s: %s", binPath, err))
		os.Exit(1)
	}

	destReg, ok := config.RegisterByName(a, destName)
	if !ok {
		fmt.Fprintln(os.Stderr, color.RedString("unknown register %q for %s", destName, a.Name))
		os.Exit(1)
	}
	val, err := strconv.ParseInt(strings.TrimPrefix(strings.ToLower(valStr), "0x"), hexBaseFor(valStr), 64)
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("invalid value %q: %s", valStr, err))
		os.Exit(1)
	}

	keepRegs, err := cfg.ResolveKeepRegs(a)
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("%s", err))
		os.Exit(1)
	}
	badBytes, err := cfg.ResolveBadBytes()
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("%s", err))
		os.Exit(1)
	}

	withTrace, _ := cmd.Flags().GetBool("trace")
	var sink trace.ProgressSink = trace.Discard{}
	var trail *trace.Trail
	if withTrace {
		trail = trace.NewTrail(fmt.Sprintf("%s := 0x%x", destName, val))
		sink = trail
	}

	eng := engine.New(a, db)
	result := eng.Search(gadget.Reg(destReg), gadget.Cst(val), engine.Params{
		KeepRegs: keepRegs,
		BadBytes: badBytes,
		Lmax:     cfg.Lmax,
		MaxDepth: cfg.MaxDepth,
		Shortest: cfg.Shortest,
		Sink:     sink,
	})

	if trail != nil {
		fmt.Println(trail.Render())
	}

	if !result.Found {
		fmt.Println(color.RedString("no chain found (last failure: %s)", result.LastFail))
		os.Exit(1)
	}

	printChain(db, result.Chain)
}

func hexBaseFor(s string) int {
	if strings.HasPrefix(strings.ToLower(s), "0x") {
		return 16
	}
	return 10
}
