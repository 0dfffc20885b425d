package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/subfortress/ropforge/internal/config"
	"github.com/subfortress/ropforge/internal/gadgetdb"
)

// GadgetsCmd - scan a binary for gadgets and inspect the results
func GadgetsCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gadgets",
		Short: "Scan and inspect a gadget database",
	}
	root.PersistentFlags().String("arch", "amd64", "target architecture (amd64, i386)")

	scan := &cobra.Command{
		Use:   "scan <binary>",
		Short: "Scan a flat binary and report how many gadgets were found",
		Args:  cobra.ExactArgs(1),
		Run:   gadgetsScanRun,
	}

	list := &cobra.Command{
		Use:   "list <binary>",
		Short: "Scan a flat binary and print every gadget found",
		Args:  cobra.ExactArgs(1),
		Run:   gadgetsListRun,
	}
	list.Flags().Int("limit", 200, "maximum number of gadgets to print (0 = no limit)")

	root.AddCommand(scan, list)
	return root
}

func loadDB(cmd *cobra.Command, binPath string) (*gadgetdb.DB, []byte) {
	archName, _ := cmd.Flags().GetString("arch")
	cfg := &config.BuildConfig{Arch: archName}
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
	return db, code
}

func gadgetsScanRun(cmd *cobra.Command, args []string) {
	db, code := loadDB(cmd, args[0])
	fmt.Printf("scanned %s (%s): %d unique gadgets indexed\n",
		args[0], humanize.Bytes(uint64(len(code))), db.Count())
}

func gadgetsListRun(cmd *cobra.Command, args []string) {
	db, _ := loadDB(cmd, args[0])
	limit, _ := cmd.Flags().GetInt("limit")

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"id", "address", "sp_inc", "ret", "asm"})

	n := 0
	for _, g := range db.All() {
		if limit > 0 && n >= limit {
			break
		}
		t.AppendRow(table.Row{g.ID, fmt.Sprintf("0x%x", g.Address), g.SpInc, g.RetType, g.AsmStr})
		n++
	}
	t.Render()
	if limit > 0 && n == limit && db.Count() > limit {
		fmt.Printf("(%d more not shown, pass --limit 0 for all)\n", db.Count()-limit)
	}
}
