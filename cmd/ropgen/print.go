package main

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/subfortress/ropforge/internal/gadget"
	"github.com/subfortress/ropforge/internal/ropchain"
)

// printChain renders a found chain as a stack-order table, resolving
// each gadget ID back to its address and disassembly through db.
func printChain(db gadget.Database, chain *ropchain.ROPChain) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"#", "kind", "value", "detail"})

	for i, e := range chain.Entries() {
		switch e.Kind {
		case ropchain.EntryGadget:
			g, err := db.Get(e.Gadget)
			if err != nil {
				t.AppendRow(table.Row{i, "gadget", "?", err})
				continue
			}
			t.AppendRow(table.Row{i, "gadget", fmt.Sprintf("0x%x", g.Address), g.AsmStr})
		case ropchain.EntryPadding:
			t.AppendRow(table.Row{i, "padding", fmt.Sprintf("0x%x", e.Value), e.Comment})
		}
	}

	t.Render()
	fmt.Printf("%d entries\n", chain.Len())
}
