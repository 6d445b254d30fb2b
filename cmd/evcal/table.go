package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"evcal/internal/model"
)

// writeTable prints one row per event in pass order.
func writeTable(w io.Writer, events []model.ResolvedEvent) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SORT KEY\tRULE\tTITLE\tSTART\tEND")
	for _, ev := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", ev.SortKey, ev.RuleKind, ev.Record.Title, ev.DisplayStart, ev.EndDisplay)
	}
	return tw.Flush()
}
