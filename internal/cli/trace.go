package cli

import (
	"fmt"

	"github.com/cdfmlr/sham"
	"github.com/cdfmlr/sham/internal/trace"
	"github.com/spf13/cobra"
)

func newTraceCmd() *cobra.Command {
	var (
		boot    string
		tid     int
		kind    string
		limit   int
		summary bool
	)

	cmd := &cobra.Command{
		Use:   "trace <events.db>",
		Short: "Print scheduling events recorded by 'run --trace-db'",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := trace.Open(args[0])
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := contextOf(cmd)
			if err := store.Migrate(ctx); err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if boot == "" {
				boots, err := store.Boots(ctx)
				if err != nil {
					return err
				}
				if len(boots) == 0 {
					fmt.Fprintln(out, "No events recorded.")
					return nil
				}
				// 默认看最近一次启动
				boot = boots[len(boots)-1]
			}

			if summary {
				sums, err := store.Summarize(ctx, boot)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "boot %s\n", boot)
				fmt.Fprintf(out, "%-5s  %-16s  %-10s  %-6s  %s\n", "TID", "NAME", "DISPATCHES", "BLOCKS", "DONATIONS")
				for _, s := range sums {
					fmt.Fprintf(out, "%-5d  %-16s  %-10d  %-6d  %d\n", s.Tid, s.Name, s.Dispatches, s.Blocks, s.Donations)
				}
				return nil
			}

			events, err := store.Query(ctx, trace.Filter{
				Boot:  boot,
				Kind:  sham.EventKind(kind),
				Tid:   sham.Tid(tid),
				Limit: limit,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%-6s  %-9s  %-5s  %-16s  %-8s  %s\n", "TICK", "EVENT", "TID", "NAME", "PRIORITY", "OTHER")
			for _, e := range events {
				other := ""
				if e.Other != 0 {
					other = fmt.Sprint(e.Other)
				}
				fmt.Fprintf(out, "%-6d  %-9s  %-5d  %-16s  %-8d  %s\n", e.Tick, e.Kind, e.Tid, e.Name, e.Priority, other)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&boot, "boot", "", "Boot ID to show (default: the latest)")
	cmd.Flags().IntVar(&tid, "tid", 0, "Only events of this thread")
	cmd.Flags().StringVar(&kind, "kind", "", "Only events of this kind (dispatch, block, wake, donate, ...)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of events")
	cmd.Flags().BoolVar(&summary, "summary", false, "Per-thread counts instead of raw events")
	return cmd
}
