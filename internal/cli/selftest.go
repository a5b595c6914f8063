package cli

import (
	"fmt"

	"github.com/cdfmlr/sham"
	"github.com/cdfmlr/sham/synch"
	"github.com/spf13/cobra"
)

func newSelfTestCmd() *cobra.Command {
	var mlfqs bool
	cmd := &cobra.Command{
		Use:   "selftest",
		Short: "Run the semaphore ping-pong self test",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := sham.DefaultConfig()
			cfg.MLFQS = mlfqs
			shamOS := sham.NewOS(cfg)
			shamOS.Boot()
			defer shamOS.Shutdown()

			fmt.Fprint(cmd.OutOrStdout(), "Testing semaphores...")
			if err := synch.SelfTest(shamOS); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "done.")
			shamOS.PrintStats(cmd.OutOrStdout())
			return nil
		},
	}
	cmd.Flags().BoolVar(&mlfqs, "mlfqs", false, "Use the multi-level feedback queue scheduler")
	return cmd
}
