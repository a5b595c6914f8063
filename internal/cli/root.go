// Package cli 是 sham 命令行
package cli

import (
	"github.com/cdfmlr/sham"
	"github.com/spf13/cobra"
)

var (
	flagDebug    bool
	flagLogLevel string
)

// NewRootCmd 构建 sham 命令行的根命令
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "sham",
		Short: "sham: a simulated single-CPU kernel scheduler",
		Long: "sham runs scripted kernel threads on a simulated CPU with a priority " +
			"scheduler (with priority donation) or a 4.4BSD-style MLFQS.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if flagDebug {
				flagLogLevel = "debug"
			}
			return sham.SetLogLevel(flagLogLevel)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")

	root.AddCommand(
		newRunCmd(),
		newSelfTestCmd(),
		newTraceCmd(),
	)

	return root
}
