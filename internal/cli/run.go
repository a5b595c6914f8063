package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/cdfmlr/sham"
	"github.com/cdfmlr/sham/internal/monitor"
	"github.com/cdfmlr/sham/internal/trace"
	"github.com/cdfmlr/sham/internal/workload"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var (
		configPath string
		mlfqs      bool
		traceDB    string
		serveAddr  string
		jsonOut    bool
	)

	cmd := &cobra.Command{
		Use:   "run <workload.yaml>",
		Short: "Run a scripted workload on a fresh kernel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := sham.DefaultConfig()
			if configPath != "" {
				var err error
				if cfg, err = sham.LoadConfig(configPath); err != nil {
					return err
				}
				if !cmd.Flags().Changed("log-level") && !flagDebug {
					if err := sham.SetLogLevel(cfg.LogLevel); err != nil {
						return err
					}
				}
			}

			wl, err := workload.Load(args[0])
			if err != nil {
				return err
			}
			cfg.MLFQS = cfg.MLFQS || mlfqs || wl.MLFQS

			shamOS := sham.NewOS(cfg)
			shamOS.SetConsole(sham.NewConsole(cmd.ErrOrStderr()))

			if traceDB != "" {
				store, err := trace.Open(traceDB)
				if err != nil {
					return err
				}
				defer store.Close()
				if err := store.Migrate(contextOf(cmd)); err != nil {
					return err
				}
				rec := trace.NewRecorder(store)
				defer rec.Close()
				shamOS.SetTracer(rec)
			}

			if serveAddr != "" {
				ctx, cancel := context.WithCancel(contextOf(cmd))
				defer cancel()
				srv := monitor.New(shamOS)
				go func() {
					if err := srv.ListenAndServe(ctx, serveAddr); err != nil {
						log.WithError(err).Error("[Monitor] stopped")
					}
				}()
			}

			rep, err := runOnKernel(shamOS, wl)
			if err != nil {
				return err
			}
			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rep)
			}
			printReport(cmd.OutOrStdout(), rep)
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Kernel config file (YAML)")
	cmd.Flags().BoolVar(&mlfqs, "mlfqs", false, "Use the multi-level feedback queue scheduler")
	cmd.Flags().StringVar(&traceDB, "trace-db", "", "Record scheduling events to this SQLite database")
	cmd.Flags().StringVar(&serveAddr, "serve", "", "Serve the monitor API on this address while running (e.g. :8080)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the report as JSON")
	return cmd
}

// runOnKernel 在当前 goroutine 上启动内核并跑脚本。内核 panic 会变成错误返回。
func runOnKernel(shamOS *sham.OS, wl *workload.Workload) (rep *workload.Report, err error) {
	shamOS.Boot()
	defer shamOS.Shutdown()
	defer func() {
		if r := recover(); r != nil {
			p, ok := r.(*sham.KernelPanic)
			if !ok {
				panic(r)
			}
			err = p
		}
	}()
	return workload.Run(shamOS, wl)
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func printReport(w io.Writer, rep *workload.Report) {
	fmt.Fprintf(w, "workload %s (%s) finished in %d ticks, load_avg %d.%02d\n",
		rep.Workload, rep.Policy, rep.Ticks, rep.LoadAvg/100, rep.LoadAvg%100)
	fmt.Fprintf(w, "completion order: %v\n\n", rep.Order)

	fmt.Fprintf(w, "%-5s  %-16s  %-8s  %-8s  %-5s  %-10s  %-6s  %s\n",
		"TID", "NAME", "PRIORITY", "BASE", "NICE", "RECENT_CPU", "START", "FINISH")
	for _, t := range rep.Threads {
		fmt.Fprintf(w, "%-5d  %-16s  %-8d  %-8d  %-5d  %-10d  %-6d  %d\n",
			t.Tid, t.Name, t.Priority, t.BasePriority, t.Nice, t.RecentCPU, t.StartTick, t.FinishTick)
	}

	fmt.Fprintf(w, "\nThread: %d idle ticks, %d kernel ticks, %d switches\n",
		rep.Stats.IdleTicks, rep.Stats.KernelTicks, rep.Stats.Switches)
}
