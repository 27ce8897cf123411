package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/silviosotelo/medical-ocr-service/internal/store"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show table counts and import history",
	Long:  "Displays row counts, embedding coverage and the most recent import runs.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, pool, err := connectStore(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		stats, err := st.CollectStats(ctx)
		if err != nil {
			return eris.Wrap(err, "status")
		}
		formatStats(os.Stdout, stats)

		entries, err := st.RecentLoads(ctx, statusLimit)
		if err != nil {
			return eris.Wrap(err, "status")
		}
		if len(entries) == 0 {
			zap.L().Info("no import runs recorded, run 'medicalsync load' first")
			return nil
		}
		formatLoadEntries(os.Stdout, entries)
		return nil
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "max import runs to show")
	rootCmd.AddCommand(statusCmd)
}

func formatStats(out io.Writer, stats *store.Stats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TABLE\tROWS\tEMBEDDED")
	_, _ = fmt.Fprintln(w, "-----\t----\t--------")
	_, _ = fmt.Fprintf(w, "prestadores\t%d\t%d\n", stats.Providers.Rows, stats.Providers.Embedded)
	_, _ = fmt.Fprintf(w, "nomencladores\t%d\t%d\n", stats.CatalogItems.Rows, stats.CatalogItems.Embedded)
	_, _ = fmt.Fprintf(w, "acuerdos_prestador\t%d\t-\n", stats.Agreements)
	_ = w.Flush()
	_, _ = fmt.Fprintln(out)
}

func formatLoadEntries(out io.Writer, entries []store.LoadEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ENTITY\tSTATUS\tSTARTED\tDURATION\tUPSERTED\tSKIPPED\tERROR")
	_, _ = fmt.Fprintln(w, "------\t------\t-------\t--------\t--------\t-------\t-----")

	for _, e := range entries {
		dur := "-"
		if e.FinishedAt != nil {
			dur = e.FinishedAt.Sub(e.StartedAt).Round(time.Second).String()
		}

		errMsg := e.Error
		if len(errMsg) > 60 {
			errMsg = errMsg[:57] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			e.Entity,
			e.Status,
			e.StartedAt.Format("2006-01-02 15:04"),
			dur,
			e.RowsUpserted,
			e.RowsSkipped,
			errMsg,
		)
	}
	_ = w.Flush()
}
