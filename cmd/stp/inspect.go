package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/state"
)

var (
	inspectDB      string
	inspectSession string
	inspectLimit   int
	inspectJSON    bool
)

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().StringVar(&inspectDB, "db", "", "SQLite archive (defaults to store.path)")
	inspectCmd.Flags().StringVar(&inspectSession, "session", "", "show one session's ledger and decisions")
	inspectCmd.Flags().IntVar(&inspectLimit, "limit", 20, "maximum number of sessions to list")
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "output as JSON instead of tables")
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Inspect archived sessions",
	Long: `List archived sessions, or show one session's snapshot, ledger records
and decision log.

Examples:
  stp inspect --db stp.db
  stp inspect --db stp.db --session 6f1c...`,
	RunE: runInspect,
}

func runInspect(cmd *cobra.Command, args []string) error {
	store, err := openStore(inspectDB)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("inspect needs --db or store.path")
	}
	defer store.Close()

	if inspectSession != "" {
		return showSession(store, inspectSession)
	}
	return listSessions(store)
}

func listSessions(store *state.Store) error {
	sessions, err := store.ListSessions(inspectLimit)
	if err != nil {
		return err
	}
	if inspectJSON {
		return printJSON(sessions)
	}
	if len(sessions) == 0 {
		fmt.Println("no sessions archived")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tSTATE\tFIN\tRECORDS\tDECISIONS\tSPENT\tREMAINING\tUPDATED")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%.2f\t%.2f\t%s\n",
			s.SessionID, s.State, dash(s.FinReason), s.Records, s.Decisions,
			s.Spent, s.Remaining, s.UpdatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func showSession(store *state.Store, id string) error {
	snap, err := store.GetSession(id)
	if err != nil {
		return err
	}
	records, err := store.LoadRecords(id)
	if err != nil {
		return err
	}
	decisions, err := store.LoadDecisions(id)
	if err != nil {
		return err
	}
	if inspectJSON {
		kinds := make([]string, len(records))
		for i, r := range records {
			kinds[i] = string(r.Kind)
		}
		return printJSON(map[string]any{
			"session":   snap,
			"ledger":    kinds,
			"decisions": decisions,
		})
	}

	fmt.Printf("session    %s\n", snap.ID)
	fmt.Printf("state      %s %s\n", snap.State, snap.FinReason)
	fmt.Printf("thresholds t1=%.4f t2=%.4f\n", snap.T1, snap.T2)
	fmt.Printf("budget     cap=%.2f spent=%.2f remaining=%.2f\n", snap.LiabilityCap, snap.Spent, snap.Remaining)
	fmt.Printf("ledger     %d records, head %s\n\n", snap.LedgerLen, short(snap.Head))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "POS\tKIND\tAT\tDIGEST")
	for _, r := range records {
		at := "-"
		if ts, err := r.At(); err == nil {
			at = ts.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", r.Position, r.Kind, at, short(r.Digest))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Println()
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SEQ\tACTION\tZONE\tDEVIATION\tCHARGED\tREASON")
	for _, d := range decisions {
		dev := "-"
		if d.Deviation != nil {
			dev = fmt.Sprintf("%.4f", *d.Deviation)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%.2f\t%s\n",
			d.Sequence, d.Action, dash(d.Zone), dev, d.Charged, dash(d.Reason))
	}
	return w.Flush()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func short(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}
