package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/auditor"
	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/codec"
	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/governor"
	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/ledger"
	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/replay"
	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/state"
	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/telemetry"
)

var (
	runSuite     string
	runDB        string
	runReport    string
	runLedgerDir string
	runCodecAddr string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runSuite, "suite", "", "path to YAML scenario suite (required)")
	runCmd.Flags().StringVar(&runDB, "db", "", "archive sessions, ledgers and decisions to this SQLite file")
	runCmd.Flags().StringVar(&runReport, "report", "", "write session reports as JSON to this file")
	runCmd.Flags().StringVar(&runLedgerDir, "ledger", "", "write one ledger stream per scenario into this directory")
	runCmd.Flags().StringVar(&runCodecAddr, "codec-addr", "", "resolve payloads through the embedd server at this address")
	_ = runCmd.MarkFlagRequired("suite")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Replay a scenario suite through the governor",
	Long: `Replay every scenario of a YAML suite through a governor session and
check each decision against the suite's expectations.

Examples:
  # Replay in memory
  stp run --suite testdata/scenarios.yaml

  # Archive to SQLite and keep the ledgers
  stp run --suite scenarios.yaml --db stp.db --ledger ledgers/

  # Resolve payloads through a running embedd
  stp run --suite scenarios.yaml --codec-addr 127.0.0.1:7451`,
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	f, err := replay.LoadFixture(runSuite)
	if err != nil {
		return err
	}

	metrics, err := telemetry.NewMetrics(nil)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	env := replay.Env{Options: []governor.Option{
		governor.WithLogger(logger),
		governor.WithMetrics(metrics),
	}}

	var resolver auditor.Resolver = auditor.NewHashEmbedder()
	addr := runCodecAddr
	if addr == "" {
		addr = cfg.Codec.Addr
	}
	if addr != "" {
		client, err := codec.NewCodecClient(addr, codec.WithCallTimeout(cfg.Codec.Timeout))
		if err != nil {
			return err
		}
		defer client.Close()
		resolver = client
		env.Resolver = client
	}

	store, err := openStore(runDB)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
		env.Options = append(env.Options,
			governor.WithSinkFactory(store.Sink),
			governor.WithRecorder(store),
		)
	}

	reg := governor.NewRegistry(resolver, auditor.Cosine{}, cfg.Governor, cfg.Registry.Retention)
	reg.OnArchive(func(s *governor.Session) { archive(store, s) })
	env.Registry = reg

	results, runErr := replay.RunFixture(ctx, f, cfg.Governor, env)
	finish(reg)
	if runErr != nil {
		return runErr
	}

	if runReport != "" {
		if err := writeReports(runReport, results); err != nil {
			return err
		}
	}
	if runLedgerDir != "" {
		if err := writeLedgers(runLedgerDir, results); err != nil {
			return err
		}
	}

	printResults(results)
	sum := replay.Summarize(results)
	if sum.Passed != sum.Scenarios {
		return fmt.Errorf("%d of %d scenarios failed", sum.Scenarios-sum.Passed, sum.Scenarios)
	}
	return nil
}

// finish closes every tracked session and reaps them into the archive.
func finish(reg *governor.Registry) {
	ctx := context.Background()
	for _, id := range reg.IDs() {
		s, err := reg.Get(id)
		if err != nil {
			continue
		}
		if err := s.Close(ctx); err != nil {
			logger.Warn("close session", zap.String("session_id", id), zap.Error(err))
		}
	}
	reg.Reap(time.Now().Add(cfg.Registry.Retention))
}

func archive(store *state.Store, s *governor.Session) {
	if store == nil {
		return
	}
	if err := store.Archive(s); err != nil {
		logger.Warn("archive session", zap.String("session_id", s.ID()), zap.Error(err))
	}
}

func writeReports(path string, results []replay.ScenarioResult) error {
	reports := make(map[string]governor.Report, len(results))
	for _, r := range results {
		reports[r.Name] = r.Report
	}
	data, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal reports: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write reports: %w", err)
	}
	return nil
}

func writeLedgers(dir string, results []replay.ScenarioResult) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}
	for _, r := range results {
		path := filepath.Join(dir, r.Name+".ledger")
		out, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
		_, err = ledger.WriteStream(out, r.Records)
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	return nil
}

func printResults(results []replay.ScenarioResult) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCENARIO\tSTEPS\tSTATE\tSPENT\tLEDGER\tRESULT")
	for _, r := range results {
		verdict := "pass"
		switch {
		case len(r.Failures) > 0:
			verdict = "FAIL: " + r.Failures[0]
		case !r.Eval.Passed:
			verdict = "FAIL: " + r.Eval.Reason
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%.2f\t%d\t%s\n",
			r.Name, len(r.Steps), r.Snapshot.State, r.Report.Summary.BudgetSpent, len(r.Records), verdict)
	}
	w.Flush()

	sum := replay.Summarize(results)
	fmt.Printf("\n%d/%d scenarios passed; %d steps: %d transmit, %d nack, %d fin, %d error\n",
		sum.Passed, sum.Scenarios, sum.TotalSteps, sum.Transmits, sum.Nacks, sum.Fins, sum.Errors)
}
