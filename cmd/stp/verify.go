package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/ledger"
)

var (
	verifyLedger  string
	verifyDB      string
	verifySession string
)

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().StringVar(&verifyLedger, "ledger", "", "ledger stream file to verify")
	verifyCmd.Flags().StringVar(&verifyDB, "db", "", "SQLite archive holding the session")
	verifyCmd.Flags().StringVar(&verifySession, "session", "", "session id to verify from the archive")
	verifyCmd.MarkFlagsMutuallyExclusive("ledger", "session")
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a hash-chained ledger",
	Long: `Recompute every digest of a ledger and report the first corrupt position.
Exits with status 1 when the chain does not verify.

Examples:
  # Verify a stream written by 'stp run --ledger'
  stp verify --ledger ledgers/yellow-micro-bridge.ledger

  # Verify an archived session
  stp verify --db stp.db --session 6f1c...`,
	RunE: runVerify,
}

var errCorrupt = errors.New("ledger corrupt")

func runVerify(cmd *cobra.Command, args []string) error {
	var verdict ledger.Verdict
	switch {
	case verifyLedger != "":
		f, err := os.Open(verifyLedger)
		if err != nil {
			return fmt.Errorf("open ledger: %w", err)
		}
		defer f.Close()
		verdict = ledger.VerifyStream(f)
	case verifySession != "":
		v, err := verifyStored(verifySession)
		if err != nil {
			return err
		}
		verdict = v
	default:
		return errors.New("one of --ledger or --session is required")
	}

	fmt.Println(verdict)
	if !verdict.Valid {
		return errCorrupt
	}
	return nil
}

// verifyStored checks the archived chain and that its tip matches the
// session's recorded head.
func verifyStored(id string) (ledger.Verdict, error) {
	store, err := openStore(verifyDB)
	if err != nil {
		return ledger.Verdict{}, err
	}
	if store == nil {
		return ledger.Verdict{}, errors.New("--session needs --db or store.path")
	}
	defer store.Close()

	records, err := store.LoadRecords(id)
	if err != nil {
		return ledger.Verdict{}, err
	}
	if len(records) == 0 {
		return ledger.Verdict{}, fmt.Errorf("session %s has no ledger records", id)
	}
	verdict := ledger.VerifyChain(records)
	if !verdict.Valid {
		return verdict, nil
	}

	snap, err := store.GetSession(id)
	if err != nil {
		return ledger.Verdict{}, err
	}
	last := records[len(records)-1]
	if snap.Head != "" && snap.Head != last.Digest {
		return ledger.Verdict{Valid: false, CorruptAt: last.Position, Reason: "head does not match archived session"}, nil
	}
	return verdict, nil
}
