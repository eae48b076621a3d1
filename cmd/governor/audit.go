package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"aitrade-hq/governor/pkg/cli"
	"aitrade-hq/governor/pkg/governance/audit"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Read and verify the audit journal",
}

var auditLimit int

var auditTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Show the most recent audit events",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		events, err := a.rt.ReadAudit(ctx, auditLimit)
		if err != nil {
			return err
		}
		tbl := &cli.Table{
			Title:  "Audit events",
			Header: []any{"TIMESTAMP", "ACTOR", "ACTION", "RESULT", "DRAFT", "PROFILE", "BACKUP"},
			Footer: fmt.Sprintf("%d events", len(events)),
		}
		for _, e := range events {
			tbl.Append(formatTime(e.Timestamp), e.Actor, e.Action, e.Result, e.DraftID, e.ProfileName, e.BackupFile)
		}
		return a.print(events, tbl)
	}),
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the audit hash chain",
	Long:  `Walk the whole audit journal and check every event's hash and link to its predecessor. Exits non-zero when the chain is broken.`,
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		report, err := a.rt.VerifyAudit(ctx)
		if err != nil {
			return err
		}
		if err := a.print(report, verifyTable(report)); err != nil {
			return err
		}
		if !report.OK {
			return fmt.Errorf("audit chain broken at %s: %s", report.BrokenAt, report.Reason)
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditTailCmd, auditVerifyCmd)

	auditTailCmd.Flags().IntVarP(&auditLimit, "limit", "n", 0, "number of events (default 200, max 2000)")
}

func verifyTable(r *audit.VerifyReport) *cli.Table {
	return cli.KeyValues("Audit verification",
		"ok", r.OK,
		"events", r.Events,
		"skipped", r.Skipped,
		"broken_at", r.BrokenAt,
		"reason", r.Reason,
	)
}
