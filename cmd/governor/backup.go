package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"aitrade-hq/governor/pkg/cli"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "List profile backups and roll back to one",
}

var backupFlags struct {
	profile string
	limit   int
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups, newest first",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		backups, err := a.rt.ListBackups(ctx, backupFlags.profile, backupFlags.limit)
		if err != nil {
			return err
		}
		tbl := &cli.Table{
			Title:  "Backups",
			Header: []any{"BACKUP", "PROFILE", "CREATED", "SIZE"},
			Footer: fmt.Sprintf("%d backups", len(backups)),
		}
		for _, b := range backups {
			tbl.Append(b.BackupFile, b.ProfileName, formatTime(b.CreatedAt), b.SizeBytes)
		}
		return a.print(backups, tbl)
	}),
}

var backupRollbackCmd = &cobra.Command{
	Use:   "rollback BACKUP_FILE --profile NAME",
	Short: "Restore a backup over a live profile",
	Long: `Restore a backup over a live profile. The current content is backed up
first, so a rollback can itself be rolled back.`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		res, err := a.rt.Rollback(ctx, args[0], backupFlags.profile, actor())
		if err != nil {
			return err
		}
		before := res.BeforeBackupFile
		if before == "" {
			before = "-"
		}
		return a.print(res, cli.KeyValues("Rolled back",
			"target_profile", res.TargetProfile,
			"source_backup_file", res.SourceBackupFile,
			"before_backup_file", before,
			"rolled_back_at", formatTime(res.RolledBackAt),
			"content_sha256", res.ContentSHA256,
		))
	}),
}

func init() {
	rootCmd.AddCommand(backupCmd)
	backupCmd.AddCommand(backupListCmd, backupRollbackCmd)

	backupListCmd.Flags().StringVarP(&backupFlags.profile, "profile", "p", "", "only backups of this profile")
	backupListCmd.Flags().IntVarP(&backupFlags.limit, "limit", "n", 0, "number of backups (default 200, max 2000)")

	backupRollbackCmd.Flags().StringVarP(&backupFlags.profile, "profile", "p", "", "profile to restore")
	_ = backupRollbackCmd.MarkFlagRequired("profile")
}
