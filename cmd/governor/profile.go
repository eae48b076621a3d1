package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"aitrade-hq/governor/pkg/cli"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Inspect live profiles",
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List live profiles",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		infos, err := a.rt.ListProfiles(ctx)
		if err != nil {
			return err
		}
		tbl := &cli.Table{
			Title:  "Profiles",
			Header: []any{"PROFILE", "SIZE", "MODIFIED"},
			Footer: fmt.Sprintf("%d profiles", len(infos)),
		}
		for _, p := range infos {
			tbl.Append(p.Name, p.SizeBytes, formatTime(p.ModifiedAt))
		}
		return a.print(infos, tbl)
	}),
}

var profileShowCmd = &cobra.Command{
	Use:   "show NAME",
	Short: "Print a live profile",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		pc, err := a.rt.ReadProfile(ctx, args[0])
		if err != nil {
			return err
		}
		if a.format == cli.FormatJSON {
			return cli.WriteJSON(a.out, pc)
		}
		_, err = fmt.Fprint(a.out, pc.Content)
		return err
	}),
}

var lastPublishCmd = &cobra.Command{
	Use:   "last-publish",
	Short: "Show the most recent publish",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		res, err := a.rt.LastPublish(ctx)
		if err != nil {
			return err
		}
		return a.print(res, publishTable("Last publish", res))
	}),
}

func init() {
	rootCmd.AddCommand(profileCmd, lastPublishCmd)
	profileCmd.AddCommand(profileListCmd, profileShowCmd)
}
