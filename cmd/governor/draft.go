package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"aitrade-hq/governor/pkg/cli"
	"aitrade-hq/governor/pkg/governance"
	"aitrade-hq/governor/pkg/governance/draft"
)

var draftCmd = &cobra.Command{
	Use:   "draft",
	Short: "Create, review, approve and publish profile drafts",
}

var draftFlags struct {
	limit       int
	profile     string
	file        string
	note        string
	showContent bool
	digest      string
	confirm     string
}

var draftListCmd = &cobra.Command{
	Use:   "list",
	Short: "List drafts, newest first",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		drafts, err := a.rt.ListDrafts(ctx, draftFlags.limit)
		if err != nil {
			return err
		}
		tbl := &cli.Table{
			Title:  "Drafts",
			Header: []any{"DRAFT", "PROFILE", "CREATED", "ACTOR", "VALID"},
			Footer: fmt.Sprintf("%d drafts", len(drafts)),
		}
		for _, d := range drafts {
			tbl.Append(d.DraftID, d.ProfileName, formatTime(d.CreatedAt), d.Actor, d.ValidationOK)
		}
		return a.print(drafts, tbl)
	}),
}

var draftCreateCmd = &cobra.Command{
	Use:     "create --profile NAME --file PATH",
	Short:   "Create a draft from a profile file",
	Example: `  governor draft create --profile spot.yaml --file ./spot.yaml --note "raise limits"
  cat spot.yaml | governor draft create --profile spot.yaml --file -`,
	Args: cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		content, err := readContent(draftFlags.file)
		if err != nil {
			return err
		}
		d, err := a.rt.CreateDraft(ctx, draftFlags.profile, content, actor(), draftFlags.note)
		if err != nil {
			return err
		}
		return a.print(d, draftTable(d, false))
	}),
}

var draftShowCmd = &cobra.Command{
	Use:   "show DRAFT_ID",
	Short: "Show a draft",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		d, err := a.rt.ReadDraft(ctx, args[0])
		if err != nil {
			return err
		}
		return a.print(d, draftTable(d, draftFlags.showContent))
	}),
}

var draftValidateCmd = &cobra.Command{
	Use:   "validate DRAFT_ID",
	Short: "Re-run validation on a draft",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		d, err := a.rt.ValidateDraft(ctx, args[0], actor())
		if err != nil {
			return err
		}
		return a.print(d, draftTable(d, false))
	}),
}

var draftPreviewCmd = &cobra.Command{
	Use:   "preview DRAFT_ID",
	Short: "Diff a draft against the live profile and evaluate the publish guard",
	Long: `Diff a draft against the live profile, score the risk and evaluate the
publish guard. The preview digest and confirmation phrase it prints must be
passed to publish unchanged.`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		p, err := a.rt.PreviewDraft(ctx, args[0])
		if err != nil {
			return err
		}
		if a.format == cli.FormatJSON {
			return cli.WriteJSON(a.out, p)
		}
		return renderPreview(a.out, p)
	}),
}

var draftApproveCmd = &cobra.Command{
	Use:   "approve DRAFT_ID",
	Short: "Approve a draft",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		sum, err := a.rt.ApproveDraft(ctx, args[0], actor(), draftFlags.note)
		if err != nil {
			return err
		}
		return a.print(sum, cli.KeyValues("Approval",
			"draft_id", sum.DraftID,
			"approvals", fmt.Sprintf("%d/%d", sum.CurrentApprovalCount, sum.RequiredApprovalCount),
			"approval_satisfied", sum.ApprovalSatisfied,
			"cooldown_remaining_seconds", sum.CooldownRemainingSeconds,
		))
	}),
}

var draftPublishCmd = &cobra.Command{
	Use:     "publish DRAFT_ID --digest DIGEST --confirm PHRASE",
	Short:   "Publish a draft to its live profile",
	Example: `  governor draft publish 20260301T120000Z_abcdef01 --digest 3f1c... --confirm "PUBLISH 20260301T120000Z_abcdef01"`,
	Args:    cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		res, err := a.rt.PublishDraft(ctx, args[0], actor(), draftFlags.digest, draftFlags.confirm)
		if err != nil {
			return err
		}
		return a.print(res, publishTable("Published", res))
	}),
}

func init() {
	rootCmd.AddCommand(draftCmd)
	draftCmd.AddCommand(draftListCmd, draftCreateCmd, draftShowCmd, draftValidateCmd,
		draftPreviewCmd, draftApproveCmd, draftPublishCmd)

	draftListCmd.Flags().IntVarP(&draftFlags.limit, "limit", "n", 0, "number of drafts (default 100, max 1000)")

	draftCreateCmd.Flags().StringVarP(&draftFlags.profile, "profile", "p", "", "target profile name")
	draftCreateCmd.Flags().StringVarP(&draftFlags.file, "file", "f", "", "file holding the proposed content (- for stdin)")
	draftCreateCmd.Flags().StringVar(&draftFlags.note, "note", "", "free-form note")
	_ = draftCreateCmd.MarkFlagRequired("profile")
	_ = draftCreateCmd.MarkFlagRequired("file")

	draftShowCmd.Flags().BoolVar(&draftFlags.showContent, "content", false, "include the proposed content")

	draftApproveCmd.Flags().StringVar(&draftFlags.note, "note", "", "free-form note")

	draftPublishCmd.Flags().StringVar(&draftFlags.digest, "digest", "", "preview digest from the latest preview")
	draftPublishCmd.Flags().StringVar(&draftFlags.confirm, "confirm", "", `confirmation phrase ("PUBLISH <draft_id>")`)
	_ = draftPublishCmd.MarkFlagRequired("digest")
	_ = draftPublishCmd.MarkFlagRequired("confirm")
}

func readContent(path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read draft content: %w", err)
	}
	return string(data), nil
}

func draftTable(d *draft.Draft, withContent bool) *cli.Table {
	tbl := cli.KeyValues("Draft",
		"draft_id", d.DraftID,
		"profile_name", d.ProfileName,
		"actor", d.Actor,
		"created_at", formatTime(d.CreatedAt),
		"content_sha256", d.ContentSHA256,
		"note", d.Note,
		"validation_ok", d.Validation.OK,
	)
	if missing := d.Validation.Checks.MissingSections; len(missing) > 0 {
		tbl.Append("missing_sections", strings.Join(missing, ", "))
	}
	if d.Validation.Checks.ConflictDemoAndTestnet {
		tbl.Append("conflict", "demo_trading and testnet both enabled")
	}
	for _, w := range d.Validation.Warnings {
		tbl.Append("warning", w)
	}
	for _, ap := range d.Approvals {
		tbl.Append("approval", fmt.Sprintf("%s at %s", ap.Actor, formatTime(ap.ApprovedAt)))
	}
	if withContent {
		tbl.Append("content", d.Content)
	}
	return tbl
}

func publishTable(title string, res *governance.PublishResult) *cli.Table {
	backup := "-"
	if res.BackupFile != nil {
		backup = *res.BackupFile
	}
	return cli.KeyValues(title,
		"draft_id", res.DraftID,
		"profile_name", res.ProfileName,
		"published_at", formatTime(res.PublishedAt),
		"published_by", res.PublishedBy,
		"backup_file", backup,
		"content_sha256", res.ContentSHA256,
		"risk_level", res.RiskLevel,
	)
}

// renderPreview prints the diff, the risk flags and the guard.
func renderPreview(w io.Writer, p *governance.Preview) error {
	diffTbl := &cli.Table{
		Title:  "Diff " + p.ProfileName,
		Header: []any{"CHANGE", "KEY", "BEFORE", "AFTER"},
	}
	for _, c := range p.Diff.Changed {
		diffTbl.Append("~", c.Key, scalar(c.Before), scalar(c.After))
	}
	for _, c := range p.Diff.Added {
		diffTbl.Append("+", c.Key, "", scalar(c.After))
	}
	for _, c := range p.Diff.Removed {
		diffTbl.Append("-", c.Key, scalar(c.Before), "")
	}
	if err := diffTbl.Render(w); err != nil {
		return err
	}

	if len(p.RiskFlags) > 0 {
		riskTbl := &cli.Table{
			Title:  "Risk flags",
			Header: []any{"SEVERITY", "KEY", "REASON", "BEFORE", "AFTER"},
		}
		for _, f := range p.RiskFlags {
			riskTbl.Append(f.Severity, f.Key, f.Reason, scalar(f.Before), scalar(f.After))
		}
		if err := riskTbl.Render(w); err != nil {
			return err
		}
	}

	g := p.PublishGuard
	guardTbl := cli.KeyValues("Publish guard",
		"risk_level", p.RiskLevel,
		"high_risk_enforced", g.HighRiskEnforced,
		"approvals", fmt.Sprintf("%d/%d", g.CurrentApprovalCount, g.RequiredApprovalCount),
		"approval_satisfied", g.ApprovalSatisfied,
		"cooldown_remaining_seconds", g.CooldownRemainingSeconds,
		"preview_digest", g.PreviewDigest,
		"confirm_phrase", g.ConfirmPhrase,
	)
	if p.FreezeWindow != nil {
		guardTbl.Append("freeze_window", fmt.Sprintf("%s until %s", p.FreezeWindow.Name, formatTime(p.FreezeWindow.Until)))
	}
	return guardTbl.Render(w)
}

func scalar(v any) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprint(v)
}
