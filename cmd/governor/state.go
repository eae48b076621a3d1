package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"aitrade-hq/governor/pkg/cli"
	"aitrade-hq/governor/pkg/governance/state"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show or change the governance state",
}

var stateGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the governance state",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		st, err := a.rt.GetState(ctx)
		if err != nil {
			return err
		}
		return a.print(st, stateTable(st))
	}),
}

var (
	stateSetFlags []string
	stateJSONFlag string
)

var stateUpdateCmd = &cobra.Command{
	Use:   "update (--set field=value ... | --json OBJECT)",
	Short: "Patch governance state fields",
	Long: `Patch one or more governance state fields. Booleans take true or false,
integers must lie within their allowed range. A JSON patch is applied first
and --set pairs override it; JSON numbers must be written as integers.

Fields: ` + strings.Join(state.Fields(), ", "),
	Example: `  governor state update --set publish_frozen=true --actor ops
  governor state update --set high_risk_required_approvals=3 --set high_risk_cooldown_seconds=600
  governor state update --json '{"read_only_mode": false, "high_risk_cooldown_seconds": 300}'`,
	Args: cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		patch := map[string]any{}
		if stateJSONFlag != "" {
			decoded, err := state.DecodePatch([]byte(stateJSONFlag))
			if err != nil {
				return err
			}
			patch = decoded
		}
		pairs, err := parsePatch(stateSetFlags)
		if err != nil {
			return err
		}
		for k, v := range pairs {
			patch[k] = v
		}

		st, err := a.rt.UpdateState(ctx, patch, actor())
		if err != nil {
			return err
		}
		return a.print(st, stateTable(st))
	}),
}

func init() {
	rootCmd.AddCommand(stateCmd)
	stateCmd.AddCommand(stateGetCmd, stateUpdateCmd)

	stateUpdateCmd.Flags().StringArrayVar(&stateSetFlags, "set", nil, "field=value to set (repeatable)")
	stateUpdateCmd.Flags().StringVar(&stateJSONFlag, "json", "", "JSON object of fields to set")
	stateUpdateCmd.MarkFlagsOneRequired("set", "json")
}

// parsePatch turns field=value pairs into a patch. Values that look like
// booleans or integers are typed; anything else is passed through as a
// string for the state store to reject.
func parsePatch(pairs []string) (map[string]any, error) {
	patch := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, cli.NewConfigError("set", fmt.Sprintf("expected field=value, got %q", pair))
		}
		raw = strings.TrimSpace(raw)
		switch raw {
		case "true", "false":
			patch[key] = raw == "true"
		default:
			if n, err := strconv.Atoi(raw); err == nil {
				patch[key] = n
			} else {
				patch[key] = raw
			}
		}
	}
	return patch, nil
}

func stateTable(st *state.State) *cli.Table {
	return cli.KeyValues("Governance state",
		"read_only_mode", st.ReadOnlyMode,
		"publish_frozen", st.PublishFrozen,
		"require_latest_pass", st.RequireLatestPass,
		"allow_pass_with_actions", st.AllowPassWithActions,
		"high_risk_two_man_rule", st.HighRiskTwoManRule,
		"high_risk_required_approvals", st.HighRiskRequiredApprovals,
		"high_risk_cooldown_seconds", st.HighRiskCooldownSeconds,
		"updated_at", formatTime(st.UpdatedAt),
	)
}
