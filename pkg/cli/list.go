package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/secmon-lab/anemone/pkg/cli/config"
	"github.com/secmon-lab/anemone/pkg/repository/jsonl"
	"github.com/secmon-lab/anemone/pkg/service/identity"
	"github.com/secmon-lab/anemone/pkg/service/worker"
	"github.com/secmon-lab/anemone/pkg/utils/logging"
	"github.com/secmon-lab/anemone/pkg/utils/safe"
	"github.com/urfave/cli/v3"
)

func cmdList() *cli.Command {
	var agentCfg config.Agent

	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List the agent boxes under the root",
		Flags:   agentCfg.Flags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			boxes, err := worker.Discover(agentCfg.Root())
			if err != nil {
				return err
			}

			out := c.Root().Writer
			if out == nil {
				out = os.Stdout
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "ID\tNAME\tBIRTHDAY\tMEMORIES")
			for _, dir := range boxes {
				id := identity.AgentIDFromBox(dir)
				ident, err := identity.Load(dir)
				if err != nil {
					logging.Default().Warn("unreadable identity", "box", dir, "error", err)
					_, _ = fmt.Fprintf(tw, "%s\t?\t?\t?\n", id)
					continue
				}
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", id, ident.Name, ident.Birthday.Format("2006-01-02"), memoryCount(ctx, dir))
			}
			return tw.Flush()
		},
	}
}

func memoryCount(ctx context.Context, boxDir string) string {
	store, err := jsonl.OpenBox(ctx, boxDir)
	if err != nil {
		logging.Default().Warn("unreadable memory stream", "box", boxDir, "error", err)
		return "?"
	}
	defer safe.Close(ctx, store)

	entries, err := store.All(ctx)
	if err != nil {
		return "?"
	}
	return fmt.Sprint(len(entries))
}
