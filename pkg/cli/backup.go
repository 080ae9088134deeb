package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/anemone/pkg/cli/config"
	"github.com/secmon-lab/anemone/pkg/service/backup"
	"github.com/secmon-lab/anemone/pkg/service/identity"
	"github.com/secmon-lab/anemone/pkg/service/worker"
	"github.com/secmon-lab/anemone/pkg/utils/logging"
	"github.com/secmon-lab/anemone/pkg/utils/safe"
	"github.com/urfave/cli/v3"
)

func cmdBackup() *cli.Command {
	var agentCfg config.Agent
	var storageCfg config.Storage
	var agentID string

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "agent",
			Usage:       "Back up only this agent id",
			Destination: &agentID,
		},
	}
	flags = append(flags, agentCfg.Flags()...)
	flags = append(flags, storageCfg.Flags()...)

	return &cli.Command{
		Name:  "backup",
		Usage: "Upload agent boxes to a Cloud Storage bucket",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			var boxes []string
			if agentID != "" {
				dir := identity.BoxDir(agentCfg.Root(), agentID)
				if _, err := identity.Load(dir); err != nil {
					return goerr.Wrap(err, "unknown agent", goerr.V("agent_id", agentID))
				}
				boxes = []string{dir}
			} else {
				found, err := worker.Discover(agentCfg.Root())
				if err != nil {
					return err
				}
				boxes = found
			}
			if len(boxes) == 0 {
				return goerr.New("no agent boxes found", goerr.V("root", agentCfg.Root()))
			}

			gcs, err := storageCfg.Configure(ctx)
			if err != nil {
				return err
			}
			defer safe.Close(ctx, gcs)

			out := c.Root().Writer
			if out == nil {
				out = os.Stdout
			}

			now := time.Now()
			for _, dir := range boxes {
				result, err := backup.Box(ctx, gcs, dir, storageCfg.Prefix(), now)
				if err != nil {
					return goerr.Wrap(err, "backup failed", goerr.V("box", dir))
				}
				logging.Default().Info("box backed up", "agent_id", result.AgentID, "objects", len(result.Objects), "bytes", result.Bytes)
				_, _ = fmt.Fprintf(out, "%s: %d files, %d bytes -> gs://%s/%s\n", result.AgentID, len(result.Objects), result.Bytes, storageCfg.Bucket(), result.Prefix)
			}
			return nil
		},
	}
}
