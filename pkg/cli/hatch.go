package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/anemone/pkg/cli/config"
	"github.com/secmon-lab/anemone/pkg/domain/model"
	"github.com/secmon-lab/anemone/pkg/service/identity"
	"github.com/secmon-lab/anemone/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

const maxEntropyKeys = 512

func cmdHatch() *cli.Command {
	var agentCfg config.Agent
	var agentID string
	var random bool

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "id",
			Usage:       "Agent id. Derived from the name when omitted",
			Destination: &agentID,
		},
		&cli.BoolFlag{
			Name:        "random",
			Usage:       "Use system randomness instead of typed entropy",
			Destination: &random,
		},
	}
	flags = append(flags, agentCfg.Flags()...)

	return &cli.Command{
		Name:      "hatch",
		Usage:     "Create a new agent box with a generated identity",
		ArgsUsage: "NAME",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			name := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if name == "" {
				return goerr.New("agent name is required")
			}
			if agentID == "" {
				agentID = identity.AgentIDFromName(name)
			}
			if err := identity.ValidateAgentID(agentID); err != nil {
				return err
			}

			out := c.Root().Writer
			if out == nil {
				out = os.Stdout
			}

			ident, err := generateIdentity(c, out, name, random)
			if err != nil {
				return err
			}

			dir, err := identity.Hatch(agentCfg.Root(), agentID, ident)
			if err != nil {
				return err
			}

			logging.Default().Info("agent hatched", "agent_id", agentID, "box", dir)
			printIdentity(out, agentID, dir, ident)
			return nil
		},
	}
}

func generateIdentity(c *cli.Command, out io.Writer, name string, random bool) (*model.Identity, error) {
	birthday := time.Now()
	if random {
		return identity.GenerateRandom(name, birthday)
	}

	in := c.Root().Reader
	if in == nil {
		in = os.Stdin
	}

	_, _ = fmt.Fprintf(out, "Type anything to shape %s, then press Enter:\n> ", name)
	keys, err := identity.CollectEntropy(in, time.Now, maxEntropyKeys)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		logging.Default().Warn("no entropy typed, falling back to system randomness")
		return identity.GenerateRandom(name, birthday)
	}
	return identity.Generate(name, keys, birthday)
}

func printIdentity(w io.Writer, agentID, dir string, ident *model.Identity) {
	_, _ = fmt.Fprintf(w, "\n%s hatched (%s)\n", ident.Name, agentID)
	_, _ = fmt.Fprintf(w, "  box:         %s\n", dir)
	_, _ = fmt.Fprintf(w, "  genome:      %s\n", ident.Genome)
	_, _ = fmt.Fprintf(w, "  domains:     %s\n", strings.Join(ident.Domains, ", "))
	_, _ = fmt.Fprintf(w, "  styles:      %s\n", strings.Join(ident.Styles, ", "))
	_, _ = fmt.Fprintf(w, "  temperament: %s\n", ident.Temperament)
}
