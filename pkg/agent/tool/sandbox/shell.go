package sandbox

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"slices"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/anemone/pkg/domain/model"
	"github.com/secmon-lab/anemone/pkg/service/inbox"
	"github.com/secmon-lab/anemone/pkg/utils/strutil"
)

const truncatedMarker = "\n...(truncated)"

type shellTool struct {
	cfg Config
}

func (t *shellTool) Spec() gollem.ToolSpec {
	return gollem.ToolSpec{
		Name:        string(model.ToolShell),
		Description: "Run a shell command inside your room. Paths must be relative to the room; network tools, privilege changes and escapes are refused. Use it to read, write and organise files.",
		Parameters: map[string]*gollem.Parameter{
			"command": {
				Type:        gollem.TypeString,
				Description: "The command line to run with sh -c",
				Required:    true,
			},
		},
	}
}

func (t *shellTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	command, _ := args["command"].(string)
	if err := CheckCommand(command, t.cfg.BoxDir, t.cfg.Blocklist); err != nil {
		return nil, err
	}

	scanner := inbox.NewScanner(t.cfg.BoxDir)
	before, err := scanner.Files()
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(ctx, t.cfg.ShellTimeout)
	defer cancel()

	// #nosec G204 - the command was checked by CheckCommand and runs inside the box
	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Dir = t.cfg.BoxDir
	cmd.Env = []string{
		"HOME=" + t.cfg.BoxDir,
		"TMPDIR=" + t.cfg.BoxDir,
		"PATH=/usr/bin:/bin",
		"LANG=en_US.UTF-8",
	}
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	exitCode := 0
	runErr := cmd.Run()
	if runErr != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			exitCode = -1
			stderr.WriteString("\n(command timed out after " + t.cfg.ShellTimeout.String() + ")")
		case errors.As(runErr, &exitErr):
			exitCode = exitErr.ExitCode()
		default:
			return nil, goerr.Wrap(runErr, "failed to start command", goerr.V("command", command))
		}
	}

	after, err := scanner.Files()
	if err != nil {
		return nil, err
	}
	created := []string{}
	for name := range after {
		if _, ok := before[name]; !ok {
			created = append(created, name)
		}
	}
	slices.Sort(created)

	out := stdout.String()
	if out == "" && stderr.Len() == 0 {
		out = "(no output)"
	}

	return map[string]any{
		"stdout":        strutil.TruncateWithMarker(out, t.cfg.OutputLimit, truncatedMarker),
		"stderr":        strutil.TruncateWithMarker(stderr.String(), t.cfg.OutputLimit, truncatedMarker),
		"exit_code":     exitCode,
		"created_files": created,
	}, nil
}
