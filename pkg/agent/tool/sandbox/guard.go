package sandbox

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"mvdan.cc/sh/v3/syntax"
)

// DefaultBlocklist holds command prefixes that are refused outright.
var DefaultBlocklist = []string{
	"sudo", "su ", "rm -rf /", "chmod", "chown", "kill", "pkill", "curl", "wget", "nc ", "ncat",
	"ssh", "scp", "sftp", "node", "ruby", "perl", "bash", "sh ", "zsh", "export", "source",
	"eval", "exec", "mount", "umount", "dd ", "mkfs", "fdisk", "apt", "brew", "npm", "yarn",
	"open ", "xdg-open",
}

// absPathPattern matches a path rooted at "/", at the start of a word or
// right after an assignment or separator such as --out=/tmp/y or a:/etc.
var absPathPattern = regexp.MustCompile(`(?:^|[><=:])/[A-Za-z0-9_]`)

func reject(msg string, command string) error {
	return goerr.Wrap(ErrToolRejected, msg, goerr.V("command", command))
}

// CheckCommand refuses commands that start with a blocklisted prefix, escape
// the box with "..", absolute paths or symlinks, or use shell substitution.
// It never executes anything.
func CheckCommand(command, boxDir string, blocklist []string) error {
	stripped := strings.TrimSpace(command)
	if stripped == "" {
		return reject("empty command", command)
	}

	if err := checkBlocklist(stripped, command, blocklist); err != nil {
		return err
	}

	switch {
	case strings.Contains(stripped, "`"):
		return reject("backtick command substitution is not allowed", command)
	case strings.Contains(stripped, "$("):
		return reject("command substitution $() is not allowed", command)
	case strings.Contains(stripped, "${"):
		return reject("variable expansion ${} is not allowed", command)
	case strings.Contains(stripped, "~"):
		return reject("home expansion '~' is not allowed", command)
	}

	words, calls, err := shellWords(stripped)
	if err != nil {
		return goerr.Wrap(ErrToolRejected, "command could not be parsed",
			goerr.V("command", command),
			goerr.V("cause", err.Error()),
		)
	}

	for _, call := range calls {
		if err := checkBlocklist(call, command, blocklist); err != nil {
			return err
		}
	}

	for _, word := range words {
		if word == ".." || strings.HasPrefix(word, "../") || strings.Contains(word, "/..") {
			return reject("'..' path traversal is not allowed", command)
		}
		if absPathPattern.MatchString(strings.ReplaceAll(word, "/dev/null", "")) {
			return reject("absolute paths are not allowed, use paths relative to your room", command)
		}
		if err := checkSymlink(word, boxDir); err != nil {
			return goerr.Wrap(err, "symlink escapes the room", goerr.V("command", command))
		}
	}

	return nil
}

func checkBlocklist(line, command string, blocklist []string) error {
	for _, prefix := range blocklist {
		if strings.HasPrefix(line, prefix) {
			return goerr.Wrap(ErrToolRejected, "command is not allowed",
				goerr.V("command", command),
				goerr.V("prefix", prefix),
			)
		}
	}
	return nil
}

// shellWords parses command the way a shell would. It returns every word,
// redirect target and assigned value with quoting removed, and each simple
// command of a pipeline or list rebuilt from its unquoted arguments.
func shellWords(command string) (words, calls []string, err error) {
	file, err := syntax.NewParser().Parse(strings.NewReader(command), "")
	if err != nil {
		return nil, nil, err
	}

	syntax.Walk(file, func(node syntax.Node) bool {
		switch n := node.(type) {
		case *syntax.Word:
			words = append(words, wordLiteral(n.Parts))
		case *syntax.CallExpr:
			args := make([]string, 0, len(n.Args))
			for _, arg := range n.Args {
				args = append(args, wordLiteral(arg.Parts))
			}
			if len(args) > 0 {
				calls = append(calls, strings.Join(args, " "))
			}
		}
		return true
	})
	return words, calls, nil
}

func wordLiteral(parts []syntax.WordPart) string {
	var b strings.Builder
	for _, part := range parts {
		switch p := part.(type) {
		case *syntax.Lit:
			b.WriteString(strings.ReplaceAll(p.Value, `\`, ""))
		case *syntax.SglQuoted:
			b.WriteString(p.Value)
		case *syntax.DblQuoted:
			b.WriteString(wordLiteral(p.Parts))
		}
	}
	return b.String()
}

// checkSymlink resolves token inside boxDir when it names an existing path and
// fails if the result lies outside the box.
func checkSymlink(token, boxDir string) error {
	if token == "" || boxDir == "" || strings.ContainsAny(token, "*?[") {
		return nil
	}
	path := filepath.Join(boxDir, token)
	if _, err := os.Lstat(path); err != nil {
		return nil
	}

	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return nil
	}
	root, err := filepath.EvalSymlinks(boxDir)
	if err != nil {
		root = boxDir
	}

	rel, err := filepath.Rel(root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return goerr.Wrap(ErrToolRejected, "path resolves outside the room",
			goerr.V("path", token),
			goerr.V("resolved", resolved),
		)
	}
	return nil
}
