package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cordum/playground/core/configsvc"
	"github.com/cordum/playground/core/infra/config"
	"github.com/cordum/playground/core/pipeline"
	"github.com/cordum/playground/core/session"
	"github.com/cordum/playground/core/transcript"
)

func runRunCmd(args []string) {
	fs := newFlagSet("run")
	preset := fs.String("preset", "", "preset file")
	tool := fs.String("tool", "", "tool to run, overrides the preset")
	fs.ParseArgs(args)
	input := strings.Join(fs.Args(), " ")
	if strings.TrimSpace(input) == "" {
		fail("usage: run [--preset preset.yaml] [--tool chat] <input>")
	}
	sess, done, err := newLocalSession(fs.client(), *preset, *tool)
	check(err)
	defer done()
	res, err := sess.Submit(context.Background(), input)
	check(err)
	printJSON(res)
}

func runREPLCmd(args []string) {
	fs := newFlagSet("repl")
	preset := fs.String("preset", "", "preset file")
	tool := fs.String("tool", "", "initial tool, overrides the preset")
	fs.ParseArgs(args)
	sess, done, err := newLocalSession(fs.client(), *preset, *tool)
	check(err)
	defer done()
	check(repl(context.Background(), sess, os.Stdin, os.Stdout))
}

// newLocalSession hosts one session in process against the remote service.
func newLocalSession(remote pipeline.Gateway, presetPath, tool string) (*session.Session, func(), error) {
	initial := configsvc.Defaults()
	if presetPath != "" {
		p, err := config.LoadPreset(presetPath)
		if err != nil {
			return nil, nil, err
		}
		initial = configsvc.Merge(initial, p.Config)
		if tool == "" {
			tool = p.Tool
		}
	}
	initial = config.LLMDefaultsFromEnv().Seed(initial)
	mgr := session.NewManager(session.Options{Gateway: remote, MaxSessions: 1})
	return mgr.CreateFrom(initial, tool), mgr.Close, nil
}

// repl reads one submission per line. Lines starting with a slash are
// commands.
func repl(ctx context.Context, sess *session.Session, in io.Reader, out io.Writer) error {
	current, _ := sess.Tool()
	fmt.Fprintf(out, "tool: %s (/tool <name>, /reset, /config, /readiness, /quit)\n", current)
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := replCommand(sess, line, out); quit {
				return nil
			}
			continue
		}
		res, err := sess.Submit(ctx, line)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		for _, entry := range res.Entries {
			if entry.Role == transcript.RoleUser {
				continue
			}
			fmt.Fprintf(out, "[%s] %s\n", entry.Role, entry.Content)
		}
	}
}

func replCommand(sess *session.Session, line string, out io.Writer) bool {
	name, arg, _ := strings.Cut(line, " ")
	switch name {
	case "/quit", "/exit":
		return true
	case "/reset":
		sess.Reset()
		fmt.Fprintln(out, "transcript cleared")
	case "/tool":
		tool := sess.SetTool(strings.TrimSpace(arg))
		fmt.Fprintf(out, "tool: %s\n", tool)
	case "/config":
		writeIndented(out, sess.Config())
	case "/readiness":
		writeIndented(out, sess.Readiness())
	default:
		fmt.Fprintf(out, "unknown command %s\n", name)
	}
	return false
}

func writeIndented(out io.Writer, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(out, "error: %v\n", err)
		return
	}
	fmt.Fprintln(out, string(data))
}
