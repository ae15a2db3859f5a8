package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cordum/playground/core/infra/config"
	sdk "github.com/cordum/playground/sdk/client"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "health":
		fs := newFlagSet("health")
		fs.ParseArgs(args)
		out, err := fs.client().Health(context.Background())
		check(err)
		printJSON(out)
	case "validators":
		fs := newFlagSet("validators")
		fs.ParseArgs(args)
		out, err := fs.client().ListValidators(context.Background())
		check(err)
		printJSON(out)
	case "stats":
		fs := newFlagSet("stats")
		fs.ParseArgs(args)
		out, err := fs.client().FetchMonitorStats(context.Background())
		check(err)
		printJSON(out)
	case "viz":
		fs := newFlagSet("viz")
		fs.ParseArgs(args)
		out, err := fs.client().FetchVisualizationData(context.Background())
		check(err)
		printJSON(out)
	case "llm-defaults":
		fs := newFlagSet("llm-defaults")
		fs.ParseArgs(args)
		out, err := fs.client().FetchLLMDefaults(context.Background())
		check(err)
		printJSON(out)
	case "validate":
		runValidateCmd(args)
	case "preset":
		runPresetCmd(args)
	case "run":
		runRunCmd(args)
	case "repl":
		runREPLCmd(args)
	default:
		usage()
		os.Exit(1)
	}
}

func runValidateCmd(args []string) {
	fs := newFlagSet("validate")
	preset := fs.String("preset", "", "preset file with guard validators")
	text := fs.String("text", "", "text to validate")
	fs.ParseArgs(args)
	if *preset == "" || strings.TrimSpace(*text) == "" {
		fail("usage: validate --preset preset.yaml --text <text>")
	}
	p, err := config.LoadPreset(*preset)
	check(err)
	req, err := guardRequest(p, *text)
	check(err)
	out, err := fs.client().ValidateGuard(context.Background(), req)
	check(err)
	printJSON(out)
}

func guardRequest(p *config.Preset, text string) (sdk.GuardValidateRequest, error) {
	if p.Config.Guard == nil || len(p.Config.Guard.Validators) == 0 {
		return sdk.GuardValidateRequest{}, fmt.Errorf("preset %q has no guard validators", p.Name)
	}
	payload := sdk.GuardPayloadFrom(*p.Config.Guard)
	return sdk.GuardValidateRequest{
		Text:       text,
		Validators: payload.Validators,
		NumReasks:  payload.NumReasks,
		Name:       payload.Name,
	}, nil
}

func runPresetCmd(args []string) {
	if len(args) < 2 || args[0] != "check" {
		usage()
		os.Exit(1)
	}
	p, err := config.LoadPreset(args[1])
	check(err)
	printJSON(p)
}

type flagSet struct {
	*flag.FlagSet
	apiURL  *string
	apiKey  *string
	timeout *time.Duration
}

func newFlagSet(name string) *flagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	apiURL := fs.String("api-url", envOr("PLAYGROUND_API_URL", sdk.DefaultBaseURL), "guardrail service base url")
	apiKey := fs.String("api-key", envOr("PLAYGROUND_API_KEY", ""), "guardrail service api key")
	timeout := fs.Duration("timeout", sdk.DefaultTimeout, "remote call timeout")
	return &flagSet{FlagSet: fs, apiURL: apiURL, apiKey: apiKey, timeout: timeout}
}

func (fs *flagSet) ParseArgs(args []string) {
	if err := fs.Parse(args); err != nil {
		fail(err.Error())
	}
}

func (fs *flagSet) client() *sdk.Client {
	return newClient(*fs.apiURL, *fs.apiKey, *fs.timeout)
}

func newClient(apiURL, apiKey string, timeout time.Duration) *sdk.Client {
	return sdk.New(strings.TrimRight(apiURL, "/"), apiKey, sdk.WithTimeout(timeout))
}

func printJSON(value any) {
	data, err := json.MarshalIndent(value, "", "  ")
	check(err)
	fmt.Println(string(data))
}

func usage() {
	fmt.Print(`playgroundctl - guardrail playground CLI

Usage:
  playgroundctl health
  playgroundctl validators
  playgroundctl stats
  playgroundctl viz
  playgroundctl llm-defaults
  playgroundctl validate --preset preset.yaml --text <text>
  playgroundctl preset check <preset.yaml>
  playgroundctl run [--preset preset.yaml] [--tool chat] <input>
  playgroundctl repl [--preset preset.yaml] [--tool chat]

Global flags:
  --api-url   Guardrail service URL (default from PLAYGROUND_API_URL)
  --api-key   API key (default from PLAYGROUND_API_KEY)
  --timeout   Remote call timeout
`)
}

func envOr(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func check(err error) {
	if err != nil {
		fail(err.Error())
	}
}

func fail(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
