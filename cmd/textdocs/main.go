package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/pressly/cli"
	"github.com/stefanvanburen/textdocs/internal/lsp"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

func main() {
	root := &cli.Command{
		Name:      "textdocs",
		ShortHelp: "Mirror the text documents an editor has open over LSP",
		Flags: cli.FlagsFunc(func(f *flag.FlagSet) {
			f.Int("verbose", 0, "log verbosity (0 logs errors and warnings, 2 adds debug output)")
			f.String("log", "", "write logs to this file instead of stderr")
		}),
		SubCommands: []*cli.Command{
			{
				Name:      "serve",
				ShortHelp: "Start the language server (communicates over stdin/stdout)",
				Exec: func(ctx context.Context, s *cli.State) error {
					configureLogging(s)
					return lsp.Serve()
				},
			},
			replayCommand(),
		},
	}
	if err := cli.ParseAndRun(context.Background(), root, os.Args[1:], nil); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// configureLogging sets up commonlog from the root flags. Logs never go to
// stdout, which carries the protocol when serving.
func configureLogging(s *cli.State) {
	var path *string
	if p := cli.GetFlag[string](s, "log"); p != "" {
		path = &p
	}
	commonlog.Configure(cli.GetFlag[int](s, "verbose"), path)
}
