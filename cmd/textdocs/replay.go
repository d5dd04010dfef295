package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/pressly/cli"
	"github.com/stefanvanburen/textdocs/internal/query"
	"github.com/stefanvanburen/textdocs/internal/textdoc"
	"github.com/stefanvanburen/textdocs/internal/trace"
)

func replayCommand() *cli.Command {
	return &cli.Command{
		Name:      "replay",
		Usage:     "textdocs replay [flags] <trace-file>",
		ShortHelp: "Replay a recorded LSP session and list the documents left open",
		Flags: cli.FlagsFunc(func(f *flag.FlagSet) {
			f.String("filter", "", `CEL expression selecting documents, e.g. language == "go" && lines > 10`)
			f.Bool("content", false, "print the content of each selected document")
		}),
		Exec: func(ctx context.Context, s *cli.State) error {
			configureLogging(s)
			if len(s.Args) != 1 {
				return errors.New("replay takes exactly one trace file (use - for stdin), see --help")
			}
			filter, err := query.Compile(cli.GetFlag[string](s, "filter"))
			if err != nil {
				return err
			}

			in := s.Stdin
			if name := s.Args[0]; name != "-" {
				f, err := os.Open(name)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			store := textdoc.NewStore()
			stats, err := trace.Replay(ctx, in, store)
			fmt.Fprintf(s.Stderr, "%d messages: %d applied, %d ignored, %d responses, %d malformed\n",
				stats.Messages, stats.Handled, stats.Unhandled, stats.Skipped, stats.Failed)
			if err != nil {
				return err
			}
			return report(s.Stdout, store, filter, cli.GetFlag[bool](s, "content"))
		},
	}
}

// report lists the documents selected by filter, one per line, optionally
// followed by their content.
func report(w io.Writer, store *textdoc.Store, filter *query.Filter, withContent bool) error {
	infos, err := query.Select(filter, store.Documents())
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "URI\tLANGUAGE\tVERSION\tLINES\tBYTES")
	for _, info := range infos {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\n", info.URI, info.LanguageID, info.Version, info.LineCount, info.Length)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if !withContent {
		return nil
	}
	for _, info := range infos {
		content, ok := store.Content(info.URI, nil)
		if !ok {
			continue
		}
		fmt.Fprintf(w, "\n==> %s <==\n%s", info.URI, content)
	}
	return nil
}
