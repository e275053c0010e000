// Command catalog converts VIA video annotation exports into COCO catalogs,
// extracts the matching frames and splits the result for training.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
)

type command struct {
	summary string
	run     func(ctx context.Context, args []string, out io.Writer) error
}

var commands = map[string]command{
	"convert":  {"convert every annotation file into a per-source catalog", runConvert},
	"merge":    {"merge per-source catalogs into one", runMerge},
	"frames":   {"extract the frames of every annotated video", runFrames},
	"videomap": {"write the video to source id map", runVideoMap},
	"run":      {"convert, merge, extract frames and write the video map", runAll},
	"split":    {"split a merged catalog into train, validation and test", runSplit},
	"report":   {"summarise a catalog and chart it", runReport},
	"migrate":  {"manage the run ledger schema", runMigrate},
	"version":  {"print build information", runVersion},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := dispatch(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Fatalf("catalog: %v", err)
	}
}

func dispatch(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		usage(out)
		if len(args) == 0 {
			return errors.New("missing command")
		}
		return nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		usage(out)
		return fmt.Errorf("unknown command %q", args[0])
	}
	return cmd.run(ctx, args[1:], out)
}

func usage(out io.Writer) {
	fmt.Fprintln(out, "Usage: catalog <command> [flags]")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Commands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %-10s %s\n", name, commands[name].summary)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Run 'catalog <command> -h' for the flags of a command.")
}
