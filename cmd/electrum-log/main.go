// Command electrum-log is a tool for viewing and analyzing protocol
// event log files.
//
// Log files are written by electrum-console when started with -debug.
//
// Usage:
//
//	electrum-log <command> [flags] <file.elog>
//
// Commands:
//
//	view     View log file in human-readable format
//	export   Export log file to JSONL or CSV format
//	filter   Filter log file and write to new file
//	stats    Show statistics about the log file
//
// Examples:
//
//	# View all events
//	electrum-log view wire.elog
//
//	# View only wire-layer events
//	electrum-log view -layer wire wire.elog
//
//	# Export to JSONL
//	electrum-log export -format jsonl wire.elog
//
//	# Filter by connection and save to a new file
//	electrum-log filter -conn-id abc12345 -o filtered.elog wire.elog
//
//	# Show statistics
//	electrum-log stats wire.elog
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/justinvforvendetta/electrum-xmc/cmd/electrum-log/commands"
)

const usage = `electrum-log - protocol event log analyzer

Usage:
  electrum-log <command> [flags] <file.elog>

Commands:
  view     View log file in human-readable format
  export   Export log file to JSONL or CSV format
  filter   Filter log file and write to new file
  stats    Show statistics about the log file

Use "electrum-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func requireFile(fs *flag.FlagSet) string {
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: log file path required")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func runView(args []string) {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	layer := fs.String("layer", "", "Filter by layer (transport, wire, session)")
	direction := fs.String("direction", "", "Filter by direction (in, out)")
	category := fs.String("category", "", "Filter by category (message, state, error)")
	fs.Parse(args)

	path := requireFile(fs)

	filter, err := commands.BuildFilter("", "", "", "", *layer, *direction, *category)
	if err != nil {
		fail(err)
	}

	if err := commands.RunView(path, filter, os.Stdout); err != nil {
		fail(err)
	}
}

func runExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")
	fs.Parse(args)

	path := requireFile(fs)

	if err := commands.RunExport(path, *format, *output); err != nil {
		fail(err)
	}
}

func runFilter(args []string) {
	fs := flag.NewFlagSet("filter", flag.ExitOnError)
	output := fs.String("o", "", "Output file (required)")
	connID := fs.String("conn-id", "", "Filter by connection ID")
	host := fs.String("host", "", "Filter by server host")
	timeStart := fs.String("time-start", "", "Filter by start time (RFC3339)")
	timeEnd := fs.String("time-end", "", "Filter by end time (RFC3339)")
	layer := fs.String("layer", "", "Filter by layer (transport, wire, session)")
	direction := fs.String("direction", "", "Filter by direction (in, out)")
	category := fs.String("category", "", "Filter by category (message, state, error)")
	fs.Parse(args)

	path := requireFile(fs)
	if *output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}

	filter, err := commands.BuildFilter(*connID, *host, *timeStart, *timeEnd, *layer, *direction, *category)
	if err != nil {
		fail(err)
	}

	if err := commands.RunFilter(path, filter, *output); err != nil {
		fail(err)
	}
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	fs.Parse(args)

	path := requireFile(fs)

	if err := commands.RunStats(path, os.Stdout); err != nil {
		fail(err)
	}
}
