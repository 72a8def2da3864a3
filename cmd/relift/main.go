package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"

	"relift/internal/arch"
	"relift/internal/diag"
	"relift/internal/ir"
	"relift/internal/session"
)

func main() {
	archPath := flag.String("arch", "", "YAML architecture description overlaying the defaults")
	validate := flag.Bool("validate", false, "verify graph invariants after every pass")
	maxIter := flag.Int("max-iterations", 16, "ceiling for the convergent pass loop")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: relift [flags] <listing>")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}

	startTime := time.Now()
	path := flag.Arg(0)

	source, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read file: %v\n", err)
		os.Exit(1)
	}

	config := session.DefaultConfig()
	config.Validate = *validate
	config.MaxIterations = *maxIter
	if *archPath != "" {
		table, conv, err := arch.LoadFile(*archPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load architecture: %v\n", err)
			os.Exit(1)
		}
		config.Table = table
		config.Conv = conv
	}

	result, err := session.New(config).DecompileListing(path, string(source))
	duration := time.Since(startTime)

	if result != nil && len(result.Diags) > 0 {
		fmt.Fprint(os.Stderr, diag.NewReporter().FormatAll(result.Diags))
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		color.Red("Recovery failed after %s", formatDuration(duration))
		os.Exit(1)
	}

	fmt.Print(ir.Print(result.Graph))
	color.Green("Recovered %s in %s (%d warnings)",
		path, formatDuration(duration), len(result.Diags))
}

func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Second:
		return fmt.Sprintf("%.2fs", d.Seconds())
	case d >= time.Millisecond:
		return fmt.Sprintf("%.1fms", float64(d.Nanoseconds())/1000000.0)
	case d >= time.Microsecond:
		return fmt.Sprintf("%.1fμs", float64(d.Nanoseconds())/1000.0)
	default:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	}
}
