// Package main - jstaintfold runs the taint-propagating partial evaluator
// over a JavaScript-dialect source file and prints the residual program.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/hatlesswizard/jstaintfold/pkg/eval"
	"github.com/hatlesswizard/jstaintfold/pkg/fixedpointstore"
	"github.com/hatlesswizard/jstaintfold/pkg/frontend"
	"github.com/hatlesswizard/jstaintfold/pkg/printer"
)

func main() {
	outputPath := flag.String("o", "", "Output file for the simplified program (default stdout)")
	cachePath := flag.String("cache", "", "Path to a sqlite3 loop fixed-point cache (optional)")
	stats := flag.Bool("stats", false, "Print parse/cache hit-miss counters to stderr")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: jstaintfold [-o out.js] [-cache path.db] [-stats] <input.js>")
		os.Exit(1)
	}
	inputPath := flag.Arg(0)

	front := frontend.NewService(64)
	prog, err := front.ParseFile(inputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse error: %v\n", err)
		os.Exit(1)
	}

	ev := eval.New()
	if *cachePath != "" {
		store, err := fixedpointstore.Open(*cachePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "cache open error: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()
		ev.SetPersistentLoopCache(store)
	}

	residual, runErr := ev.Run(prog)
	out := printer.PrintStatements(residual)

	if *outputPath == "" {
		fmt.Print(out)
	} else if writeErr := os.WriteFile(*outputPath, []byte(out), 0644); writeErr != nil {
		fmt.Fprintf(os.Stderr, "write error: %v\n", writeErr)
		os.Exit(1)
	}

	if *stats {
		hits, misses := front.Stats()
		fmt.Fprintf(os.Stderr, "parse cache: %d hits, %d misses\n", hits, misses)
		for _, occ := range ev.Occurrences() {
			fmt.Fprintf(os.Stderr, "diagnostic %s: %s (caught=%v)\n", occ.ID, occ.Message, occ.Caught)
		}
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "evaluation error: %v\n", runErr)
		os.Exit(1)
	}
}
