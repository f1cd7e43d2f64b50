// Command xmlbtool compiles, inspects and queries xmlsilo files, structured
// like the teacher's cmd/distri/distri.go: a flag.FlagSet at top level, a
// verbs map of name to func(ctx, args) error, and one subcommand per file.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/xmlsilo/xmlsilo"
)

var (
	verboseFlag  = flag.Bool("verbose", false, "log diagnostic detail as commands run")
	forceFlag    = flag.Bool("force", false, "bypass the silo magic/version header check (maps to NO_MAGIC)")
	waitFlag     = flag.Bool("wait", false, "for query/dump: block and re-run on every silo invalidation, instead of running once")
	profileFlag  = flag.Bool("profile", false, "print per-query timing after running")
	tokenizeFlag = flag.String("tokenize", "", "for compile: tokenize the named element's text for the search() fast path")
)

func funcmain() error {
	flag.Parse()

	type cmd struct {
		fn func(ctx context.Context, args []string) error
	}
	verbs := map[string]cmd{
		"dump":       {cmdDump},
		"export":     {cmdExport},
		"query":      {cmdQuery},
		"query-file": {cmdQueryFile},
		"compile":    {cmdCompile},
	}

	args := flag.Args()
	verb := "dump"
	if len(args) > 0 {
		verb, args = args[0], args[1:]
	}

	v, ok := verbs[verb]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", verb)
		fmt.Fprintf(os.Stderr, "syntax: xmlbtool [-flags] <command> [options]\n")
		os.Exit(2)
	}

	ctx, canc := xmlsilo.InterruptibleContext()
	defer canc()
	return v.fn(ctx, args)
}

func main() {
	if err := funcmain(); err != nil {
		log.Fatal(err)
	}
	if err := xmlsilo.RunAtExit(); err != nil {
		log.Fatal(err)
	}
}

// compileFlags maps this process's global --force into a CompileFlag
// bit-set, per SPEC_FULL.md §6's "--force maps to NO_MAGIC".
func compileFlags() xmlsilo.CompileFlag {
	var f xmlsilo.CompileFlag
	if *forceFlag {
		f |= xmlsilo.NoMagic
	}
	return f
}

func logVerbose(format string, args ...interface{}) {
	if *verboseFlag {
		log.Printf(format, args...)
	}
}
