package main

import (
	"context"
	"flag"
	"fmt"
	"io/ioutil"
	"strings"

	"github.com/xmlsilo/xmlsilo"
)

const queryHelp = `xmlbtool query [-flags] <silo-path> <xpath>

Compile and run xpath against a silo, printing each matching node.

Example:
  xmlbtool query out.silo "component[@type='desktop']/id"
`

const queryFileHelp = `xmlbtool query-file [-flags] <silo-path> <xpath-file>

Like query, but reads the xpath from a file instead of argv, for XPaths
containing characters the shell would otherwise need escaping.

Example:
  xmlbtool query-file out.silo query.xpath
`

func cmdQuery(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("query", flag.ExitOnError)
	limit := fset.Int("limit", 0, "maximum number of results (0 = unlimited)")
	reverse := fset.Bool("reverse", false, "reverse the enumeration order of terminal results")
	fset.Usage = usage(fset, queryHelp)
	fset.Parse(args)
	if fset.NArg() != 2 {
		fset.Usage()
		return fmt.Errorf("query: expected <silo-path> <xpath>")
	}
	return runQuery(ctx, fset.Arg(0), fset.Arg(1), *limit, *reverse)
}

func cmdQueryFile(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("query-file", flag.ExitOnError)
	limit := fset.Int("limit", 0, "maximum number of results (0 = unlimited)")
	reverse := fset.Bool("reverse", false, "reverse the enumeration order of terminal results")
	fset.Usage = usage(fset, queryFileHelp)
	fset.Parse(args)
	if fset.NArg() != 2 {
		fset.Usage()
		return fmt.Errorf("query-file: expected <silo-path> <xpath-file>")
	}
	b, err := ioutil.ReadFile(fset.Arg(1))
	if err != nil {
		return err
	}
	return runQuery(ctx, fset.Arg(0), strings.TrimSpace(string(b)), *limit, *reverse)
}

func runQuery(ctx context.Context, siloPath, xpath string, limit int, reverse bool) error {
	run := func() error {
		s, err := xmlsilo.Open(siloPath, compileFlags())
		if err != nil {
			return err
		}
		defer s.Close()
		if *profileFlag {
			s.EnableProfiling()
		}

		var flags xmlsilo.QueryFlag
		if reverse {
			flags |= xmlsilo.Reverse
		}
		q, err := s.Compile(xpath, flags, nil)
		if err != nil {
			return err
		}
		results, err := q.ExecuteRoot(xmlsilo.QueryContext{Limit: limit})
		if err != nil {
			return err
		}
		for _, n := range results {
			printNode(n, 0)
		}
		logVerbose("query %q: %d result(s)", xpath, len(results))
		if *profileFlag {
			fmt.Print(s.ProfileString())
		}
		return nil
	}

	if !*waitFlag {
		return run()
	}
	for {
		if err := run(); err != nil {
			return err
		}
		changed := make(chan struct{})
		xmlsilo.WatchFile(ctx, siloPath, func() { close(changed) })
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
		}
	}
}
