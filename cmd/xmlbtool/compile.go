package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/xmlsilo/xmlsilo"
)

const compileHelp = `xmlbtool compile [-flags] -o <out-path> <source-path>...

Compile one or more XML sources into a silo file.

Example:
  xmlbtool compile -o out.silo components.xml
  xmlbtool -tokenize id compile -o out.silo components.xml
`

func cmdCompile(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("compile", flag.ExitOnError)
	out := fset.String("o", "", "output silo path (required)")
	singleRoot := fset.Bool("single-root", false, "reject compiles producing more than one root element")
	fset.Usage = usage(fset, compileHelp)
	fset.Parse(args)
	if *out == "" || fset.NArg() == 0 {
		fset.Usage()
		return fmt.Errorf("compile: -o and at least one source path are required")
	}

	b := &xmlsilo.Builder{Flags: compileFlags()}
	if *singleRoot {
		b.Flags |= xmlsilo.SingleRoot
	}
	for _, path := range fset.Args() {
		b.AddSource(xmlsilo.Source{Path: path})
	}
	if *tokenizeFlag != "" {
		element := *tokenizeFlag
		b.GlobalFixups = append(b.GlobalFixups, xmlsilo.Fixup{
			ID:       "tokenize-" + element,
			MaxDepth: -1,
			Func: func(bn *xmlsilo.BuilderNode) error {
				if bn.Element() == element {
					bn.TokenizeText()
				}
				return nil
			},
		})
	}

	s, err := b.Ensure(ctx, *out)
	if err != nil {
		return err
	}
	defer s.Close()
	stats := s.Stats()
	logVerbose("compiled %s: %d node(s), guid=%x", *out, stats.NodeCount, s.GUID())
	return nil
}
