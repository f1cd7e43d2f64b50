package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/xmlsilo/xmlsilo"
)

const dumpHelp = `xmlbtool dump [-flags] <silo-path>

Print a compiled silo's size accounting and node tree.

Example:
  xmlbtool dump out.silo
`

func cmdDump(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("dump", flag.ExitOnError)
	fset.Usage = usage(fset, dumpHelp)
	fset.Parse(args)
	if fset.NArg() != 1 {
		fset.Usage()
		return fmt.Errorf("dump: expected exactly one silo path")
	}
	path := fset.Arg(0)

	run := func() error {
		s, err := xmlsilo.Open(path, compileFlags())
		if err != nil {
			return err
		}
		defer s.Close()
		stats := s.Stats()
		fmt.Printf("guid=%x nodes=%d strtab_bytes=%d file_bytes=%d\n",
			s.GUID(), stats.NodeCount, stats.StrtabSize, stats.FileSize)
		root, ok := s.Root()
		if !ok {
			fmt.Println("(empty silo)")
			return nil
		}
		printNode(root, 0)
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
		xmlsilo.WatchFile(ctx, path, func() { close(changed) })
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
		}
	}
}

func printNode(n xmlsilo.Node, depth int) {
	indent := strings.Repeat("  ", depth)
	attrs := ""
	for _, a := range n.Attrs() {
		attrs += fmt.Sprintf(" %s=%q", a[0], a[1])
	}
	fmt.Printf("%s<%s%s>", indent, n.Element(), attrs)
	if text, ok := n.Text(); ok {
		fmt.Printf(" text=%q", text)
	}
	fmt.Println()
	for _, c := range n.Children() {
		printNode(c, depth+1)
	}
}
