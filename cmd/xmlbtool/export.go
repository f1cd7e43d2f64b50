package main

import (
	"context"
	"encoding/xml"
	"flag"
	"fmt"
	"os"

	"github.com/xmlsilo/xmlsilo"
)

const exportHelp = `xmlbtool export [-flags] <silo-path>

Re-render a compiled silo's tree as XML on stdout, for inspecting what
survived compilation (locale filtering, fixups, whitespace repair).

Example:
  xmlbtool export out.silo > roundtrip.xml
`

func cmdExport(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("export", flag.ExitOnError)
	fset.Usage = usage(fset, exportHelp)
	fset.Parse(args)
	if fset.NArg() != 1 {
		fset.Usage()
		return fmt.Errorf("export: expected exactly one silo path")
	}

	s, err := xmlsilo.Open(fset.Arg(0), compileFlags())
	if err != nil {
		return err
	}
	defer s.Close()

	enc := xml.NewEncoder(os.Stdout)
	enc.Indent("", "  ")
	root, ok := s.Root()
	if !ok {
		return nil
	}
	if err := encodeNode(enc, root); err != nil {
		return err
	}
	return enc.Flush()
}

func encodeNode(enc *xml.Encoder, n xmlsilo.Node) error {
	start := xml.StartElement{Name: xml.Name{Local: n.Element()}}
	for _, a := range n.Attrs() {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: a[0]}, Value: a[1]})
	}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	if text, ok := n.Text(); ok {
		if err := enc.EncodeToken(xml.CharData(text)); err != nil {
			return err
		}
	}
	for _, c := range n.Children() {
		if err := encodeNode(enc, c); err != nil {
			return err
		}
	}
	if err := enc.EncodeToken(xml.EndElement{Name: start.Name}); err != nil {
		return err
	}
	if tail, ok := n.Tail(); ok {
		if err := enc.EncodeToken(xml.CharData(tail)); err != nil {
			return err
		}
	}
	return nil
}
