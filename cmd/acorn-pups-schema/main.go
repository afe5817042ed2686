// Command acorn-pups-schema prints the validated table catalog, either as YAML or as a table
// of record key patterns.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/acorn-pups/dbinfra"
	"github.com/acorn-pups/dbinfra/pkg/schema"
)

const (
	formatYAML = "yaml"
	formatKeys = "keys"
)

func main() {
	os.Exit(run())
}

func run() int {
	var format, out string
	flag.StringVar(&format, "format", formatYAML, "output format: yaml or keys")
	flag.StringVar(&out, "out", "", "write to this file instead of stdout")
	flag.Parse()

	catalog, err := schema.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "acorn-pups-schema: FAIL: %v\n", err)
		return dbinfra.ExitFailed
	}

	w := io.Writer(os.Stdout)
	if out != "" {
		//nolint:gosec // Output path is supplied by the operator.
		f, err := os.Create(out)
		if err != nil {
			fmt.Fprintf(os.Stderr, "acorn-pups-schema: FAIL: %v\n", err)
			return dbinfra.ExitFailed
		}
		defer f.Close()
		w = f
	}

	if err := write(w, catalog, format); err != nil {
		fmt.Fprintf(os.Stderr, "acorn-pups-schema: FAIL: %v\n", err)
		return dbinfra.ExitCode(err)
	}
	return dbinfra.ExitOK
}

func write(w io.Writer, c schema.Catalog, format string) error {
	switch format {
	case formatYAML:
		return c.WriteYAML(w)
	case formatKeys:
		return writeKeys(w, c)
	default:
		return dbinfra.NewError(dbinfra.ErrorCodeInvalidConfig, format, "format must be yaml or keys")
	}
}

func writeKeys(w io.Writer, c schema.Catalog) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TABLE\tRECORD\tPK\tSK")
	for _, t := range c.Tables {
		for _, r := range t.Records {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.Entity, r.Kind, r.PartitionKeyPattern, r.SortKeyPattern)
		}
	}
	return tw.Flush()
}
