// Command segtool decodes, re-encodes and previews DICOM Segmentation
// objects against their reference series.
//
// Usage:
//
//	segtool decode  [-config file] -seg seg.dcm ref1.dcm ref2.dcm ...
//	segtool encode  [-config file] [-rle] -seg seg.dcm -out out.dcm ref...
//	segtool preview [-config file] -seg seg.dcm -image 0 [-background bg.png] -out slice.png ref...
//	segtool config  -out segtool.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, args []string) error
}

var commands = []command{
	{"decode", "decode a segmentation and print its labelmap summary", runDecode},
	{"encode", "decode a segmentation and write it back out", runEncode},
	{"preview", "render one labelmap slice as PNG", runPreview},
	{"config", "write the default configuration file", runConfig},
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: segtool <command> [flags] [reference images...]")
	fmt.Fprintln(os.Stderr)
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-8s %s\n", c.name, c.summary)
	}
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, c := range commands {
		if c.name != os.Args[1] {
			continue
		}
		err := c.run(ctx, os.Args[2:])
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "segtool %s: %v\n", c.name, err)
			os.Exit(1)
		}
		return
	}

	fmt.Fprintf(os.Stderr, "segtool: unknown command %q\n\n", os.Args[1])
	usage()
	os.Exit(2)
}
