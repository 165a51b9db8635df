// Copyright (C) The RepSeq Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package repseq

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/klauspost/pgzip"
	log "github.com/sirupsen/logrus"
)

// merger combines several gob datasets into one. Sample IDs must be
// unique across all inputs; a collision is an error, not a silent
// overwrite, because repertoires with the same ID but different
// content cannot be reconciled after import.
type merger struct {
	mtx sync.Mutex
	ds  *Dataset
}

func (cmd *merger) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	outputFilename := flags.String("o", "-", "output `file`")
	loglevel := flags.String("loglevel", "info", "logging threshold (trace, debug, info, warn, error, fatal, or panic)")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	} else if flags.NArg() == 0 {
		flags.Usage()
		return 2
	}
	lvl, err := log.ParseLevel(*loglevel)
	if err != nil {
		return 2
	}
	log.SetLevel(lvl)

	cmd.ds = &Dataset{}
	throttle := throttle{Max: len(flags.Args())}
	for _, input := range flags.Args() {
		input := input
		throttle.Acquire()
		go func() {
			defer throttle.Release()
			log.Printf("%s: reading", input)
			f, err := os.Open(input)
			if err != nil {
				throttle.Report(err)
				return
			}
			defer f.Close()
			err = DecodeDataset(f, strings.HasSuffix(input, ".gz"), func(ent *DatasetEntry) error {
				for i := range ent.Repertoires {
					rep := ent.Repertoires[i]
					cmd.mtx.Lock()
					err := cmd.ds.add(&rep)
					cmd.mtx.Unlock()
					if err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				throttle.Report(fmt.Errorf("%s: %w", input, err))
				return
			}
			log.Printf("%s: done", input)
		}()
	}
	err = throttle.Wait()
	if err != nil {
		return 1
	}
	log.Printf("merged %d samples", cmd.ds.Len())

	var output io.WriteCloser
	if *outputFilename == "-" {
		output = nopCloser{stdout}
	} else {
		output, err = os.OpenFile(*outputFilename, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0777)
		if err != nil {
			return 1
		}
		defer output.Close()
	}
	bufw := bufio.NewWriter(output)
	var w io.Writer = bufw
	var zw *pgzip.Writer
	if strings.HasSuffix(*outputFilename, ".gz") {
		zw = pgzip.NewWriter(bufw)
		w = zw
	}
	err = encodeDataset(w, cmd.ds.Repertoires())
	if err != nil {
		return 1
	}
	if zw != nil {
		err = zw.Close()
		if err != nil {
			return 1
		}
	}
	err = bufw.Flush()
	if err != nil {
		return 1
	}
	err = output.Close()
	if err != nil {
		return 1
	}
	return 0
}
