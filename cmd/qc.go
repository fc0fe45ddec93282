// elQC: a streaming quality-control tool for sequencing data files.
// Copyright (c) 2021-2022 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/elqc/blob/master/LICENSE.txt>.

package cmd

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/exascience/elqc/internal"
	"github.com/exascience/elqc/pipeline"
	"github.com/exascience/elqc/qc"
)

// QcHelp is the help string for this command.
const QcHelp = "qc parameters:\n" +
	"elqc qc file...\n" +
	"[--profile yaml-file]\n" +
	"[--warn-margin fraction]\n" +
	"[--max-skipped fraction]\n" +
	"[--timeout seconds]\n" +
	"[--nr-of-threads nr]\n" +
	"[--output file]\n" +
	"[--format [json | text]]\n" +
	"[--log-path path]\n" +
	"[--strict]\n"

// Qc implements the elqc qc command.
func Qc() error {
	var (
		profileFile, output, outputFormat, logPath string
		warnMargin, maxSkipped, timeout            float64
		nrOfThreads                                int
		strict                                     bool
	)

	var flags flag.FlagSet

	flags.StringVar(&profileFile, "profile", "", "YAML threshold profile")
	flags.Float64Var(&warnMargin, "warn-margin", -1, "warn margin relative to a threshold bound")
	flags.Float64Var(&maxSkipped, "max-skipped", -1, "tolerated fraction of skipped records per file")
	flags.Float64Var(&timeout, "timeout", 0, "time limit per file in seconds")
	flags.IntVar(&nrOfThreads, "nr-of-threads", 0, "number of worker threads")
	flags.StringVar(&output, "output", "", "report output file")
	flags.StringVar(&outputFormat, "format", "text", "report output format")
	flags.StringVar(&logPath, "log-path", "", "write log files to the specified directory")
	flags.BoolVar(&strict, "strict", false, "fail the run when any file fails quality control")

	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Incorrect number of parameters.")
		fmt.Fprint(os.Stderr, QcHelp)
		os.Exit(1)
	}

	files, flagsIndex := getFilenames(2, QcHelp)

	if err := flags.Parse(os.Args[flagsIndex:]); err != nil {
		x := 0
		if err != flag.ErrHelp {
			fmt.Fprintln(os.Stderr, err)
			x = 1
		}
		fmt.Fprint(os.Stderr, QcHelp)
		os.Exit(x)
	}
	if flags.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Cannot parse remaining parameters:", flags.Args())
		fmt.Fprint(os.Stderr, QcHelp)
		os.Exit(1)
	}

	setLogOutput(logPath)

	// sanity checks

	var sanityChecksFailed bool

	for _, file := range files {
		if !checkExist("", file) {
			sanityChecksFailed = true
		}
	}

	switch strings.ToLower(outputFormat) {
	case "json", "text":
		outputFormat = strings.ToLower(outputFormat)
	default:
		log.Printf("Error: Invalid report output format %v.\n", outputFormat)
		sanityChecksFailed = true
	}

	if nrOfThreads < 0 {
		log.Println("Error: Invalid nr-of-threads: ", nrOfThreads)
		sanityChecksFailed = true
	}

	if timeout < 0 {
		log.Println("Error: Invalid timeout: ", timeout)
		sanityChecksFailed = true
	}

	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, QcHelp)
		os.Exit(1)
	}

	// A broken threshold profile aborts the whole run before any file
	// is opened.

	profile := qc.DefaultProfile()
	if profileFile != "" {
		var err error
		if profile, err = qc.LoadProfile(profileFile); err != nil {
			return err
		}
	}
	if warnMargin >= 0 {
		if warnMargin >= 1 {
			return qc.NewError(qc.ThresholdConfig, "warn-margin %v outside [0,1)", warnMargin)
		}
		profile.WarnMargin = warnMargin
	}
	if maxSkipped >= 0 {
		if maxSkipped > 1 {
			return qc.NewError(qc.ThresholdConfig, "max-skipped %v outside [0,1]", maxSkipped)
		}
		profile.MaxSkippedFraction = maxSkipped
	}

	// building output command line

	var command bytes.Buffer
	fmt.Fprint(&command, os.Args[0], " qc ", strings.Join(files, " "))
	if profileFile != "" {
		fmt.Fprint(&command, " --profile ", profileFile)
	}
	if warnMargin >= 0 {
		fmt.Fprint(&command, " --warn-margin ", warnMargin)
	}
	if maxSkipped >= 0 {
		fmt.Fprint(&command, " --max-skipped ", maxSkipped)
	}
	if timeout > 0 {
		fmt.Fprint(&command, " --timeout ", timeout)
	}
	if nrOfThreads > 0 {
		runtime.GOMAXPROCS(nrOfThreads)
		fmt.Fprint(&command, " --nr-of-threads ", nrOfThreads)
	}
	if output != "" {
		fmt.Fprint(&command, " --output ", output)
	}
	fmt.Fprint(&command, " --format ", outputFormat)
	if logPath != "" {
		fmt.Fprint(&command, " --log-path ", logPath)
	}
	if strict {
		fmt.Fprint(&command, " --strict")
	}

	// executing command

	log.Println("Executing command:\n", command.String())

	opts := pipeline.Options{
		Timeout: time.Duration(timeout * float64(time.Second)),
		Threads: nrOfThreads,
	}
	start := time.Now()
	reports := pipeline.RunBatch(context.Background(), files, profile, opts, nrOfThreads)
	log.Println("Elapsed time: ", time.Since(start))

	var w io.Writer = os.Stdout
	if output != "" {
		f := internal.FileCreate(output)
		defer internal.Close(f)
		w = f
	}
	if err := writeReports(w, reports, outputFormat); err != nil {
		return err
	}

	var failed int
	for _, report := range reports {
		if report.Failed() {
			failed++
			log.Printf("File %v failed quality control.\n", report.File)
		}
	}
	log.Printf("%v of %v files failed quality control.\n", failed, len(reports))
	if strict && failed > 0 {
		return fmt.Errorf("%v of %v files failed quality control", failed, len(reports))
	}
	return nil
}

func writeReports(w io.Writer, reports []*qc.Report, format string) error {
	if format == "json" {
		return qc.WriteReportsJSON(w, reports)
	}
	for _, report := range reports {
		if err := report.WriteText(w); err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return nil
}
