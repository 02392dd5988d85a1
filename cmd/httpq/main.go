// Copyright 2021 The httpq Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Command httpq fetches URLs through a priority request scheduler.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
)

const version = "1.0.0"

func main() {
	if err := execute(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "httpq:", err)
		os.Exit(1)
	}
}

func execute(args []string) error {
	app := cli.App{
		Name:      "httpq",
		HelpName:  "httpq",
		Usage:     "fetch URLs through a priority request scheduler",
		Version:   version,
		UsageText: "httpq [global options] <command> [arguments...]",
		Flags:     globalFlags,
		Commands: []cli.Command{
			{
				Name:      "fetch",
				Aliases:   []string{"f"},
				Usage:     "download one or more URLs",
				ArgsUsage: "URL [URL...]",
				Action:    fetch,
				Flags:     fetchFlags,
			},
			{
				Name:    "probe",
				Aliases: []string{"p"},
				Usage:   "find an access point which reaches the internet",
				Action:  probe,
				Flags:   probeFlags,
			},
		},
	}
	return app.Run(args)
}
