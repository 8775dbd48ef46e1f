// clusterlibctl is a thin inspection CLI over the Client Facade: list
// a Notifyable's children, dump a lock's bid nodes, or drain a queue.
// Explicitly not part of the coordination substrate — an outer
// consumer the way the teacher's cmd/cli consumes package ais.
//
// Grounded on cmd/cli/commands's urfave/cli command shape (subcommand
// functions taking *cli.Context, flag-driven required arguments).
/*
 * Copyright (c) 2024, clusterlib Authors. All rights reserved.
 */
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli"

	"github.com/clusterlib/clusterlib"
	"github.com/clusterlib/clusterlib/lock"
	"github.com/clusterlib/clusterlib/notifyable"
	"github.com/clusterlib/clusterlib/queue"
)

var hostsFlag = cli.StringFlag{
	Name:   "hosts",
	Usage:  "comma-separated store ensemble host list",
	EnvVar: "CLUSTERLIB_HOSTS",
}

func main() {
	app := cli.NewApp()
	app.Name = "clusterlibctl"
	app.Usage = "inspect a clusterlib-coordinated cluster"
	app.Flags = []cli.Flag{hostsFlag}
	app.Commands = []cli.Command{
		lsCommand,
		lockBidsCommand,
		queueDrainCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openLibrary(c *cli.Context) (*clusterlib.Library, error) {
	hosts := c.GlobalString("hosts")
	if hosts == "" {
		return nil, cli.NewExitError("missing --hosts", 1)
	}
	return clusterlib.Open(clusterlib.Config{Hosts: hosts, SessionTimeout: 10 * time.Second})
}

var lsCommand = cli.Command{
	Name:      "ls",
	Usage:     "list the children directly under a Notifyable key",
	ArgsUsage: "KEY",
	Action: func(c *cli.Context) error {
		key := c.Args().First()
		if key == "" {
			key = notifyable.RootPath
		}
		lib, err := openLibrary(c)
		if err != nil {
			return err
		}
		defer lib.Close()

		for _, kind := range []notifyable.Kind{
			notifyable.KindApplication, notifyable.KindGroup, notifyable.KindNode,
			notifyable.KindProcessSlot, notifyable.KindDataDistribution,
			notifyable.KindPropertyList, notifyable.KindQueue,
		} {
			dir := key + "/" + kind.DirToken()
			names, err := lib.Registry().GetChildrenNames(dir)
			if err != nil {
				continue
			}
			for _, name := range names {
				fmt.Printf("%s/%s\n", kind.DirToken(), name)
			}
		}
		return nil
	},
}

var lockBidsCommand = cli.Command{
	Name:      "lock-bids",
	Usage:     "dump the outstanding bid nodes for a Notifyable's lock",
	ArgsUsage: "KEY LOCK_NAME",
	Action: func(c *cli.Context) error {
		if c.NArg() < 2 {
			return cli.NewExitError("usage: lock-bids KEY LOCK_NAME", 1)
		}
		lib, err := openLibrary(c)
		if err != nil {
			return err
		}
		defer lib.Close()

		l := lib.NewLock(lock.NewOwnerID(), c.Args().Get(0), c.Args().Get(1))
		bids, err := l.GetLockBids()
		if err != nil {
			return err
		}
		for _, b := range bids {
			fmt.Println(b)
		}
		return nil
	},
}

var queueDrainCommand = cli.Command{
	Name:      "queue-drain",
	Usage:     "print and remove every element currently on a queue",
	ArgsUsage: "KEY",
	Action: func(c *cli.Context) error {
		if c.NArg() < 1 {
			return cli.NewExitError("usage: queue-drain KEY", 1)
		}
		lib, err := openLibrary(c)
		if err != nil {
			return err
		}
		defer lib.Close()

		q := queue.New(lib.Registry().Store(), lib.Signals(), c.Args().First())
		elements, err := q.GetAllElements()
		if err != nil {
			return err
		}
		for id, data := range elements {
			fmt.Printf("%d: %s\n", id, data)
			if err := q.RemoveElement(id); err != nil {
				fmt.Fprintf(os.Stderr, "remove %d: %v\n", id, err)
			}
		}
		return nil
	},
}
