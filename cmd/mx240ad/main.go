package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/atotto/clipboard"
	"github.com/fatih/color"
	"github.com/karalabe/hid"
	"github.com/op/go-logging"
	"github.com/urfave/cli/v2"

	"github.com/joecharamut/mx240a-driver/internal/base"
	"github.com/joecharamut/mx240a-driver/internal/codec"
	"github.com/joecharamut/mx240a-driver/internal/config"
	"github.com/joecharamut/mx240a-driver/internal/driver"
	"github.com/joecharamut/mx240a-driver/internal/example"
	mxlog "github.com/joecharamut/mx240a-driver/internal/logging"
	"github.com/joecharamut/mx240a-driver/internal/transport"
)

func printErr(format string, args ...interface{}) {
	color.New(color.FgRed).Fprintf(os.Stderr, format+"\n", args...)
}

func printFatal(format string, args ...interface{}) {
	printErr(format, args...)
	os.Exit(1)
}

func devicesCommand(c *cli.Context) error {
	infos, err := hid.Enumerate(config.VendorID, config.ProductID)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Println("no base station found")
		return nil
	}
	for _, info := range infos {
		color.New(color.FgGreen).Printf("%s\n", info.Path)
		fmt.Printf("  manufacturer: %s\n", info.Manufacturer)
		fmt.Printf("  product:      %s\n", info.Product)
		fmt.Printf("  serial:       %s\n", info.Serial)
		if c.Bool("copy") && info.Serial != "" {
			if err := clipboard.WriteAll(info.Serial); err == nil {
				fmt.Println("  (copied serial to clipboard)")
			}
		}
	}
	return nil
}

// ringtoneOver parses an RTTTL string and writes its device byte encoding
// to out; split from ringtoneCommand so tests can check the output without
// going through the cli.Context/os.Stdout plumbing.
func ringtoneOver(rtttl string, out io.Writer) error {
	tone, err := codec.ParseRTTTL(rtttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, codec.HexDump(tone.Bytes))
	return nil
}

func ringtoneCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: mx240ad ringtone <rtttl-text>", 1)
	}
	if err := ringtoneOver(c.Args().Get(0), os.Stdout); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return nil
}

func runCommand(c *cli.Context) error {
	log := mxlog.Setup("mx240ad", logging.INFO)
	log.Infof("mx240a-driver %s starting", config.Version)

	tr, err := transport.Open(log)
	if err != nil {
		printFatal("failed to open base station: %v", err)
	}
	b := base.New(tr, log)
	defer b.Close()

	manager := example.NewManager()
	svc := example.NewService(" AIM  ")
	d := driver.New(b, manager, svc, log)

	stop := make(chan struct{})
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Notice("shutting down")
		close(stop)
	}()

	return d.Run(stop)
}

func main() {
	app := cli.NewApp()
	app.Name = "mx240ad"
	app.Usage = "host-side driver for the MX240a USB-HID base station"
	app.Version = config.Version.String()
	app.Commands = []*cli.Command{
		{
			Name:  "devices",
			Usage: "enumerate attached base stations",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "copy", Usage: "copy the discovered base station's serial to the clipboard"},
			},
			Action: devicesCommand,
		},
		{
			Name:      "ringtone",
			Usage:     "preview the device byte encoding of an RTTTL tone string",
			ArgsUsage: "<rtttl-text>",
			Action:    ringtoneCommand,
		},
		{
			Name:   "run",
			Usage:  "run the driver against real hardware with the in-memory example Service/HandheldManager",
			Action: runCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		printFatal("%v", err)
	}
}
