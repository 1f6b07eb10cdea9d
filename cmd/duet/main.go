package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"
)

type Options struct {
	Config string `short:"c" long:"config" description:"Path to a TOML configuration file"`
	Debug  bool   `long:"debug" description:"Log at debug level"`
}

type InitiateCommand struct {
	Peer string `long:"peer" description:"Identity of the peer expected to answer"`
}

func (cmd *InitiateCommand) Execute(args []string) error {
	return run(roleInitiator, cmd.Peer)
}

type RespondCommand struct{}

func (cmd *RespondCommand) Execute(args []string) error {
	return run(roleResponder, "")
}

var opts Options

func main() {
	parser := flags.NewParser(&opts, flags.Default)
	parser.AddCommand("initiate", "Create an offer token and wait for the answer", "", &InitiateCommand{})
	parser.AddCommand("respond", "Answer an offer token pasted from the other peer", "", &RespondCommand{})

	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return
		}
		os.Exit(1)
	}
}

func run(r role, peer string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer app.close()

	return app.run(ctx, r, peer)
}
