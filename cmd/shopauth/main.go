package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/aussiebroadwan/shopauth/internal/shop/app"
)

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, cfg app.Config, args []string, stdout io.Writer) error
}

var commands = []command{
	{"token", "print a valid access token summary, refreshing if needed", runToken},
	{"refresh", "force a token refresh and persist the result", runRefresh},
	{"orders", "search orders by create time", runOrders},
	{"callback", "catch one authorization redirect and print the code", runCallback},
	{"sign", "print the signed parameters for a request", runSign},
	{"keepalive", "keep the access token fresh until interrupted", runKeepalive},
	{"diag", "find which signing scheme the platform accepts", runDiag},
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	cmd, ok := lookup(os.Args[1])
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage(os.Stderr)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := app.LoadConfig()
	if err := cmd.run(ctx, cfg, os.Args[2:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		var uerr usageError
		if errors.As(err, &uerr) {
			fmt.Fprintf(os.Stderr, "%s: %v\n", cmd.name, err)
			os.Exit(2)
		}
		stop()
		log.Fatalf("%s: %v", cmd.name, err)
	}
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "usage: shopauth <command> [flags]\n\ncommands:\n")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-10s %s\n", c.name, c.summary)
	}
}

// usageError marks bad flags or arguments.
type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return usageError{msg: fmt.Sprintf(format, args...)}
}
