package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/NicolasHaas/gohall/pkg/client"
	"github.com/NicolasHaas/gohall/pkg/logging"
	"github.com/NicolasHaas/gohall/pkg/version"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:34567", "Game hall address")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Banner("gohall-client"))
		return
	}

	// Log level and format come from GOHALL_LOG_LEVEL / GOHALL_LOG_FORMAT.
	if err := logging.Setup(logging.FromEnv(os.Stderr)); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	display := client.NewDisplay(os.Stdout)
	c, err := client.Dial(ctx, *addr)
	if err != nil {
		slog.Error("connect", "addr", *addr, "err", err)
		os.Exit(1)
	}
	defer c.Close()

	c.SetLineHandler(display.PrintLine)
	c.StartReceiving()

	go func() {
		if err := c.Pump(os.Stdin); err != nil {
			slog.Debug("stdin pump stopped", "err", err)
		}
	}()

	select {
	case <-c.Done():
		display.PrintStatus("disconnected from " + *addr)
	case <-ctx.Done():
		_ = c.Send("$quit")
		display.PrintStatus("bye")
	}
}
