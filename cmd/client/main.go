package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/dmitrijs2005/marketkeeper/internal/client/app"
	"github.com/dmitrijs2005/marketkeeper/internal/client/cli"
	"github.com/dmitrijs2005/marketkeeper/internal/client/config"
)

const shutdownTimeout = 5 * time.Second

func main() {
	displayAppname(config.AppName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	cfg := config.LoadConfig()
	core, err := app.Init(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		cli.NewApp(core, os.Stdin, os.Stdout).Run(ctx)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		fmt.Println()
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := core.Shutdown(sctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
