package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	sddaemon "github.com/coreos/go-systemd/v22/daemon"

	"docjobs/internal/app"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./docjobs.yaml", "path to config yaml/json")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfgPath)
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}

	if err := a.Start(); err != nil {
		fmt.Println("fatal start:", err)
		os.Exit(1)
	}

	// No-op outside systemd units.
	_, _ = sddaemon.SdNotify(false, sddaemon.SdNotifyReady)

	<-ctx.Done()

	_, _ = sddaemon.SdNotify(false, sddaemon.SdNotifyStopping)
	a.Stop()
}
