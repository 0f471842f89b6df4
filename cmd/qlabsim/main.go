// Command qlabsim serves a fake QLab OSC endpoint so the controller can be
// developed and demonstrated without a show machine.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/remote-cue-control/backend/internal/qlab"
)

func main() {
	listen := flag.String("listen", "127.0.0.1:53000", "UDP address to serve OSC on")
	showPath := flag.String("show", "", "YAML file describing workspaces and cues")
	passcode := flag.String("passcode", "", "passcode required by the sample workspace")
	touch := flag.Duration("touch", 0, "push a cue list update at this interval (0 disables)")
	verbose := flag.Bool("v", false, "log every request")
	flag.Parse()

	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	workspaces := sampleShow()
	if *showPath != "" {
		loaded, err := loadShow(*showPath)
		if err != nil {
			log.Fatal("Failed to load show", "err", err)
		}
		workspaces = loaded
	} else if *passcode != "" {
		workspaces[0].Passcode = *passcode
	}

	sim := qlab.NewSimulator(workspaces...)
	sim.OnMessage = func(from net.Addr, address string, args []any) {
		log.Debug("request", "from", from, "address", address, "args", fmt.Sprint(args))
	}
	if err := sim.Listen(*listen); err != nil {
		log.Fatal("Failed to listen", "addr", *listen, "err", err)
	}

	for _, ws := range workspaces {
		log.Info("Serving workspace", "id", ws.ID, "name", ws.Name, "cues", len(ws.Cues), "locked", ws.Passcode != "")
	}
	log.Infof("Listening on %s", sim.Addr())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *touch > 0 {
		go touchLoop(ctx, sim, workspaces, *touch)
	}

	if err := sim.Serve(ctx); err != nil && ctx.Err() == nil {
		log.Error("Simulator stopped", "err", err)
		os.Exit(1)
	}
	log.Info("Shutting down")
}

// touchLoop pushes an update for every workspace so connected controllers
// refetch their cue lists.
func touchLoop(ctx context.Context, sim *qlab.Simulator, workspaces []*qlab.SimWorkspace, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, ws := range workspaces {
				if sim.Subscribers(ws.ID) == 0 {
					continue
				}
				sim.PushUpdate(ws.ID, "")
				log.Debug("Pushed update", "workspace", ws.ID)
			}
		}
	}
}
