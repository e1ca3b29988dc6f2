package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	nodeID := flag.String("node", hostnameNodeID(), "node identifier")
	storePath := flag.String("store", "tankwar.db", "path to the shared store database")
	publicURL := flag.String("public-url", "", "public URL other nodes redirect players to")
	logPath := flag.String("log", "tankwar.log", "log file path")
	flag.Parse()

	InitLogger(*logPath)
	defer SyncLogger()

	store, err := OpenStore(*storePath)
	if err != nil {
		Log.Fatalw("open shared store", "err", err)
	}
	defer store.Close()

	grid := NewGrid()
	rewards := NewAsyncRewarder(nil)
	defer rewards.Close()

	rooms := NewRoomRegistry(grid, rewards)
	arbiter := NewSessionArbiter(store)
	tickets := NewTicketIssuer(store)

	hub := NewHub(rooms, arbiter, tickets, PassthroughIdentity{}, grid, *publicURL)
	mm := NewMatchmaker(store, store, tickets, rooms, hub, grid, *nodeID, *publicURL)
	hub.SetMatchmaker(mm)
	rooms.SetIdleHandler(func(connID string) {
		hub.ForceDisconnect(connID, "idle timeout")
	})

	go hub.Run()

	server := &http.Server{Addr: *addr, Handler: SetupRoutes(hub)}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		Log.Infow("server starting", "addr", *addr, "node", *nodeID)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		rooms.Run()
		return nil
	})
	g.Go(func() error {
		mm.Run()
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		Log.Infow("shutting down")
		rooms.Stop()
		mm.Stop()
		return server.Close()
	})

	if err := g.Wait(); err != nil {
		Log.Errorw("server exited", "err", err)
	}
}

func hostnameNodeID() string {
	host, err := os.Hostname()
	if err != nil {
		return "node-" + GenerateID(3)
	}
	return host + "-" + GenerateID(2)
}
