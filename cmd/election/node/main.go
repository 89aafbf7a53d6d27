package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"raft-election/internal/admin"
	"raft-election/internal/cluster"
	"raft-election/internal/election"
	"raft-election/internal/election/journal"
	"raft-election/internal/election/metrics"
	"raft-election/internal/election/transport"
	"raft-election/internal/pubsub"
)

func main() {
	id := flag.Int64("id", 0, "ID of this node")
	clusterFile := flag.String("cluster", "", "JSON cluster file (optional, defaults to a local cluster)")
	size := flag.Int("size", 3, "Number of nodes of the local cluster, ignored with -cluster")
	basePort := flag.Int("base-port", 50051, "First gRPC port of the local cluster, ignored with -cluster")
	port := flag.Int("port", 0, "gRPC port to listen on, overrides the cluster address")
	adminAddr := flag.String("admin", "", "Listen address of the admin HTTP API, e.g. :8080 (overrides the cluster file)")
	journalPath := flag.String("journal", "", "Path of the bbolt election journal, empty disables it")
	roundTimeout := flag.Duration("round-timeout", 0, "Deadline of an election round (default 150ms)")
	campaignAfter := flag.Duration("campaign-after", 0, "Start one election this long after boot, 0 disables it")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	level, err := log.ParseLevel(*logLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	var members *cluster.Config
	if *clusterFile != "" {
		members, err = cluster.Load(*clusterFile)
		if err != nil {
			log.Fatalf("Failed to load cluster: %v", err)
		}
	} else {
		members = cluster.Local(*size, *basePort)
	}

	nodeID := election.NodeID(*id)
	self, err := members.Server(nodeID)
	if err != nil {
		log.Fatalf("Invalid node id: %v", err)
	}

	listenAddr := self.Address
	if *port != 0 {
		listenAddr = fmt.Sprintf(":%d", *port)
	}
	if *adminAddr != "" {
		self.Admin = *adminAddr
	}

	cfg := election.DefaultConfig()
	if members.RoundTimeout > 0 {
		cfg.RoundTimeout = time.Duration(members.RoundTimeout)
	}
	if *roundTimeout > 0 {
		cfg.RoundTimeout = *roundTimeout
	}

	m := metrics.NewMetrics()
	cfg.Metrics = m

	// The journal is optional, an untyped nil keeps the admin routes disabled
	var journalReader admin.JournalReader
	if *journalPath != "" {
		j, err := journal.NewBboltJournal(*journalPath)
		if err != nil {
			log.Fatalf("Failed to open journal: %v", err)
		}
		defer j.Close()
		cfg.Journal = j
		journalReader = j
	}

	bus := pubsub.NewPubSub()
	defer bus.GracefulShutdown()
	cfg.PubSub = bus
	go logRoleChanges(bus)

	tr := transport.NewTransport(members.PeersOf(nodeID))
	defer tr.CloseAllClients()

	node := election.NewNode(nodeID, tr.Peers(), cfg)
	defer node.Stop()

	lis, err := net.Listen("tcp", listenAddr)
	if err != nil {
		log.Fatalf("Failed to listen on %s: %v", listenAddr, err)
	}
	srv := transport.NewServer(node)
	go func() {
		if err := srv.Serve(lis); err != nil {
			log.Errorf("gRPC server stopped: %v", err)
		}
	}()
	defer srv.GracefulStop()

	var httpServer *http.Server
	if self.Admin != "" {
		httpServer = &http.Server{
			Addr:              self.Admin,
			Handler:           admin.NewAPI(node, m, journalReader).Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Infof("[ADMIN] Listening on %s", self.Admin)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("[ADMIN] Server stopped: %v", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithField("node", nodeID).Infof("Node started with %d peers, round timeout %v", len(tr.Peers()), cfg.RoundTimeout)

	if *campaignAfter > 0 {
		go func() {
			select {
			case <-time.After(*campaignAfter):
			case <-ctx.Done():
				return
			}
			if _, err := node.RequestVote(ctx); err != nil {
				log.Warnf("Election could not start: %v", err)
			}
		}()
	}

	<-ctx.Done()
	log.Info("Shutting down...")

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warnf("[ADMIN] Shutdown failed: %v", err)
		}
		cancel()
	}

	_, _ = m.GetReport().WriteTo(os.Stdout)
}

func logRoleChanges(bus *pubsub.PubSubClient) {
	changes := make(chan *pubsub.Event[election.RoleChange], 16)
	pubsub.Subscribe(bus, election.RoleChanged, changes, pubsub.SubscriptionOptions{IsBlocking: false})

	for ev := range changes {
		c := ev.Payload
		if c.To == election.Leader {
			log.WithField("node", c.Node).Infof("Became leader for term %d", c.Term)
		}
	}
}
