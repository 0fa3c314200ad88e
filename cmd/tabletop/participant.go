package main

import (
	"context"
	"sync"
	"time"

	"github.com/cbodonnell/tabletop/pkg/api"
	"github.com/cbodonnell/tabletop/pkg/config"
	"github.com/cbodonnell/tabletop/pkg/engine"
	"github.com/cbodonnell/tabletop/pkg/log"
	"github.com/cbodonnell/tabletop/pkg/metrics"
	"github.com/cbodonnell/tabletop/pkg/network"
	"github.com/cbodonnell/tabletop/pkg/queue"
	"github.com/cbodonnell/tabletop/pkg/scene"
	"github.com/cbodonnell/tabletop/pkg/topology"
	"github.com/cbodonnell/tabletop/pkg/workers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const inboundQueueSize = 10000

// participant is the wiring shared by a host and a player: one engine fed
// by a message queue and talking to its peers through a connection manager.
type participant struct {
	config       *config.Config
	engine       *engine.Engine
	connections  *network.ConnectionManager
	messageQueue queue.Queue
	registry     *prometheus.Registry

	wg sync.WaitGroup
}

func newParticipant(cfg *config.Config, s *scene.Scene, top *topology.Topology) *participant {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	connections := network.NewConnectionManager()
	e := engine.NewEngine(engine.NewEngineOptions{
		Session:   &engine.Session{Scene: s, Topology: top},
		Transport: network.NewTransport(connections),
		Renderer:  engine.LogRenderer{},
		Metrics:   metrics.NewMetrics(metrics.DefaultNamespace, registry),
	})

	return &participant{
		config:       cfg,
		engine:       e,
		connections:  connections,
		messageQueue: queue.NewInMemoryQueue(inboundQueueSize),
		registry:     registry,
	}
}

// goWorker runs fn in the background and tracks it for wait.
func (p *participant) goWorker(fn func()) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		fn()
	}()
}

// startWorkers starts the workers every participant runs until ctx is done.
func (p *participant) startWorkers(ctx context.Context) {
	inboundWorker := workers.NewInboundWorker(workers.NewInboundWorkerOptions{
		MessageQueue: p.messageQueue,
		Handler:      p.engine,
		Interval:     p.config.TickInterval,
	})
	p.goWorker(func() { inboundWorker.Start(ctx) })

	connectionEventWorker := workers.NewConnectionEventWorker(workers.NewConnectionEventWorkerOptions{
		ConnectionEventChan: p.connections.GetConnectionEventChan(),
		Peers:               p.engine,
	})
	p.goWorker(func() { connectionEventWorker.Start(ctx) })

	apiServer := api.NewAPIServer(api.NewAPIServerOptions{
		Addr:     p.config.APIAddr,
		Table:    p.engine,
		Gatherer: p.registry,
	})
	go apiServer.Start()
	p.goWorker(func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := apiServer.Stop(shutdownCtx); err != nil {
			log.Error("Failed to stop API server: %v", err)
		}
	})
}

// wait blocks until every worker has returned.
func (p *participant) wait() {
	p.wg.Wait()
}
