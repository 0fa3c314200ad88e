package workers

import (
	"context"
	"time"

	"github.com/cbodonnell/tabletop/pkg/log"
	"github.com/cbodonnell/tabletop/pkg/network"
	"github.com/cbodonnell/tabletop/pkg/queue"
)

// MessageHandler applies serialized envelopes received from peers.
type MessageHandler interface {
	HandleMessage(ctx context.Context, from string, data []byte)
}

type InboundWorker struct {
	messageQueue queue.Queue
	handler      MessageHandler
	interval     time.Duration
}

type NewInboundWorkerOptions struct {
	MessageQueue queue.Queue
	Handler      MessageHandler
	Interval     time.Duration
}

// NewInboundWorker creates a new InboundWorker.
// The worker drains the messages enqueued by the network on every tick
// and hands them to the engine in arrival order.
func NewInboundWorker(opts NewInboundWorkerOptions) *InboundWorker {
	return &InboundWorker{
		messageQueue: opts.MessageQueue,
		handler:      opts.Handler,
		interval:     opts.Interval,
	}
}

func (w *InboundWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processMessages(ctx)
		}
	}
}

func (w *InboundWorker) processMessages(ctx context.Context) {
	pending, err := w.messageQueue.ReadAllMessages()
	if err != nil {
		log.Error("Failed to read inbound messages: %v", err)
		return
	}

	for _, item := range pending {
		inbound, ok := item.(*network.Inbound)
		if !ok {
			log.Error("Failed to cast inbound message: %T", item)
			continue
		}
		w.handler.HandleMessage(ctx, inbound.From, inbound.Data)
	}
}
