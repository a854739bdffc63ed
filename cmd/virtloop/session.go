package main

import (
	"context"
	"fmt"

	"github.com/jbweber/virtloop/internal/eventloop"
	"github.com/jbweber/virtloop/internal/hypervisor"
	"github.com/jbweber/virtloop/internal/libvirt"
)

// session is an event loop registered with a library, and one client.
type session struct {
	loop   *eventloop.Loop
	bridge *eventloop.Bridge
	client *libvirt.Client
}

// openSession starts the event loop, registers it as the library's event
// implementation, and connects.
func openSession(ctx context.Context) (*session, error) {
	log := logger

	loop := eventloop.New(
		eventloop.WithLogger(log.With().Str("component", "eventloop").Logger()),
		eventloop.WithPanicHandler(func(err error) {
			log.Error().Err(err).Msg("event callback panicked")
		}),
	)
	bridge := eventloop.NewBridge(loop, eventloop.WithLogger(log))

	lib := hypervisor.New(hypervisor.WithLogger(log.With().Str("component", "hypervisor").Logger()))
	if err := bridge.Register(lib); err != nil {
		_ = loop.Close()
		return nil, fmt.Errorf("failed to register event implementation: %w", err)
	}

	registry := libvirt.NewRegistry()
	client, err := libvirt.Connect(ctx, lib, registry,
		cfg.Connection.Socket, cfg.Connection.Timeout,
		libvirt.WithLogger(log))
	if err != nil {
		_ = bridge.Unregister()
		_ = loop.Close()
		return nil, fmt.Errorf("failed to connect to libvirt: %w", err)
	}

	if ka := cfg.Connection.Keepalive; ka.Interval > 0 {
		if err := client.SetKeepAlive(ka.Interval, ka.Count); err != nil {
			log.Warn().Err(err).Msg("keepalive disabled")
		}
	}

	return &session{loop: loop, bridge: bridge, client: client}, nil
}

// close tears the session down in reverse order.
func (s *session) close() {
	if err := s.client.Close(); err != nil {
		logger.Warn().Err(err).Msg("failed to close libvirt connection")
	}
	if err := s.bridge.Unregister(); err != nil {
		logger.Debug().Err(err).Msg("unregister event implementation")
	}
	if err := s.loop.Close(); err != nil {
		logger.Debug().Err(err).Msg("close event loop")
	}
}
