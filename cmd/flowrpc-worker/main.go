/*
 *	flowrpc runs workflow and activity code on behalf of an orchestration host.
 *	Copyright (C) 2022 Arsen Musayelyan
 *
 *	This program is free software: you can redistribute it and/or modify
 *	it under the terms of the GNU General Public License as published by
 *	the Free Software Foundation, either version 3 of the License, or
 *	(at your option) any later version.
 *
 *	This program is distributed in the hope that it will be useful,
 *	but WITHOUT ANY WARRANTY; without even the implied warranty of
 *	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 *	GNU General Public License for more details.
 *
 *	You should have received a copy of the GNU General Public License
 *	along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"go.arsenm.dev/flowrpc/codec"
	"go.arsenm.dev/flowrpc/config"
	"go.arsenm.dev/flowrpc/examples/pizza"
	"go.arsenm.dev/flowrpc/factory"
	"go.arsenm.dev/flowrpc/logging"
	"go.arsenm.dev/flowrpc/transport"
	"golang.org/x/sync/errgroup"
)

// stdio joins stdin and stdout into a single io.ReadWriter
type stdio struct{}

func (stdio) Read(b []byte) (int, error)  { return os.Stdin.Read(b) }
func (stdio) Write(b []byte) (int, error) { return os.Stdout.Write(b) }

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error loading config:", err)
		os.Exit(1)
	}

	log, closer, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error creating logger:", err)
		os.Exit(1)
	}
	defer closer.Close()

	if err := run(cfg, log); err != nil {
		log.Error().Err(err).Msg("Worker process failed")
		closer.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	cf, err := codec.ByName(cfg.Codec)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	var t transport.Transport
	switch cfg.Transport.Kind {
	case config.TransportPipe:
		t = transport.NewStream(stdio{}, cf)
		// Reading from stdin cannot be interrupted otherwise
		g.Go(func() error {
			<-ctx.Done()
			return os.Stdin.Close()
		})
	case config.TransportWebSocket:
		ws := transport.NewWebSocket(cf)
		g.Go(func() error {
			return ws.ListenAndServe(ctx, cfg.Transport.Addr)
		})
		t = ws
	case config.TransportNATS:
		nc, err := nats.Connect(
			cfg.NATS.URL,
			nats.Name(cfg.NATS.ClientName),
			nats.MaxReconnects(cfg.NATS.MaxReconnects),
			nats.DrainTimeout(cfg.NATS.DrainTimeout),
		)
		if err != nil {
			return err
		}
		defer nc.Drain()

		nt, err := transport.NewNATS(nc, cfg.NATS.Subject, cfg.NATS.Queue)
		if err != nil {
			return err
		}
		defer nt.Close()
		t = nt
	default:
		return fmt.Errorf("unknown transport %q", cfg.Transport.Kind)
	}

	f := factory.New(
		t,
		factory.WithCodec(cf),
		factory.WithEnvironment(cfg.Environment),
		factory.WithIdentity(cfg.Identity),
		factory.WithLogger(log),
	)

	for _, taskQueue := range cfg.TaskQueues {
		w, err := f.NewWorker(taskQueue)
		if err != nil {
			return err
		}
		if err := pizza.Register(w, &pizza.Kitchen{}); err != nil {
			return err
		}
	}

	g.Go(func() error {
		// Stop the other goroutines once the host is gone
		defer cancel()
		return f.Run(ctx)
	})

	return g.Wait()
}
