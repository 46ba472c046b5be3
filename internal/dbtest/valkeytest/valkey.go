// Package valkeytest runs an in-process Valkey compatible server for tests.
package valkeytest

import (
	"context"

	"github.com/alicebob/miniredis/v2"
	"github.com/valkey-io/valkey-go"

	slogctx "github.com/veqryn/slog-context"
)

// Start initialises an in-memory Valkey server and returns a client, the
// server handle and a termination function.
func Start(ctx context.Context) (valkey.Client, *miniredis.Miniredis, func(ctx context.Context)) {
	server, err := miniredis.Run()
	if err != nil {
		slogctx.Error(ctx, "Failed to start the in-memory Valkey server", "error", err)
		panic(err)
	}

	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{server.Addr()},
		// miniredis does not implement CLIENT TRACKING
		DisableCache: true,
	})
	if err != nil {
		slogctx.Error(ctx, "Failed to initialise a ValKey client", "error", err)
		server.Close()
		panic(err)
	}

	terminate := func(ctx context.Context) {
		client.Close()
		server.Close()
		slogctx.Debug(ctx, "Terminated the in-memory Valkey server")
	}

	return client, server, terminate
}
