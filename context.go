package xmlsilo

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// InterruptibleContext returns a context canceled on SIGINT/SIGTERM, for use
// by the CLI (cmd/xmlbtool) and by long-running --wait invocations. Ingest
// and file I/O thread this context through and check it at chunk-read
// boundaries, per spec §5's cancellation model.
func InterruptibleContext() (context.Context, context.CancelFunc) {
	ctx, canc := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		// A second signal forces immediate termination, useful if
		// cleanup (flushing a partially written silo) hangs.
		signal.Stop(sig)
		canc()
	}()
	return ctx, canc
}
