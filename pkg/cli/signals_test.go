package cli

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"
)

func TestSetupSignalHandler(t *testing.T) {
	ctx, stop := SetupSignalHandler(context.Background())
	defer stop()

	select {
	case <-ctx.Done():
		t.Error("Context should not be cancelled initially")
	default:
	}
}

func TestSetupSignalHandler_Stop(t *testing.T) {
	ctx, stop := SetupSignalHandler(context.Background())
	stop()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("stop() did not cancel the context")
	}
}

func TestSetupSignalHandler_Signal(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping signal test in short mode")
	}
	ctx, stop := SetupSignalHandler(context.Background())
	defer stop()

	p, err := os.FindProcess(os.Getpid())
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Signal(syscall.SIGTERM); err != nil {
		t.Fatal(err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Skip("Signal not received within timeout")
	}
}
