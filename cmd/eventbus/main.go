// Command eventbus runs the outbox publisher, the subscriber workers and the broker provisioner.
// Build metadata is injected with -ldflags "-X github.com/architeacher/svc-event-bus/internal/config.ServiceVersion=..." and CommitSHA.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
