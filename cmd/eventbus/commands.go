package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/architeacher/svc-event-bus/internal/config"
	"github.com/architeacher/svc-event-bus/internal/runtime"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "eventbus",
		Short:         "Task result and webhook delivery over RabbitMQ",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newPublisherCmd(),
		newSubscriberCmd(),
		newProvisionCmd(),
		newVersionCmd(),
	)

	return root
}

func newPublisherCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publisher",
		Short: "Relay outbox events to the broker",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			runtime.NewPublisher().Run()
		},
	}
}

func newSubscriberCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "subscriber",
		Short: "Consume task results and deliver webhooks",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			runtime.NewSubscriber().Run()
		},
	}
}

func newProvisionCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Declare exchanges and queues, then exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runtime.NewProvisioner(migrate).Run(ctx)
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", false, "also apply database migrations")

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			version, commit := config.ServiceVersion, config.CommitSHA
			if version == "" {
				version = "dev"
			}

			if commit == "" {
				commit = "none"
			}

			fmt.Fprintf(cmd.OutOrStdout(), "eventbus %s (%s)\n", version, commit)
		},
	}
}
