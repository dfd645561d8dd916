package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/nysenate/openleg-sync/pkg/kafka"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Serve import requests from Kafka",
	Long: `Consume ImportRequest messages from the configured import-requests topic
and run each one through the scheduler. Runs until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runListen,
}

func init() {
	rootCmd.AddCommand(listenCmd)
}

func runListen(_ *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()
	if !a.cfg.Kafka.Enabled {
		return errors.New("listen needs kafka.enabled")
	}
	a.withRunner()
	stop := a.serveMetrics()
	defer stop()

	ctx, cancel := signalContext()
	defer cancel()

	topic := a.cfg.Kafka.Topics.ImportRequests
	consumer := kafka.NewConsumer(a.cfg.Kafka, topic, a.runner.HandleRequest, a.retryConfig(), a.logger)
	a.logger.Info("listening for import requests", "topic", topic, "group", a.cfg.Kafka.ConsumerGroup)
	return consumer.Run(ctx)
}
