// streamtail connects to a streamd instance and prints the envelopes it
// receives, for eyeballing a live deployment.
//
// Usage:
//
//	streamtail --url ws://localhost:4001/ws --token $SESSION_TOKEN \
//	    --channels trades:user-1,price-updates-AAPL
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/shivam2014/trading-journal-stream/internal/client"
	"github.com/shivam2014/trading-journal-stream/internal/config"
	"github.com/shivam2014/trading-journal-stream/internal/protocol"
)

func main() {
	_ = godotenv.Load()

	url := flag.String("url", "ws://localhost:4001/ws", "stream endpoint")
	token := flag.String("token", os.Getenv("STREAM_TOKEN"), "bearer session token")
	channels := flag.String("channels", "", "comma-separated channels to subscribe")
	configPath := flag.String("config", "", "optional config file for reconnect settings")
	verbose := flag.Bool("verbose", false, "print full payload JSON")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if *token == "" {
		logger.Error("no token: pass --token or set STREAM_TOKEN")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	ccfg := client.Config{
		URL:   *url,
		Token: *token,
	}
	if *configPath != "" {
		cfg, err := config.LoadWithDefaults(*configPath)
		if err != nil {
			logger.Error("failed to load config", "error", err)
			os.Exit(1)
		}
		ccfg.BaseDelay = cfg.Reconnect.BaseDelay
		ccfg.MaxDelay = cfg.Reconnect.MaxDelay
		ccfg.MaxAttempts = cfg.Reconnect.MaxAttempts
	}
	c := client.New(ccfg, logger)

	for _, ch := range strings.Split(*channels, ",") {
		if ch = strings.TrimSpace(ch); ch != "" {
			c.Subscribe(ch)
		}
	}

	go func() {
		for err := range c.Errors() {
			logger.Warn("stream error", "error", err)
		}
	}()

	patterns := client.NewPatternAggregate()
	go func() {
		for msg := range c.Messages() {
			printEnvelope(msg.Envelope, msg.ReceivedAt, *verbose)
			if msg.Envelope.Type == protocol.TypePatternDetected {
				var alert protocol.PatternAlertPayload
				if err := protocol.DecodePayload(msg.Envelope, &alert); err == nil {
					merged := patterns.Apply(alert)
					fmt.Printf("    %s: %d distinct patterns seen\n", alert.Symbol, len(merged))
				}
			}
		}
	}()

	if err := c.Run(ctx); err != nil {
		logger.Error("stream client stopped", "error", err)
		os.Exit(1)
	}
}

func printEnvelope(env protocol.Envelope, receivedAt time.Time, verbose bool) {
	ts := receivedAt.Format("15:04:05.000")
	if verbose {
		var pretty any
		if len(env.Payload) > 0 {
			if err := json.Unmarshal(env.Payload, &pretty); err != nil {
				pretty = string(env.Payload)
			}
		}
		out, _ := json.MarshalIndent(map[string]any{
			"type":      env.Type,
			"timestamp": env.Timestamp,
			"payload":   pretty,
		}, "", "  ")
		fmt.Printf("%s %s\n", ts, out)
		return
	}
	fmt.Printf("%s %-20s %d bytes\n", ts, env.Type, len(env.Payload))
}
