package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/annel0/shopzones/internal/auth"
	"github.com/annel0/shopzones/internal/eventbus"
)

const (
	defaultNATSURL = "nats://localhost:4222"
	timeFormat     = "2006-01-02T15:04:05Z"
)

func main() {
	var (
		command    = flag.String("cmd", "tail", "Command: tail, token, hash")
		natsURL    = flag.String("nats", defaultNATSURL, "NATS server URL")
		stream     = flag.String("stream", "ZONES", "JetStream stream name")
		eventTypes = flag.String("types", "", "Event types filter (comma-separated)")
		sources    = flag.String("sources", "", "Source nodes filter (comma-separated)")
		limit      = flag.Int("limit", 0, "Stop after N events (0 = until interrupted)")
		secret     = flag.String("secret", os.Getenv("ZONES_JWT_SECRET"), "Token secret (base64)")
		subject    = flag.String("subject", "operator", "Token subject")
		role       = flag.String("role", auth.RoleAdmin, "Token role: admin, viewer")
		ttl        = flag.Duration("ttl", 24*time.Hour, "Token lifetime")
		password   = flag.String("password", "", "Operator password to hash (server.operators[].password_hash)")
	)
	flag.Parse()

	switch *command {
	case "tail":
		if err := tailEvents(&TailOptions{
			URL:    *natsURL,
			Stream: *stream,
			Filter: eventbus.Filter{
				Types:   parseStringList(*eventTypes),
				Sources: parseStringList(*sources),
			},
			Limit: *limit,
		}); err != nil {
			log.Fatalf("❌ Tail failed: %v", err)
		}

	case "token":
		tokens, err := auth.NewTokens(*secret)
		if err != nil {
			log.Fatalf("❌ Invalid secret: %v", err)
		}
		token, err := tokens.Issue(*subject, *role, *ttl)
		if err != nil {
			log.Fatalf("❌ Token failed: %v", err)
		}
		fmt.Println(token)

	case "hash":
		if *password == "" {
			log.Fatalf("❌ -password is required")
		}
		hash, err := auth.HashPassword(*password)
		if err != nil {
			log.Fatalf("❌ Hash failed: %v", err)
		}
		fmt.Println(hash)

	default:
		fmt.Printf("❌ Unknown command: %s\n", *command)
		fmt.Println("Available commands: tail, token, hash")
		os.Exit(1)
	}
}

type TailOptions struct {
	URL    string
	Stream string
	Filter eventbus.Filter
	Limit  int
}

// tailEvents выводит новые события зон до прерывания или лимита
func tailEvents(opts *TailOptions) error {
	bus, err := eventbus.NewJetStreamBus(opts.URL, opts.Stream, 24*time.Hour)
	if err != nil {
		return err
	}
	defer bus.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	events := make(chan *eventbus.Envelope, 64)
	sub, err := bus.Subscribe(ctx, opts.Filter, func(_ context.Context, ev *eventbus.Envelope) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	fmt.Printf("🎬 Tailing %s (stream %s, limit: %d)\n", opts.URL, opts.Stream, opts.Limit)
	count := 0
	for {
		select {
		case ev := <-events:
			printEvent(ev)
			count++
			if opts.Limit > 0 && count >= opts.Limit {
				fmt.Printf("\n📊 Total events: %d\n", count)
				return nil
			}
		case <-ctx.Done():
			fmt.Printf("\n📊 Total events: %d\n", count)
			return nil
		}
	}
}

// printEvent выводит событие в одну строку с разобранной полезной нагрузкой
func printEvent(ev *eventbus.Envelope) {
	fmt.Printf("[%s] %-24s %s src=%s\n", ev.Timestamp.UTC().Format(timeFormat), ev.EventType, ev.ID, ev.Source)

	var details string
	switch ev.EventType {
	case eventbus.TypeScanCompleted:
		if p, err := eventbus.Decode[eventbus.ScanCompleted](ev); err == nil {
			details = fmt.Sprintf("world=%s zones=%d markers=%d teleports=%d %dms", p.World, p.ZonesCreated, p.MarkersFound, p.ZonesWithTeleport, p.DurationMs)
			details += errorSuffix(p.Error)
		}
	case eventbus.TypeBackupCompleted:
		if p, err := eventbus.Decode[eventbus.BackupCompleted](ev); err == nil {
			details = fmt.Sprintf("zone=%s layout=%s blocks=%d ratio=%.1f%%", p.ZoneID, p.Layout, p.BlocksSaved, p.CompressionRatio)
			details += errorSuffix(p.Error)
		}
	case eventbus.TypeRestoreCompleted:
		if p, err := eventbus.Decode[eventbus.RestoreCompleted](ev); err == nil {
			details = fmt.Sprintf("zone=%s layout=%s blocks=%d failed=%d", p.ZoneID, p.Layout, p.BlocksRestored, p.FailedWrites)
			details += errorSuffix(p.Error)
		}
	case eventbus.TypeZoneRemoved:
		if p, err := eventbus.Decode[eventbus.ZoneRemoved](ev); err == nil {
			details = fmt.Sprintf("zone=%s world=%s", p.ZoneID, p.World)
		}
	}
	if details == "" {
		details = string(ev.Payload)
	}
	fmt.Printf("    %s\n", details)
}

func errorSuffix(msg string) string {
	if msg == "" {
		return ""
	}
	return " ❌ " + msg
}

// parseStringList разбирает список через запятую
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
