package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/joho/godotenv"
	"github.com/twmb/franz-go/pkg/kgo"

	contracts "analyser-ml/contracts/events"
	"analyser-ml/internal/aggregator"
	"analyser-ml/internal/artifacts"
	"analyser-ml/internal/baseline"
	"analyser-ml/internal/config"
	"analyser-ml/internal/event"
	"analyser-ml/internal/processor"
	"analyser-ml/internal/store"
)

const (
	commitInterval = 3 * time.Second
	jobBufferSize  = 1000
)

func init() {
	if os.Getenv("RUNNING_IN_DOCKER") == "" {
		if err := godotenv.Load("../../.env"); err != nil {
			log.Println("No .env file found (this is fine in Docker)")
		}
	}
}

func main() {
	cfg, err := config.SetupScorer()
	if err != nil {
		log.Panic(err)
	}
	defer cfg.Kafka.Close()
	defer cfg.Redis.Close()
	defer cfg.Pg.Close()

	// The scoring process must not start with a partially loaded model.
	model, scaler, metrics, err := artifacts.Load(cfg.ModelDir)
	if err != nil {
		log.Fatalf("Could not load model artifacts from %s: %v", cfg.ModelDir, err)
	}
	operationalThreshold := metrics.Threshold * cfg.ThresholdMultiplier
	log.Printf("[ML] Model loaded (input_dim=%d hidden_dim=%d threshold=%.6f multiplier=%.1f)",
		metrics.InputDim, metrics.HiddenDim, metrics.Threshold, cfg.ThresholdMultiplier)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	agg := aggregator.New(scaler, model, operationalThreshold, cfg.BatchSize)
	agg.StartSweep(ctx, cfg.SweepInterval, cfg.SessionMaxIdle)

	tracker := baseline.New(cfg.Redis)
	producer := processor.NewProducer(cfg.Kafka, cfg.OutputTopic)

	commitChan := make(chan *kgo.Record, jobBufferSize)
	go commitLoop(ctx, cfg.Kafka, commitChan)

	log.Println("[ML] Analyser started, listening for events...")

	for {
		fetches := cfg.Kafka.PollFetches(ctx)
		if ctx.Err() != nil {
			log.Println("[ML] Context canceled, shutting down gracefully")
			return
		}
		fetches.EachPartition(func(p kgo.FetchTopicPartition) {
			for _, record := range p.Records {
				handleRecord(ctx, record, agg, tracker, producer, cfg.Pg)
				commitChan <- record
			}
		})
	}
}

func handleRecord(ctx context.Context, record *kgo.Record, agg *aggregator.Aggregator, tracker *baseline.Tracker, producer *processor.Producer, pg *store.Queries) {
	envelope, err := contracts.ParseEnvelope(record.Value)
	if err != nil {
		log.Printf("[ML] error parsing envelope: %v", err)
		return
	}
	if envelope.Domain != contracts.DomainUserActivity {
		log.Printf("[ML] skipping domain: %s", envelope.Domain)
		return
	}

	ev, err := event.FromEnvelope(envelope)
	if err != nil {
		log.Printf("[ML] skipping event: %v", err)
		return
	}
	if ev.WallClock {
		log.Printf("[ML] event for session %s had no timestamp, wall clock substituted", ev.SessionID)
	}

	// Raw events feed the retrainer's dataset; an insert failure must not
	// block scoring.
	if err := insertEvent(pg, ev); err != nil {
		log.Printf("[ML] error persisting raw event: %v", err)
	}

	novel, err := tracker.Record(ev)
	if err != nil {
		log.Printf("[ML] baseline update failed for user %d: %v", ev.UserID, err)
	} else if len(novel) > 0 {
		log.Printf("[ML] user=%d session=%s novel attributes: %v", ev.UserID, ev.SessionID, novel)
	}

	verdict := agg.Ingest(ev)
	if verdict == nil {
		return
	}

	log.Printf("[ML] user=%d session=%s anomaly=%t score=%.6f", verdict.UserID, verdict.SessionID, verdict.Anomaly, verdict.Score)
	if err := producer.PublishVerdict(ctx, *verdict); err != nil {
		log.Printf("[ML] error publishing verdict: %v", err)
	}
}

func insertEvent(pg *store.Queries, ev event.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := pg.InsertEvent(ctx, store.InsertEventParams{
		UserID:    int32(ev.UserID),
		EventType: ev.Type,
		Timestamp: pgtype.Timestamptz{Time: ev.Timestamp.UTC(), Valid: true},
		Ip:        pgtype.Text{String: ev.IP, Valid: ev.IP != ""},
		UserAgent: pgtype.Text{String: ev.UserAgent, Valid: ev.UserAgent != ""},
		Country:   pgtype.Text{String: ev.Country, Valid: ev.Country != ""},
		SessionID: pgtype.Text{String: ev.SessionID, Valid: true},
		Metadata:  []byte("{}"),
	})
	return err
}

func commitLoop(ctx context.Context, client *kgo.Client, commitChan chan *kgo.Record) {
	var toCommit []*kgo.Record
	ticker := time.NewTicker(commitInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case record := <-commitChan:
			if record != nil {
				toCommit = append(toCommit, record)
			}
		case <-ticker.C:
			if len(toCommit) > 0 {
				if err := client.CommitRecords(ctx, toCommit...); err != nil {
					log.Printf("Commit error: %v", err)
				}
				toCommit = nil
			}
		}
	}
}
