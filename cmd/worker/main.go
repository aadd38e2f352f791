package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tutorstack/backend/internal/config"
	"github.com/tutorstack/backend/internal/queue"
	"github.com/tutorstack/backend/internal/timing"
	"github.com/tutorstack/backend/internal/util"
	"github.com/tutorstack/backend/pkg/ai"
	oai "github.com/tutorstack/backend/pkg/ai/ollama"
	gai "github.com/tutorstack/backend/pkg/ai/openai"
	"github.com/tutorstack/backend/pkg/chunking"
	"github.com/tutorstack/backend/pkg/embedding"
	"github.com/tutorstack/backend/pkg/leaselock"
	"github.com/tutorstack/backend/pkg/logger"
	"github.com/tutorstack/backend/pkg/logger/console"
	pgxstore "github.com/tutorstack/backend/pkg/store/pgx"
	"github.com/tutorstack/backend/pkg/tokens"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
	amqp "github.com/rabbitmq/amqp091-go"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Invalid configuration", "err", err)
	}

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: cfg.Debug,
	})
	logger.Init(consoleLogger)

	var aiClient ai.Client
	switch cfg.AIAdapter {
	case "ollama":
		client, err := oai.NewOllamaClient(oai.NewOllamaClientParams{
			EmbeddingModel: cfg.EmbedModel,
			ChatModel:      cfg.ChatModel,
			ScoringModel:   cfg.ScoringModel,

			BaseURL: cfg.ChatURL,
			ApiKey:  cfg.ChatKey,
		})
		if err != nil {
			logger.Fatal("Could not create Ollama client", "err", err)
		}
		aiClient = client
	default:
		aiClient = gai.NewOpenAIClient(gai.NewOpenAIClientParams{
			EmbeddingModel: cfg.EmbedModel,
			ChatModel:      cfg.ChatModel,
			ScoringModel:   cfg.ScoringModel,

			EmbeddingURL: cfg.EmbedURL,
			EmbeddingKey: cfg.EmbedKey,
			ChatURL:      cfg.ChatURL,
			ChatKey:      cfg.ChatKey,
		})
	}

	if err := pgxstore.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal("Failed to run migrations", "err", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Invalid database URL", "err", err)
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pgConn, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		logger.Fatal("Unable to connect to database", "err", err)
	}
	defer pgConn.Close()

	counter, err := tokens.NewTiktokenCounter("")
	if err != nil {
		logger.Fatal("Could not create token counter", "err", err)
	}

	st, err := pgxstore.NewChunkDBStorage(pgConn, cfg.EmbedDimension)
	if err != nil {
		logger.Fatal("Could not create storage", "err", err)
	}
	locks := leaselock.New(pgConn)

	chunker, err := chunking.NewService(chunking.NewServiceParams{
		AIClient: aiClient,
		Store:    st,
		Counter:  counter,

		TargetTokens:       cfg.TargetChunkTokens,
		OverlapTokens:      cfg.OverlapTokens,
		BoundarySimilarity: cfg.BoundarySimilarity,
	})
	if err != nil {
		logger.Fatal("Could not create chunking service", "err", err)
	}

	embedder, err := embedding.NewService(embedding.NewServiceParams{
		AIClient:   aiClient,
		Store:      st,
		Dimensions: cfg.EmbedDimension,
	})
	if err != nil {
		logger.Fatal("Could not create embedding service", "err", err)
	}

	conn := queue.Init()
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := util.RetryErrWithContext(ctx, 3, func(context.Context) error {
		return queue.SetupQueues(ch, queue.Queues)
	}); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	// Prefetch 1 across all queues: one document job at a time per worker.
	if err := consumerCh.Qos(1, 0, true); err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	logger.Info("Listening for messages")

	type queuedMessage struct {
		msg       amqp.Delivery
		queueName string
	}

	messageChan := make(chan queuedMessage)

	for _, queueName := range queue.Queues {
		go func(qName string) {
			consumerTag := fmt.Sprintf("%s_consumer", qName)
			msgs, err := consumerCh.Consume(
				qName,
				consumerTag,
				false, // autoAck
				false, // exclusive
				false, // noLocal
				false, // noWait
				nil,   // args
			)
			if err != nil {
				logger.Fatal("Failed to start consuming", "queue", qName, "err", err)
			}

			for {
				select {
				case <-ctx.Done():
					logger.Info("Stopping consumer", "queue", qName)
					return
				case msg, ok := <-msgs:
					if !ok {
						logger.Info("Message channel closed", "queue", qName)
						return
					}
					messageChan <- queuedMessage{msg: msg, queueName: qName}
				}
			}
		}(queueName)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				logger.Info("Stopping message processor")
				return
			case qm := <-messageChan:
				startTime := time.Now()
				logger.Info("Received message", "queue", qm.queueName)

				var processingErr error
				switch qm.queueName {
				case queue.ChunkQueue:
					processingErr = queue.ProcessChunkMessage(ctx, st, chunker, locks, ch, string(qm.msg.Body))
				case queue.EmbedQueue:
					processingErr = queue.ProcessEmbedMessage(ctx, st, embedder, locks, string(qm.msg.Body))
				}

				if processingErr != nil {
					logger.Error("Error processing message", "queue", qm.queueName, "err", processingErr)
					handleProcessingError(consumerCh, qm.msg, qm.queueName)
				} else {
					if err := qm.msg.Ack(false); err != nil {
						logger.Error("Failed to ack message", "err", err)
					}
					recordStats(ctx, pgConn, st, qm.queueName, qm.msg.Body, time.Since(startTime))
					logger.Info("Message processed successfully", "queue", qm.queueName)
				}

				metrics := aiClient.GetMetrics()
				aiDuration := time.Duration(metrics.DurationMs) * time.Millisecond
				logger.Info(
					"AI Metrics",
					"input_tokens", metrics.InputTokens,
					"output_tokens", metrics.OutputTokens,
					"total_tokens", metrics.TotalTokens,
					"duration", formatDuration(aiDuration),
				)
				logger.Info(
					"Processing time",
					"duration", formatDuration(time.Since(startTime)),
				)
				logger.Info("Waiting for next message")
				aiClient.ResetMetrics()
			}
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received, exiting...")
}

func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}

// recordStats stores per-stage throughput for processing-time predictions.
func recordStats(
	ctx context.Context,
	pool *pgxpool.Pool,
	st *pgxstore.ChunkDBStorage,
	queueName string,
	msgBody []byte,
	duration time.Duration,
) {
	var msg struct {
		DocumentID int64 `json:"document_id"`
	}
	if err := json.Unmarshal(msgBody, &msg); err != nil || msg.DocumentID <= 0 {
		return
	}
	doc, err := st.GetDocument(ctx, msg.DocumentID)
	if err != nil {
		logger.Debug("Skipping stats for unknown document", "document_id", msg.DocumentID, "err", err)
		return
	}

	stage := timing.StageChunking
	amount := doc.TotalTokens
	if queueName == queue.EmbedQueue {
		stage = timing.StageEmbedding
		amount = doc.TotalChunks
	}
	if err := timing.AddProcessingTime(ctx, pool, doc.ID, stage, amount, duration.Milliseconds()); err != nil {
		logger.Debug("Failed to record processing stats", "document_id", doc.ID, "err", err)
	}
}

func handleProcessingError(ch *amqp.Channel, msg amqp.Delivery, queueName string) {
	retries := 0
	if val, ok := msg.Headers["x-retries"]; ok {
		if v, ok := val.(int32); ok {
			retries = int(v)
		}
	}

	// After 10 deliveries the message parks on the DLQ for inspection.
	if retries >= 10 {
		dlqName := queueName + "_dlq"
		logger.Info("Sending message to DLQ", "dlq", dlqName)
		pubErr := ch.Publish(
			"",
			dlqName,
			false,
			false,
			amqp.Publishing{
				ContentType: "application/json",
				Body:        msg.Body,
				Headers:     msg.Headers,
			},
		)
		if pubErr != nil {
			logger.Error("Failed to publish to DLQ", "dlq", dlqName, "err", pubErr)
			msg.Nack(false, true)
			return
		}
		msg.Ack(false)
		return
	}

	retryName := queueName + "_retry"
	headers := msg.Headers
	if headers == nil {
		headers = amqp.Table{}
	}
	headers["x-retries"] = retries + 1

	pubErr := ch.Publish(
		"",
		retryName,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        msg.Body,
			Headers:     headers,
		},
	)
	if pubErr != nil {
		logger.Error("Failed to publish to retry queue", "retry_queue", retryName, "err", pubErr)
		msg.Nack(false, true)
		return
	}
	msg.Ack(false)
}
