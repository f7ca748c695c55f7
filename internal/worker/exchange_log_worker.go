package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"leftear-ai/internal/model"
	"leftear-ai/internal/repository"
)

// ExchangeLogWorker drains the exchange audit queue into MySQL. It runs off
// the request path: a slow or failing consumer never delays a relay.
type ExchangeLogWorker struct {
	conn      *amqp.Connection
	repo      *repository.ExchangeLogRepository
	queueName string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewExchangeLogWorker(conn *amqp.Connection, repo *repository.ExchangeLogRepository, queueName string) *ExchangeLogWorker {
	return &ExchangeLogWorker{
		conn:      conn,
		repo:      repo,
		queueName: queueName,
	}
}

func (w *ExchangeLogWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	_, err = ch.QueueDeclare(
		w.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}

				var event model.ExchangeEvent
				if err := json.Unmarshal(d.Body, &event); err != nil {
					log.Printf("worker decode exchange event failed: %v", err)
					_ = d.Nack(false, false)
					continue
				}

				entry := model.ExchangeLog{
					UserID:     event.UserID,
					SessionID:  event.SessionID,
					PresetID:   event.PresetID,
					ModelID:    event.ModelID,
					PromptSize: event.PromptSize,
					ReplySize:  event.ReplySize,
					DurationMS: event.DurationMS,
					CreatedAt:  event.CreatedAt,
				}
				if err := w.repo.Create(&entry); err != nil {
					log.Printf("worker persist exchange log failed: %v", err)
					_ = d.Nack(false, false)
					continue
				}

				_ = d.Ack(false)
			}
		}
	}()

	return nil
}

func (w *ExchangeLogWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
