package review

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/stayops/ota-bridge/internal/amendment"
)

// StartConsumer connects to the broker, declares the review queue and
// starts consuming. Each item is appended to logs/review.log in a
// single-line, human-friendly format for the operations desk. The
// function runs a reconnect loop with capped doubling backoff and
// keeps running indefinitely; processing errors are logged and the
// offending message rejected without requeue so the service continues
// operating.
func StartConsumer(url string) error {
	url = brokerURL(url)

	backoff := time.Second
	for {
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Printf("review-consumer: failed to dial broker: %v; retrying in %s", err, backoff)
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		if err := consumeLoop(conn); err != nil {
			log.Printf("review-consumer: consume loop ended: %v; reconnecting", err)
			time.Sleep(2 * time.Second)
			continue
		}
	}
}

func consumeLoop(conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Printf("review-consumer: set QoS failed: %v", err)
	}

	_, err = ch.QueueDeclare(reviewQueueName, true, false, false, false,
		amqp.Table{"x-max-priority": int32(maxPriority)})
	if err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.Consume(reviewQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := handleItem(d.Body); err != nil {
			log.Printf("review-consumer: handle item failed: %v", err)
			_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

func handleItem(body []byte) error {
	var item amendment.ReviewItem
	if err := json.Unmarshal(body, &item); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if err := os.MkdirAll("logs", 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	fpath := filepath.Join("logs", "review.log")
	f, err := os.OpenFile(fpath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("[%s] Amendment needs review | priority=%d | booking_id=%d | amendment_id=%s | type=%s | reason=%q\n",
		item.EnqueuedAt.Format(time.RFC3339), item.Priority, item.BookingID, item.AmendmentID, item.Type, item.Reason)

	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}
