package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/martincass/UCAMtracker/internal/logger"
	"gorm.io/gorm"
)

// NotifyChannel is the postgres channel submission events travel on.
const NotifyChannel = "submission_events"

// PGPublisher publishes events with pg_notify so every replica listening on
// NotifyChannel can deliver them to its own connections.
type PGPublisher struct {
	db *gorm.DB
}

func NewPGPublisher(db *gorm.DB) *PGPublisher {
	return &PGPublisher{db: db}
}

func (p *PGPublisher) Publish(ev Event) {
	if ev.Type == "" {
		ev.Type = EventSubmissionStatus
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		logger.WithError(err, "realtime").Error("Failed to encode event")
		return
	}
	if err := p.db.Exec("SELECT pg_notify(?, ?)", NotifyChannel, string(payload)).Error; err != nil {
		logger.WithError(err, "realtime").Error("pg_notify failed")
	}
}

// Listen forwards notifications on NotifyChannel to the hub until ctx is done.
func Listen(ctx context.Context, dsn string, hub Publisher) error {
	listener := pq.NewListener(dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.WithError(err, "realtime").Warn("Postgres listener event")
		}
	})
	if err := listener.Listen(NotifyChannel); err != nil {
		listener.Close()
		return fmt.Errorf("listen %s: %w", NotifyChannel, err)
	}
	logger.Info("Listening for submission events", map[string]interface{}{"channel": NotifyChannel})

	go func() {
		defer listener.Close()
		ticker := time.NewTicker(90 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case n := <-listener.Notify:
				// nil after a reconnect
				if n == nil {
					continue
				}
				ev, err := decodeNotification(n.Extra)
				if err != nil {
					logger.WithError(err, "realtime").Warn("Dropping malformed notification")
					continue
				}
				hub.Publish(ev)
			case <-ticker.C:
				if err := listener.Ping(); err != nil {
					logger.WithError(err, "realtime").Warn("Postgres listener ping failed")
				}
			}
		}
	}()
	return nil
}

func decodeNotification(payload string) (Event, error) {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return Event{}, err
	}
	if ev.SubmissionID == "" {
		return Event{}, fmt.Errorf("notification without submission id")
	}
	return ev, nil
}
