package db

import (
	"context"
	"log"
	"time"

	"github.com/lib/pq"

	"qr_attendance_backend/store"
)

const (
	minReconnectInterval = 10 * time.Second
	maxReconnectInterval = time.Minute
	listenerPingInterval = 90 * time.Second
)

// Listen forwards attendance_records notifications to feed until ctx is
// cancelled, so subscribers see records written by any process. After a
// reconnect every subscriber is refreshed since notifications may have been
// missed.
func Listen(ctx context.Context, dsn string, feed *store.Feed) error {
	listener := pq.NewListener(dsn, minReconnectInterval, maxReconnectInterval,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Printf("Postgres listener event %d: %v", ev, err)
			}
		})
	defer listener.Close()

	if err := listener.Listen(NotifyChannel); err != nil {
		return err
	}
	log.Printf("Listening for %s notifications", NotifyChannel)

	ticker := time.NewTicker(listenerPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-listener.Notify:
			if n == nil {
				feed.PublishAll()
				continue
			}
			feed.Publish(n.Extra)
		case <-ticker.C:
			go func() {
				if err := listener.Ping(); err != nil {
					log.Printf("Postgres listener ping failed: %v", err)
				}
			}()
		}
	}
}
