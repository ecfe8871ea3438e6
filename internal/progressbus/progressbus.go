// Package progressbus is the in-process publisher that fans progress
// updates out to every connected WebSocket subscriber (spec §4.E). Its
// backpressure handling mirrors the teacher's tracelens WebSocket proxy:
// a dedicated writer per connection, dropped rather than allowed to block
// the publisher when it falls behind.
package progressbus

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/amd-agi/genforge/internal/logger/log"
)

// Update is the JSON document published for one task's progress change.
type Update struct {
	Type       string   `json:"type"`
	TaskID     string   `json:"task_id"`
	Percentage int      `json:"percentage"`
	StatusText string   `json:"statusText"`
	Finished   bool     `json:"finished"`
	Preview    *string  `json:"preview"`
	Results    []string `json:"results"`
}

const subscriberBufferSize = 32

type subscriber struct {
	id   uint64
	conn *websocket.Conn
	out  chan Update
	done chan struct{}
}

// Bus is the progress broadcaster. All methods are safe for concurrent use.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]*subscriber
}

// New constructs an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[uint64]*subscriber)}
}

// Subscribe registers conn as a progress subscriber and starts its writer
// goroutine. Late joiners receive only future updates: there is no replay
// of history. The returned unsubscribe func is idempotent.
func (b *Bus) Subscribe(conn *websocket.Conn) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	sub := &subscriber{id: id, conn: conn, out: make(chan Update, subscriberBufferSize), done: make(chan struct{})}
	b.subs[id] = sub
	b.mu.Unlock()

	go b.writeLoop(sub)

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(sub) })
	}
}

func (b *Bus) writeLoop(sub *subscriber) {
	defer b.remove(sub)
	for {
		select {
		case update, ok := <-sub.out:
			if !ok {
				return
			}
			if err := sub.conn.WriteJSON(update); err != nil {
				log.Debugf("progress bus: dropping subscriber %d: %v", sub.id, err)
				return
			}
		case <-sub.done:
			return
		}
	}
}

func (b *Bus) remove(sub *subscriber) {
	b.mu.Lock()
	if _, ok := b.subs[sub.id]; ok {
		delete(b.subs, sub.id)
		close(sub.done)
		_ = sub.conn.Close()
	}
	b.mu.Unlock()
}

// Publish delivers update to every current subscriber. A subscriber whose
// send buffer is full is dropped immediately rather than allowed to block
// delivery to everyone else (spec §4.E, §5 backpressure policy). Updates
// for a single task_id are delivered to each subscriber in publish order.
func (b *Bus) Publish(update Update) {
	b.mu.RLock()
	subs := make([]*subscriber, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.out <- update:
		default:
			log.Debugf("progress bus: subscriber %d buffer full, dropping", sub.id)
			b.remove(sub)
		}
	}
}

// SubscriberCount reports the current number of live subscribers, mostly
// useful for metrics and tests.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
