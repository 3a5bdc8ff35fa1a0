package telegram

import (
	"sync"

	"turing-game/internal/game"
)

type waiter struct {
	id     uint64
	chatID int64
	match  func(game.IncomingMessage) bool
	ch     chan game.IncomingMessage
}

// dispatcher hands incoming messages to pending AwaitMessage calls. Each
// waiter receives at most one message; the oldest matching waiter wins.
type dispatcher struct {
	mu      sync.Mutex
	nextID  uint64
	waiters []*waiter
}

func newDispatcher() *dispatcher {
	return &dispatcher{}
}

func (d *dispatcher) subscribe(chatID int64, match func(game.IncomingMessage) bool) (uint64, <-chan game.IncomingMessage) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	w := &waiter{id: d.nextID, chatID: chatID, match: match, ch: make(chan game.IncomingMessage, 1)}
	d.waiters = append(d.waiters, w)
	return w.id, w.ch
}

func (d *dispatcher) unsubscribe(id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, w := range d.waiters {
		if w.id == id {
			d.waiters = append(d.waiters[:i], d.waiters[i+1:]...)
			return
		}
	}
}

// dispatch reports whether a waiter consumed m.
func (d *dispatcher) dispatch(m game.IncomingMessage) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, w := range d.waiters {
		if w.chatID != m.ChatID || !w.match(m) {
			continue
		}
		d.waiters = append(d.waiters[:i], d.waiters[i+1:]...)
		w.ch <- m
		return true
	}
	return false
}

func (d *dispatcher) pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.waiters)
}
