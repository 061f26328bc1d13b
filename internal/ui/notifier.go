package ui

import (
	"sync"

	"github.com/gen2brain/beeep"
)

const (
	notifyTitle = "Voice Chat"
	notifyQueue = 8
)

// Notifier raises a desktop notification for every user-visible error.
// Notifications are sent from a background goroutine; when the queue is full
// further ones are dropped so hub listeners never block.
type Notifier struct {
	notify func(title, message, icon string) error

	once  sync.Once
	queue chan string
}

// NewNotifier returns a notifier backed by beeep.
func NewNotifier() *Notifier {
	return &Notifier{notify: func(title, message, icon string) error {
		return beeep.Notify(title, message, icon)
	}}
}

// Listener adapts the notifier for Hub.AddListener.
func (n *Notifier) Listener() Listener {
	n.once.Do(n.start)
	return func(ev Event) {
		if ev.Type != EventError {
			return
		}
		data, ok := ev.Data.(TextData)
		if !ok || data.Text == "" {
			return
		}
		select {
		case n.queue <- data.Text:
		default:
			log.Debug("notification queue full, dropping")
		}
	}
}

func (n *Notifier) start() {
	n.queue = make(chan string, notifyQueue)
	go func() {
		for msg := range n.queue {
			if err := n.notify(notifyTitle, msg, ""); err != nil {
				log.WithError(err).Debug("desktop notification failed")
			}
		}
	}()
}
