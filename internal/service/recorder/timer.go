package recorder

import (
	"fmt"
	"time"
)

// FormatElapsed renders d as SS:CC (seconds and centiseconds).
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d / time.Second)
	centis := int(d%time.Second) / int(10*time.Millisecond)
	return fmt.Sprintf("%02d:%02d", secs, centis)
}

type elapsedTimer struct {
	quit chan struct{}
	done chan struct{}
}

func startElapsedTimer(start time.Time, interval time.Duration, now func() time.Time, view View) *elapsedTimer {
	t := &elapsedTimer{
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	view.ShowTimer(FormatElapsed(0))

	if interval <= 0 {
		close(t.done)
		return t
	}

	go func() {
		defer close(t.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				view.ShowTimer(FormatElapsed(now().Sub(start)))
			case <-t.quit:
				return
			}
		}
	}()
	return t
}

func (t *elapsedTimer) stop() {
	if t == nil {
		return
	}
	close(t.quit)
	<-t.done
}
