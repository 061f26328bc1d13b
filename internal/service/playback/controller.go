package playback

import (
	"context"
	"sync"

	"github.com/zhouzirui/z-tavern/client/internal/logging"
)

var log = logging.For("playback")

// Label is the icon/title pair shown on a message's play button.
type Label struct {
	Icon  string `json:"icon"`
	Title string `json:"title"`
}

// 播放按钮的三种状态
var (
	LabelPlay   = Label{Icon: "🔊", Title: "Play response"}
	LabelPause  = Label{Icon: "⏸️", Title: "Pause audio"}
	LabelResume = Label{Icon: "▶️", Title: "Resume audio"}
)

// Handle is one playback resource bound to a single URL.
type Handle interface {
	// Play starts or resumes playback in place.
	Play() error
	// Pause keeps the position so a later Play resumes.
	Pause()
	Paused() bool
	// Done is closed when playback finishes, fails or the handle is closed.
	Done() <-chan struct{}
	// Err reports why playback stopped; nil for natural completion or Close.
	Err() error
	Close() error
}

// Player opens playback handles.
type Player interface {
	Open(url string) (Handle, error)
}

// View updates the play buttons bound to a URL.
type View interface {
	SetPlayButton(url string, label Label)
}

type entry struct {
	url    string
	handle Handle
}

// Controller 管理唯一的"当前"播放句柄。其他消息的暂停句柄会被保留，
// 再次切换时从原位置继续。
type Controller struct {
	mu      sync.Mutex
	player  Player
	view    View
	current *entry
	handles map[string]*entry
	labels  map[string]Label
}

// NewController creates a controller backed by player.
func NewController(player Player, view View) *Controller {
	return &Controller{
		player:  player,
		view:    view,
		handles: make(map[string]*entry),
		labels:  make(map[string]Label),
	}
}

// Play pauses the current handle and starts a fresh one for url. Failures
// are logged only.
func (c *Controller) Play(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playLocked(url)
}

// Toggle implements the play button: pause the playing handle, resume a
// paused one, or start fresh playback when url has no handle yet.
func (c *Controller) Toggle(url string) Label {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.handles[url]
	if !ok {
		return c.playLocked(url)
	}

	if e == c.current && !e.handle.Paused() {
		log.WithField("url", url).Debug("pausing audio")
		e.handle.Pause()
		c.setLabelLocked(url, LabelResume)
		return LabelResume
	}

	c.pauseCurrentLocked(e)
	log.WithField("url", url).Debug("resuming audio")
	if err := e.handle.Play(); err != nil {
		log.WithError(err).WithField("url", url).Error("resume error")
	}
	c.current = e
	c.setLabelLocked(url, LabelPause)
	return LabelPause
}

// Label returns the button label currently shown for url.
func (c *Controller) Label(url string) Label {
	c.mu.Lock()
	defer c.mu.Unlock()
	if label, ok := c.labels[url]; ok {
		return label
	}
	return LabelPlay
}

// Current returns the URL of the current handle, or "".
func (c *Controller) Current() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return ""
	}
	return c.current.url
}

// Wait blocks until the current handle finishes or ctx is done. It returns
// at once when nothing is playing.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	cur := c.current
	c.mu.Unlock()
	if cur == nil || cur.handle.Paused() {
		return nil
	}

	select {
	case <-cur.handle.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close releases every handle and forgets all button labels. The controller
// stays usable afterwards.
func (c *Controller) Close() {
	c.mu.Lock()
	entries := make([]*entry, 0, len(c.handles))
	for url, e := range c.handles {
		entries = append(entries, e)
		delete(c.handles, url)
	}
	c.current = nil
	clear(c.labels)
	c.mu.Unlock()

	for _, e := range entries {
		if err := e.handle.Close(); err != nil {
			log.WithError(err).WithField("url", e.url).Warn("close handle failed")
		}
	}
}

func (c *Controller) playLocked(url string) Label {
	c.pauseCurrentLocked(nil)

	if old, ok := c.handles[url]; ok {
		delete(c.handles, url)
		if c.current == old {
			c.current = nil
		}
		_ = old.handle.Close()
	}

	log.WithField("url", url).Info("playing audio")
	h, err := c.player.Open(url)
	if err != nil {
		log.WithError(err).WithField("url", url).Error("audio setup error")
		c.setLabelLocked(url, LabelPlay)
		return LabelPlay
	}

	e := &entry{url: url, handle: h}
	c.handles[url] = e
	c.current = e
	go c.watch(e)

	if err := h.Play(); err != nil {
		log.WithError(err).WithField("url", url).Error("play error")
	}
	c.setLabelLocked(url, LabelPause)
	return LabelPause
}

// pauseCurrentLocked pauses the current handle unless it is except.
func (c *Controller) pauseCurrentLocked(except *entry) {
	cur := c.current
	if cur == nil || cur == except {
		return
	}
	if !cur.handle.Paused() {
		cur.handle.Pause()
		c.setLabelLocked(cur.url, LabelResume)
	}
}

func (c *Controller) watch(e *entry) {
	<-e.handle.Done()

	if err := e.handle.Err(); err != nil {
		log.WithError(err).WithField("url", e.url).Error("audio error")
	} else {
		log.WithField("url", e.url).Debug("audio ended")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handles[e.url] != e {
		return
	}
	delete(c.handles, e.url)
	if c.current == e {
		c.current = nil
	}
	c.setLabelLocked(e.url, LabelPlay)
}

// setLabelLocked 只记录非默认标签，播放结束的 URL 不再占用 labels
func (c *Controller) setLabelLocked(url string, label Label) {
	if label == LabelPlay {
		delete(c.labels, url)
	} else {
		c.labels[url] = label
	}
	c.view.SetPlayButton(url, label)
}
