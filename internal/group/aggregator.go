// Package group collects the messages of a Telegram media group into a
// single pending entry and commits the entry once the group has gone quiet.
// Telegram sends no "group complete" marker, so completion is inferred from
// inactivity.
package group

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/stellarlinkco/tgvault/internal/bus"
)

const (
	// DefaultTick is how often pending groups are scanned.
	DefaultTick = 500 * time.Millisecond
	// DefaultWindow is how long a group must be inactive before it is
	// considered complete.
	DefaultWindow = 2000 * time.Millisecond
)

// Item is one member of a media group: the message content plus the
// vault-relative path its attachment was saved to. FilePath is empty when the
// download failed, keeping item and path indexes aligned.
type Item struct {
	Content  bus.ContentItem
	FilePath string
}

// Entry is one pending media group.
type Entry struct {
	GroupID      string
	Items        []Item
	Err          error // first failure wins
	lastActivity time.Time
}

// Primary returns the item whose metadata represents the whole group: the
// first captioned item, or the first item when none carries a caption.
func (e *Entry) Primary() bus.ContentItem {
	for _, it := range e.Items {
		if strings.TrimSpace(it.Content.Text) != "" {
			return it.Content
		}
	}
	return e.Items[0].Content
}

// CombinedText flattens the group into one context block for AI processing
// and note rendering: a count and unique-type summary, then the non-empty
// captions in arrival order.
func (e *Entry) CombinedText() string {
	var types []string
	seen := make(map[bus.ContentType]bool)
	var captions []string
	for _, it := range e.Items {
		if !seen[it.Content.ContentType] {
			seen[it.Content.ContentType] = true
			types = append(types, string(it.Content.ContentType))
		}
		if text := strings.TrimSpace(it.Content.Text); text != "" {
			captions = append(captions, text)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Group of %d files: %s", len(e.Items), strings.Join(types, ", "))
	if len(captions) > 0 {
		b.WriteString("\n\nFile captions:\n")
		for i, caption := range captions {
			fmt.Fprintf(&b, "%d. %s\n", i+1, caption)
		}
	}
	return b.String()
}

// Counter tracks messages still being downloaded or written. A media group
// is held back while any message in flight could still belong to it.
type Counter struct {
	n atomic.Int64
}

func (c *Counter) Inc() { c.n.Add(1) }
func (c *Counter) Dec() { c.n.Add(-1) }

func (c *Counter) Idle() bool { return c.n.Load() <= 0 }

// CommitFunc receives a completed group exactly once.
type CommitFunc func(ctx context.Context, entry *Entry)

// Aggregator buffers media-group members and commits each group after its
// inactivity window elapses. The scan ticker only runs while groups are
// pending.
type Aggregator struct {
	mu     sync.Mutex
	groups map[string]*Entry
	ticker *time.Ticker
	done   chan struct{}

	tick     time.Duration
	window   time.Duration
	commit   CommitFunc
	inflight *Counter
	scanning atomic.Bool
	now      func() time.Time
	log      zerolog.Logger
}

func NewAggregator(commit CommitFunc, inflight *Counter, log zerolog.Logger) *Aggregator {
	return &Aggregator{
		groups:   make(map[string]*Entry),
		tick:     DefaultTick,
		window:   DefaultWindow,
		commit:   commit,
		inflight: inflight,
		now:      time.Now,
		log:      log,
	}
}

// Add appends one member to its group, creating the group on first sight.
// Activity resets the group's inactivity clock.
func (a *Aggregator) Add(item Item, err error) {
	groupID := item.Content.GroupID
	if groupID == "" {
		return
	}

	a.mu.Lock()
	entry, ok := a.groups[groupID]
	if !ok {
		entry = &Entry{GroupID: groupID}
		a.groups[groupID] = entry
	}
	entry.Items = append(entry.Items, item)
	if err != nil && entry.Err == nil {
		entry.Err = err
	}
	entry.lastActivity = a.now()
	a.startLocked()
	a.mu.Unlock()
}

// startLocked starts the scan loop if it is not already running. Caller
// holds a.mu.
func (a *Aggregator) startLocked() {
	if a.ticker != nil {
		return
	}
	a.ticker = time.NewTicker(a.tick)
	a.done = make(chan struct{})
	go a.loop(a.ticker, a.done)
}

func (a *Aggregator) loop(ticker *time.Ticker, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			a.scan(context.Background())
		}
	}
}

// scan commits every group whose inactivity window has elapsed, then stops
// the ticker when nothing is left. Overlapping scans are skipped so a slow
// commit can never double-fire a group.
func (a *Aggregator) scan(ctx context.Context) {
	if !a.scanning.CompareAndSwap(false, true) {
		return
	}
	defer a.scanning.Store(false)

	if a.inflight != nil && !a.inflight.Idle() {
		return
	}

	now := a.now()
	var ready []*Entry

	a.mu.Lock()
	for id, entry := range a.groups {
		if now.Sub(entry.lastActivity) >= a.window {
			ready = append(ready, entry)
			delete(a.groups, id)
		}
	}
	if len(a.groups) == 0 && a.ticker != nil {
		a.ticker.Stop()
		close(a.done)
		a.ticker = nil
		a.done = nil
	}
	a.mu.Unlock()

	for _, entry := range ready {
		a.log.Debug().Str("group", entry.GroupID).Int("items", len(entry.Items)).Msg("media group complete")
		a.commit(ctx, entry)
	}
}

// Flush commits all pending groups immediately, regardless of their
// inactivity windows. Used on shutdown.
func (a *Aggregator) Flush(ctx context.Context) {
	a.mu.Lock()
	var pending []*Entry
	for id, entry := range a.groups {
		pending = append(pending, entry)
		delete(a.groups, id)
	}
	if a.ticker != nil {
		a.ticker.Stop()
		close(a.done)
		a.ticker = nil
		a.done = nil
	}
	a.mu.Unlock()

	for _, entry := range pending {
		a.commit(ctx, entry)
	}
}

// Pending reports how many groups are waiting.
func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.groups)
}
