// Package metric holds the metric sample model and the in-memory cache that
// the alert engine (internal/alertengine) evaluates rules against.
package metric

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Sample is a single metric reading as received on the METRICS stream.
type Sample struct {
	ElementName string
	Type        string
	Unit        string
	Value       float64
	TimestampS  uint64
	TTLSeconds  uint32
}

// Topic is the routing key for a sample: "{type}@{element_name}".
func (s Sample) Topic() string {
	return Topic(s.Type, s.ElementName)
}

// Topic builds the routing key for a given metric type and element.
func Topic(metricType, elementName string) string {
	return fmt.Sprintf("%s@%s", metricType, elementName)
}

// Element extracts the element name from a topic ("{type}@{element}").
func Element(topic string) string {
	idx := strings.LastIndex(topic, "@")
	if idx < 0 {
		return ""
	}
	return topic[idx+1:]
}

// Fresh reports whether the sample is still within its TTL at time now.
func (s Sample) Fresh(now uint64) bool {
	return now-s.TimestampS <= uint64(s.TTLSeconds)
}

// Cache maps topic -> latest sample, and separately remembers the most
// recently inserted topic, which drives pattern-rule evaluation.
type Cache struct {
	mu       sync.Mutex
	byTopic  map[string]Sample
	lastTopic string
}

// NewCache creates an empty metric cache.
func NewCache() *Cache {
	return &Cache{byTopic: make(map[string]Sample)}
}

// Insert stores or replaces the sample for its topic and records it as the
// last-inserted topic.
func (c *Cache) Insert(s Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byTopic[s.Topic()] = s
	c.lastTopic = s.Topic()
}

// Get returns the cached sample for topic, if any and still fresh at now.
// A stale entry is evicted as a side effect, matching the "stale samples
// are purged from the cache on every evaluation pass" invariant.
func (c *Cache) Get(topic string, now uint64) (Sample, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.byTopic[topic]
	if !ok {
		return Sample{}, false
	}
	if !s.Fresh(now) {
		delete(c.byTopic, topic)
		return Sample{}, false
	}
	return s, true
}

// Remove deletes a topic unconditionally, used when a metric-unavailable
// signal names it.
func (c *Cache) Remove(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byTopic, topic)
}

// PurgeStale removes every entry whose TTL has elapsed as of now and
// returns the topics removed.
func (c *Cache) PurgeStale(now uint64) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var removed []string
	for topic, s := range c.byTopic {
		if !s.Fresh(now) {
			delete(c.byTopic, topic)
			removed = append(removed, topic)
		}
	}
	return removed
}

// LastInserted returns the most recently inserted sample, if the cache has
// ever received one.
func (c *Cache) LastInserted() (Sample, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastTopic == "" {
		return Sample{}, false
	}
	s, ok := c.byTopic[c.lastTopic]
	return s, ok
}

// Now is the cache's notion of the current time, expressed in the same unit
// as Sample.TimestampS.
func Now() uint64 {
	return uint64(time.Now().Unix())
}
