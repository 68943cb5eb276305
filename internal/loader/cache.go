package loader

import (
	"image"
	"sync"

	"github.com/normanking/cortexsprite/internal/descriptor"
)

// IdleCache holds decoded idle assets keyed by URL. Only idle requests
// write to it.
type IdleCache struct {
	mu          sync.RWMutex
	descriptors map[string]*descriptor.Descriptor
	images      map[string]*image.NRGBA
}

// NewIdleCache creates an empty cache
func NewIdleCache() *IdleCache {
	return &IdleCache{
		descriptors: make(map[string]*descriptor.Descriptor),
		images:      make(map[string]*image.NRGBA),
	}
}

func (c *IdleCache) Descriptor(url string) (*descriptor.Descriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.descriptors[url]
	return d, ok
}

func (c *IdleCache) Image(url string) (*image.NRGBA, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	img, ok := c.images[url]
	return img, ok
}

func (c *IdleCache) PutDescriptor(url string, d *descriptor.Descriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.descriptors[url] = d
}

func (c *IdleCache) PutImage(url string, img *image.NRGBA) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.images[url] = img
}

// Len returns the number of cached entries
func (c *IdleCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.descriptors) + len(c.images)
}

// Reset drops every entry
func (c *IdleCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.descriptors = make(map[string]*descriptor.Descriptor)
	c.images = make(map[string]*image.NRGBA)
}

// URLSet records URLs that have been fetched
type URLSet struct {
	mu   sync.RWMutex
	urls map[string]struct{}
}

// NewURLSet creates an empty set
func NewURLSet() *URLSet {
	return &URLSet{urls: make(map[string]struct{})}
}

func (s *URLSet) Add(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.urls[url] = struct{}{}
}

func (s *URLSet) Has(url string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.urls[url]
	return ok
}

func (s *URLSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.urls)
}

func (s *URLSet) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.urls = make(map[string]struct{})
}
