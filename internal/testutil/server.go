package testutil

import (
	"image/color"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// Descriptor3 is a three-frame descriptor whose middle frame is a recovery
// point and whose last frame ends the animation
const Descriptor3 = `{
	"fps": 10,
	"frames": [[0, 0], [0, 5, {"type": "apogee"}], [0, -1]],
	"recipes": [[[0, 0, 0, 0, 4, 4, 0, 0]]],
	"textures": ["default"],
	"finalState": "rest"
}`

// AssetServer serves character assets: descriptors for type=data, PNGs
// for type=image and WAVs for type=audio
type AssetServer struct {
	*httptest.Server

	mu          sync.Mutex
	hits        map[string]int
	descriptors map[string]string
	failing     map[string]bool
	audioLength time.Duration
	block       chan struct{}
}

// NewAssetServer starts a server that answers every data request with
// Descriptor3 until told otherwise
func NewAssetServer(t *testing.T) *AssetServer {
	t.Helper()
	s := &AssetServer{
		hits:        make(map[string]int),
		descriptors: map[string]string{"": Descriptor3},
		failing:     make(map[string]bool),
		audioLength: 200 * time.Millisecond,
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

func (s *AssetServer) serve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kind := q.Get("type")

	s.mu.Lock()
	s.hits[s.URL+r.URL.RequestURI()]++
	failing := s.failing[kind]
	body, ok := s.descriptors[q.Get("do")]
	if !ok {
		body = s.descriptors[""]
	}
	audioLength := s.audioLength
	block := s.block
	s.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-r.Context().Done():
			return
		}
	}

	if failing {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	switch kind {
	case "data":
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	case "image":
		w.Header().Set("Content-Type", "image/png")
		c := color.NRGBA{R: 200, G: 100, B: 50, A: 255}
		if q.Get("texture") != "" {
			c = color.NRGBA{B: 255, A: 255}
		}
		w.Write(PNG(8, 8, c))
	case "audio", "recorded":
		w.Header().Set("Content-Type", "audio/wav")
		w.Write(WAV(audioLength, 8000, 8000))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// SetDescriptor serves body for data requests whose do tag is tag. The
// empty tag sets the default.
func (s *AssetServer) SetDescriptor(tag, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.descriptors[tag] = body
}

// Fail makes requests of the given type return 500
func (s *AssetServer) Fail(kind string, failing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing[kind] = failing
}

// Block holds every request until the returned function is called
func (s *AssetServer) Block() (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.block = ch
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.block = nil
			s.mu.Unlock()
			close(ch)
		})
	}
}

// SetAudioLength changes the duration of generated audio
func (s *AssetServer) SetAudioLength(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audioLength = d
}

// Hits returns how often url was requested
func (s *AssetServer) Hits(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[url]
}

// Total returns the number of requests served
func (s *AssetServer) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.hits {
		n += c
	}
	return n
}

// RecordedURL returns a URL that serves audio like a recorded file
func (s *AssetServer) RecordedURL(name string) string {
	return s.URL + "/recorded/" + name + "?type=recorded"
}
