package embed

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/time/rate"
)

// ModelStatus is one of the states a model-cache entry can be in.
type ModelStatus string

const (
	StatusNotFound    ModelStatus = "not_found"
	StatusDownloading ModelStatus = "downloading"
	StatusReady       ModelStatus = "ready"
	StatusError       ModelStatus = "error"
)

// ModelState is the polled state of one cached model.
type ModelState struct {
	Status   ModelStatus `msgpack:"status"`
	Progress float64     `msgpack:"progress"` // 0-100
	Error    string      `msgpack:"error,omitempty"`
}

// modelCacheSize bounds the in-memory progress-poll cache.
const modelCacheSize = 64

// pollInterval bounds how often a single model's download progress is
// allowed to update the cached state, so a tight polling loop from a
// status endpoint can't thrash the sidecar file.
const pollInterval = 200 * time.Millisecond

// EmbedderRegistry resolves (vault, model) pairs to deterministic
// collection names and tracks per-model download/warm-up state. One
// registry is shared process-wide so a second caller asking about a model
// that's already downloading observes the in-flight progress instead of
// starting a duplicate fetch.
type EmbedderRegistry struct {
	modelsDir string
	statePath string

	mu            sync.Mutex // guards states and downloadLocks
	states        map[string]*ModelState
	downloadLocks map[string]*sync.Mutex
	limiters      map[string]*rate.Limiter
	cache         *lru.Cache[string, *ModelState]
}

// NewEmbedderRegistry creates a registry persisting model state under
// modelsDir.
func NewEmbedderRegistry(modelsDir string) (*EmbedderRegistry, error) {
	cache, err := lru.New[string, *ModelState](modelCacheSize)
	if err != nil {
		return nil, fmt.Errorf("embed: creating model-state cache: %w", err)
	}
	r := &EmbedderRegistry{
		modelsDir:     modelsDir,
		statePath:     filepath.Join(modelsDir, "registry_state.msgpack"),
		states:        make(map[string]*ModelState),
		downloadLocks: make(map[string]*sync.Mutex),
		limiters:      make(map[string]*rate.Limiter),
		cache:         cache,
	}
	r.load()
	return r, nil
}

// CollectionFor returns the deterministic collection name for base under
// modelName, per the §4.11 sanitizer.
func (r *EmbedderRegistry) CollectionFor(base, modelName string) string {
	return CollectionName(base, modelName)
}

func (r *EmbedderRegistry) lockFor(key string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.downloadLocks[key]
	if !ok {
		l = &sync.Mutex{}
		r.downloadLocks[key] = l
	}
	return l
}

func (r *EmbedderRegistry) limiterFor(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Every(pollInterval), 1)
		r.limiters[key] = l
	}
	return l
}

// State returns the current cached state for modelKey without blocking on
// any download, defaulting to not_found if nothing has been recorded yet.
func (r *EmbedderRegistry) State(modelKey string) ModelState {
	if v, ok := r.cache.Get(modelKey); ok {
		return *v
	}
	r.mu.Lock()
	s, ok := r.states[modelKey]
	r.mu.Unlock()
	if ok {
		return *s
	}
	return ModelState{Status: StatusNotFound}
}

func (r *EmbedderRegistry) setState(modelKey string, s ModelState) {
	r.mu.Lock()
	r.states[modelKey] = &s
	r.mu.Unlock()
	r.cache.Add(modelKey, &s)
	r.save()
}

// EnsureGGUFModel drives the not_found -> downloading -> ready|error state
// machine for a locally downloaded GGUF model, serializing concurrent
// requests for the same modelKey behind a per-model lock.
func (r *EmbedderRegistry) EnsureGGUFModel(ctx context.Context, modelKey string, manager *ModelManager, warm func(ctx context.Context) error) (string, error) {
	lock := r.lockFor(modelKey)
	lock.Lock()
	defer lock.Unlock()

	if manager.ModelExists() {
		r.setState(modelKey, ModelState{Status: StatusReady, Progress: 100})
		return manager.ModelPath(), nil
	}

	r.setState(modelKey, ModelState{Status: StatusDownloading, Progress: 0})
	limiter := r.limiterFor(modelKey)

	path, err := manager.EnsureModel(ctx, func(downloaded, total int64) {
		if !limiter.Allow() {
			return
		}
		pct := 0.0
		if total > 0 {
			pct = float64(downloaded) / float64(total) * 90.0
			if pct > 90 {
				pct = 90
			}
		}
		r.setState(modelKey, ModelState{Status: StatusDownloading, Progress: pct})
	})
	if err != nil {
		r.setState(modelKey, ModelState{Status: StatusError, Error: err.Error()})
		return "", err
	}

	if warm != nil {
		if err := warm(ctx); err != nil {
			r.setState(modelKey, ModelState{Status: StatusError, Error: err.Error()})
			return "", err
		}
	}

	r.setState(modelKey, ModelState{Status: StatusReady, Progress: 100})
	return path, nil
}

// MarkReady records a provider-managed model (e.g. Ollama, which performs
// its own pulls) as ready without going through the download state
// machine.
func (r *EmbedderRegistry) MarkReady(modelKey string) {
	r.setState(modelKey, ModelState{Status: StatusReady, Progress: 100})
}

// MarkError records a provider-managed model as unavailable.
func (r *EmbedderRegistry) MarkError(modelKey string, err error) {
	r.setState(modelKey, ModelState{Status: StatusError, Error: err.Error()})
}

func (r *EmbedderRegistry) load() {
	data, err := os.ReadFile(r.statePath)
	if err != nil {
		return
	}
	var states map[string]*ModelState
	if err := msgpack.Unmarshal(data, &states); err != nil {
		return
	}
	r.mu.Lock()
	r.states = states
	r.mu.Unlock()
}

func (r *EmbedderRegistry) save() {
	r.mu.Lock()
	data, err := msgpack.Marshal(r.states)
	r.mu.Unlock()
	if err != nil {
		return
	}
	if err := os.MkdirAll(r.modelsDir, 0o755); err != nil {
		return
	}
	tmp := r.statePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return
	}
	_ = os.Rename(tmp, r.statePath)
}
