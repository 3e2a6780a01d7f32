package modules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
)

// CoreModules are the modules the standard worker pool depends on. They seed
// the fallback index when the real index cannot be fetched.
var CoreModules = []string{
	"game-core",
	"physics",
	"ai-strategy",
	"metrics-agg",
}

// A Loader fetches, caches, and resolves dependencies for AOT modules on the
// coordinator side. A module is fetched at most once per coordinator lifetime
// unless the cache is explicitly cleared; concurrent loads of the same name
// share a single in-flight fetch.
type Loader struct {
	source Source
	logger *log.Logger

	mu       sync.Mutex
	index    Index
	cache    map[string][]byte
	inflight map[string]*inflightLoad

	loaded        int
	hits          int
	misses        int
	totalLoadTime time.Duration
}

type inflightLoad struct {
	done chan struct{}
	data []byte
}

// NewLoader creates a loader over the given source.
func NewLoader(source Source, logger *log.Logger) *Loader {
	if logger == nil {
		logger = log.New(os.Stderr, "modules: ", log.LstdFlags)
	}

	return &Loader{
		source:   source,
		logger:   logger,
		cache:    make(map[string][]byte),
		inflight: make(map[string]*inflightLoad),
	}
}

// Init fetches the module index. If the index is unavailable, a minimal
// fallback index is synthesized so the system degrades instead of failing
// hard.
func (l *Loader) Init() error {
	idx, err := l.source.FetchIndex()
	if err != nil {
		l.logger.Printf("module index unavailable (%v), using fallback index",
			err)
		idx = fallbackIndex()
	}

	l.mu.Lock()
	l.index = idx
	l.mu.Unlock()

	return nil
}

func fallbackIndex() Index {
	idx := make(Index, len(CoreModules))
	for _, name := range CoreModules {
		idx[name] = ModuleInfo{File: name + ".aot"}
	}
	return idx
}

// Index returns a copy of the loaded module index.
func (l *Loader) Index() Index {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := make(Index, len(l.index))
	for k, v := range l.index {
		idx[k] = v
	}
	return idx
}

// Load returns the bytes of one module. Cache hits are served immediately;
// a miss with a load already in flight awaits that load instead of fetching
// again. A failed fetch substitutes a placeholder module and is logged, not
// returned as an error.
func (l *Loader) Load(name string) ([]byte, error) {
	l.mu.Lock()

	if data, ok := l.cache[name]; ok {
		l.hits++
		l.mu.Unlock()
		return data, nil
	}
	l.misses++

	if call, ok := l.inflight[name]; ok {
		l.mu.Unlock()
		<-call.done
		return call.data, nil
	}

	call := &inflightLoad{done: make(chan struct{})}
	l.inflight[name] = call
	info, known := l.index[name]
	l.mu.Unlock()

	start := time.Now()
	data := l.fetch(name, info, known)

	l.mu.Lock()
	l.cache[name] = data
	if alias := canonicalAlias(name, info); alias != "" {
		l.cache[alias] = data
	}
	l.loaded++
	l.totalLoadTime += time.Since(start)
	delete(l.inflight, name)
	l.mu.Unlock()

	call.data = data
	close(call.done)

	return data, nil
}

// fetch retrieves and, if flagged, decompresses one module. Any failure
// degrades to a placeholder stub.
func (l *Loader) fetch(name string, info ModuleInfo, known bool) []byte {
	if !known {
		l.logger.Printf("module %s not in index, substituting placeholder",
			name)
		return PlaceholderModule(name)
	}

	data, err := l.source.FetchModule(info.File)
	if err != nil {
		l.logger.Printf("fetching module %s failed (%v), "+
			"substituting placeholder", name, err)
		return PlaceholderModule(name)
	}

	if info.Compressed {
		data, err = gunzip(data)
		if err != nil {
			l.logger.Printf("decompressing module %s failed (%v), "+
				"substituting placeholder", name, err)
			return PlaceholderModule(name)
		}
	}

	return data
}

func gunzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return io.ReadAll(r)
}

// canonicalAlias returns the file-stem alias a module is also cached under,
// or "" when it matches the requested name.
func canonicalAlias(name string, info ModuleInfo) string {
	if info.File == "" {
		return ""
	}

	base := filepath.Base(info.File)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == name || stem == "" {
		return ""
	}

	return stem
}

// ResolveDependencies computes the transitive closure of the dependency
// graph starting from the requested names. Resolution is idempotent and
// terminates on cyclic graphs.
func (l *Loader) ResolveDependencies(names []string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var resolved []string
	visited := make(map[string]bool)

	queue := append([]string(nil), names...)
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]

		if visited[name] {
			continue
		}
		visited[name] = true
		resolved = append(resolved, name)

		if info, ok := l.index[name]; ok {
			queue = append(queue, info.Dependencies...)
		}
	}

	return resolved
}

// ModulesForWorker resolves dependencies for the requested names and loads
// every resulting module in parallel. A module that cannot be loaded is
// skipped with a log entry; it never fails the whole set.
func (l *Loader) ModulesForWorker(
	workerID string,
	names []string,
) map[string][]byte {
	resolved := l.ResolveDependencies(names)

	var wg sync.WaitGroup
	var mu sync.Mutex
	out := make(map[string][]byte, len(resolved))

	for _, name := range resolved {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()

			data, err := l.Load(name)
			if err != nil {
				l.logger.Printf("skipping module %s for worker %s: %v",
					name, workerID, err)
				return
			}

			mu.Lock()
			out[name] = data
			mu.Unlock()
		}(name)
	}
	wg.Wait()

	return out
}

// ClearCache drops all cached module bytes. Modules will be fetched again on
// the next load.
func (l *Loader) ClearCache() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cache = make(map[string][]byte)
}

// Stats reports loader counters.
type Stats struct {
	ModulesLoaded int
	CacheHits     int
	CacheMisses   int
	HitRate       float64
	TotalLoadTime time.Duration
	AvgLoadTime   time.Duration
	CacheBytes    int
}

// Stats returns a snapshot of the loader counters.
func (l *Loader) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := Stats{
		ModulesLoaded: l.loaded,
		CacheHits:     l.hits,
		CacheMisses:   l.misses,
		TotalLoadTime: l.totalLoadTime,
	}

	if total := l.hits + l.misses; total > 0 {
		s.HitRate = float64(l.hits) / float64(total)
	}
	if l.loaded > 0 {
		s.AvgLoadTime = l.totalLoadTime / time.Duration(l.loaded)
	}
	for _, data := range l.cache {
		s.CacheBytes += len(data)
	}

	return s
}

// PlaceholderModule synthesizes a minimal stub for a module that could not
// be fetched. It exposes no-op initialize/execute entry points so a missing
// module degrades a single capability rather than the whole system.
func PlaceholderModule(name string) []byte {
	stub := map[string]any{
		"name":    name,
		"stub":    true,
		"exports": []string{"initialize", "execute"},
	}

	data, err := json.Marshal(stub)
	if err != nil {
		panic(fmt.Sprintf("building placeholder for %s: %v", name, err))
	}

	return data
}
