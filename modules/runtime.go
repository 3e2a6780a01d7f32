package modules

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"
)

// bytecodeContainer is the envelope of a precompiled module: base64 bytecode
// plus metadata identifying the target execution environment.
type bytecodeContainer struct {
	Format   string `json:"format"`
	Target   string `json:"target"`
	Bytecode string `json:"bytecode"`
}

const bytecodeFormat = "aot-bytecode"

type loadedModule struct {
	bytes    []byte
	bytecode bool
	target   string
	loadedAt time.Time
}

// A Runtime registers received module bytes inside a worker before the unit
// begins processing traffic. Modules carrying embedded precompiled bytecode
// take the bytecode path; everything else is treated as plain source.
type Runtime struct {
	logger *log.Logger

	mu     sync.Mutex
	loaded map[string]loadedModule
}

// NewRuntime creates an empty worker-side runtime.
func NewRuntime(logger *log.Logger) *Runtime {
	if logger == nil {
		logger = log.New(os.Stderr, "runtime: ", log.LstdFlags)
	}

	return &Runtime{
		logger: logger,
		loaded: make(map[string]loadedModule),
	}
}

// Init loads each module of the map. A module that fails to load is logged
// and skipped; the remaining modules still load.
func (r *Runtime) Init(mods map[string][]byte) {
	names := make([]string, 0, len(mods))
	for name := range mods {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := r.Register(name, mods[name]); err != nil {
			r.logger.Printf("loading module %s failed: %v", name, err)
		}
	}
}

// Register makes one module executable. It detects bytecode containers and
// decodes their payload; plain bytes register as source.
func (r *Runtime) Register(name string, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("module %s is empty", name)
	}

	m := loadedModule{bytes: data, loadedAt: time.Now()}

	var container bytecodeContainer
	if err := json.Unmarshal(data, &container); err == nil &&
		container.Format == bytecodeFormat && container.Bytecode != "" {
		decoded, err := base64.StdEncoding.DecodeString(container.Bytecode)
		if err != nil {
			return fmt.Errorf("decoding bytecode of module %s: %w", name, err)
		}

		m.bytes = decoded
		m.bytecode = true
		m.target = container.Target
	}

	r.mu.Lock()
	r.loaded[name] = m
	r.mu.Unlock()

	return nil
}

// LoadedModules lists the names of currently loaded modules, sorted.
func (r *Runtime) LoadedModules() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.loaded))
	for name := range r.loaded {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// IsBytecode reports whether a loaded module took the bytecode path.
func (r *Runtime) IsBytecode(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.loaded[name].bytecode
}
