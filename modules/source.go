// Package modules fetches, caches, and resolves dependencies for the
// ahead-of-time-compiled code units distributed to workers. The Loader runs
// on the coordinator side; the Runtime is its lightweight counterpart inside
// a worker.
package modules

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
)

// ModuleInfo is one entry of the module index.
type ModuleInfo struct {
	File         string   `json:"file"`
	Size         int      `json:"size"`
	Compressed   bool     `json:"compressed"`
	Dependencies []string `json:"dependencies"`
}

// An Index maps module names to their location and dependency list.
type Index map[string]ModuleInfo

// A Source provides the module index and module bytes. Implementations fetch
// over HTTP or read from a directory.
type Source interface {
	FetchIndex() (Index, error)
	FetchModule(file string) ([]byte, error)
}

// HTTPSource fetches the index and modules from a base URL.
type HTTPSource struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPSource creates an HTTP source with the default client.
func NewHTTPSource(baseURL string) *HTTPSource {
	return &HTTPSource{BaseURL: baseURL, Client: http.DefaultClient}
}

// FetchIndex downloads and parses the module index.
func (s *HTTPSource) FetchIndex() (Index, error) {
	data, err := s.get("modules.json")
	if err != nil {
		return nil, err
	}

	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("parsing module index: %w", err)
	}

	return idx, nil
}

// FetchModule downloads one module file.
func (s *HTTPSource) FetchModule(file string) ([]byte, error) {
	return s.get(file)
}

func (s *HTTPSource) get(file string) ([]byte, error) {
	u, err := url.JoinPath(s.BaseURL, file)
	if err != nil {
		return nil, err
	}

	rsp, err := s.Client.Get(u)
	if err != nil {
		return nil, err
	}
	defer rsp.Body.Close()

	if rsp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: status %d", file, rsp.StatusCode)
	}

	return io.ReadAll(rsp.Body)
}

// DirSource reads the index and modules from a local directory.
type DirSource struct {
	Dir string
}

// NewDirSource creates a directory source.
func NewDirSource(dir string) *DirSource {
	return &DirSource{Dir: dir}
}

// FetchIndex reads and parses modules.json from the directory.
func (s *DirSource) FetchIndex() (Index, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir, "modules.json"))
	if err != nil {
		return nil, err
	}

	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("parsing module index: %w", err)
	}

	return idx, nil
}

// FetchModule reads one module file from the directory.
func (s *DirSource) FetchModule(file string) ([]byte, error) {
	return os.ReadFile(filepath.Join(s.Dir, file))
}
