// Package monitoring turns a running coordinator into a small HTTP server so
// external dashboards can query worker and module-loader statistics.
package monitoring

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/openarcade/workermesh/manager"
	"github.com/openarcade/workermesh/modules"
)

// Monitor serves the statistics surface of a coordinator.
type Monitor struct {
	manager    *manager.Manager
	loader     *modules.Loader
	portNumber int

	listener net.Listener
	server   *http.Server
}

// NewMonitor creates a new Monitor.
func NewMonitor() *Monitor {
	return &Monitor{}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n",
			portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// RegisterManager registers the worker manager to be monitored.
func (m *Monitor) RegisterManager(mgr *manager.Manager) {
	m.manager = mgr
}

// RegisterLoader registers the module loader to be monitored.
func (m *Monitor) RegisterLoader(l *modules.Loader) {
	m.loader = l
}

// StartServer starts the monitor as a web server.
func (m *Monitor) StartServer() {
	r := mux.NewRouter()
	r.HandleFunc("/api/stats", m.stats)
	r.HandleFunc("/api/workers", m.listWorkers)
	r.HandleFunc("/api/worker/{id}", m.workerDetails)
	r.HandleFunc("/api/modules", m.moduleStats)
	r.HandleFunc("/api/resource", m.listResources)

	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	m.listener = listener
	m.server = &http.Server{Handler: r}

	fmt.Fprintf(os.Stderr,
		"Monitoring coordinator with http://localhost:%d\n",
		listener.Addr().(*net.TCPAddr).Port)

	go func() {
		serveErr := m.server.Serve(listener)
		if serveErr != http.ErrServerClosed {
			dieOnErr(serveErr)
		}
	}()
}

// Port returns the port the server listens on. Valid after StartServer.
func (m *Monitor) Port() int {
	return m.listener.Addr().(*net.TCPAddr).Port
}

// StopServer shuts the server down.
func (m *Monitor) StopServer() {
	if m.server != nil {
		m.server.Close()
	}
}

func (m *Monitor) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, m.manager.Stats())
}

func (m *Monitor) listWorkers(w http.ResponseWriter, _ *http.Request) {
	stats := m.manager.Stats()

	fmt.Fprint(w, "[")
	first := true
	for id := range stats.Workers {
		if !first {
			fmt.Fprint(w, ",")
		}
		first = false

		fmt.Fprintf(w, "%q", id)
	}
	fmt.Fprint(w, "]")
}

func (m *Monitor) workerDetails(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	status, err := m.manager.WorkerStatus(id)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, "worker %s not found", id)
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(&status)
	serializer.SetMaxDepth(1)
	err = serializer.Serialize(w)

	dieOnErr(err)
}

func (m *Monitor) moduleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, m.loader.Stats())
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	proc, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := proc.CPUPercent()
	dieOnErr(err)

	memorySize, err := proc.MemoryInfo()
	dieOnErr(err)

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")

	data, err := json.Marshal(v)
	dieOnErr(err)

	_, err = w.Write(data)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
