// Package monitoring turns a live allocator into a small web server so that
// the partition can be inspected while a session runs.
package monitoring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/rs/xid"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/oslab/contigsim/alloc"
)

// Monitor serves the state of an allocator over HTTP. The allocator performs
// no locking of its own, so the monitor serializes every access with its own
// lock. The lock must also be held by the party that mutates the allocator;
// use Exclusive for that.
type Monitor struct {
	allocator   alloc.Allocator
	portNumber  int
	openBrowser bool
	sessionID   string

	lock sync.Mutex
}

// NewMonitor creates a new Monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		sessionID: xid.New().String(),
	}
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

// WithBrowser makes the monitor open the status page in a browser when the
// server starts.
func (m *Monitor) WithBrowser() *Monitor {
	m.openBrowser = true
	return m
}

// RegisterAllocator registers the allocator to be monitored.
func (m *Monitor) RegisterAllocator(a alloc.Allocator) {
	m.allocator = a
}

// Exclusive runs f while holding the monitor lock. Mutations of the
// registered allocator must go through it while the server is running.
func (m *Monitor) Exclusive(f func()) {
	m.lock.Lock()
	defer m.lock.Unlock()

	f()
}

// StartServer starts the monitor as a web server and reports the address it
// listens on.
func (m *Monitor) StartServer() {
	r := mux.NewRouter()
	r.HandleFunc("/api/status", m.status)
	r.HandleFunc("/api/stats", m.stats)
	r.HandleFunc("/api/allocator", m.allocatorState)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)

	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)
	fmt.Fprintf(os.Stderr, "Monitoring allocator with %s/api/status\n", url)

	go func() {
		err := http.Serve(listener, r)
		dieOnErr(err)
	}()

	if m.openBrowser {
		err := browser.OpenURL(url + "/api/status")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Cannot open browser: %s\n", err)
		}
	}
}

type blockRsp struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Size  int    `json:"size"`
	Free  bool   `json:"free"`
	Owner string `json:"owner,omitempty"`
}

type statusRsp struct {
	SessionID string     `json:"session_id"`
	Capacity  int        `json:"capacity"`
	Blocks    []blockRsp `json:"blocks"`
}

func (m *Monitor) status(w http.ResponseWriter, _ *http.Request) {
	m.lock.Lock()
	snapshot := m.allocator.Status()
	capacity := m.allocator.Capacity()
	m.lock.Unlock()

	rsp := statusRsp{
		SessionID: m.sessionID,
		Capacity:  capacity,
		Blocks:    make([]blockRsp, 0, len(snapshot)),
	}

	for _, b := range snapshot {
		owner, used := b.Owner()
		rsp.Blocks = append(rsp.Blocks, blockRsp{
			Start: b.Start,
			End:   b.End,
			Size:  b.Size(),
			Free:  !used,
			Owner: owner,
		})
	}

	writeJSON(w, rsp)
}

func (m *Monitor) stats(w http.ResponseWriter, _ *http.Request) {
	m.lock.Lock()
	s := m.allocator.Stats()
	m.lock.Unlock()

	writeJSON(w, s)
}

func (m *Monitor) allocatorState(w http.ResponseWriter, _ *http.Request) {
	m.lock.Lock()
	defer m.lock.Unlock()

	serializer := goseth.NewSerializer()
	serializer.SetRoot(m.allocator)
	serializer.SetMaxDepth(1)

	err := serializer.Serialize(w)
	dieOnErr(err)
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

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	dieOnErr(err)

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")

	bytes, err := json.Marshal(v)
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
