package supervisor

import (
	"errors"
	"sync"

	"github.com/shirou/gopsutil/v3/process"
)

// ErrNoStats is returned by Stats when no local process is running.
var ErrNoStats = errors.New("no local process to sample")

// Stats is a resource usage sample of the running cluster-smi process.
type Stats struct {
	PID        int     `json:"pid"`
	CPUPercent float64 `json:"cpuPercent"`
	RSSBytes   uint64  `json:"rssBytes"`
	Threads    int32   `json:"threads"`
}

// statsSampler keeps the gopsutil handle between samples so CPU usage is
// measured over the time since the previous call.
type statsSampler struct {
	mu   sync.Mutex
	proc *process.Process
}

func (t *statsSampler) reset(pid int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.proc = nil
	if pid > 0 {
		// NewProcess fails if the process is already gone; Stats then reports ErrNoStats.
		t.proc, _ = process.NewProcess(int32(pid))
	}
}

func (t *statsSampler) sample() (Stats, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.proc == nil {
		return Stats{}, ErrNoStats
	}
	st := Stats{PID: int(t.proc.Pid)}
	cpu, err := t.proc.Percent(0)
	if err != nil {
		return Stats{}, err
	}
	st.CPUPercent = cpu
	if mem, err := t.proc.MemoryInfo(); err == nil {
		st.RSSBytes = mem.RSS
	}
	if n, err := t.proc.NumThreads(); err == nil {
		st.Threads = n
	}
	return st, nil
}

// Stats samples CPU and memory usage of the running local process. The
// first sample after a start reports 0% CPU.
func (s *Supervisor) Stats() (Stats, error) {
	return s.stats.sample()
}
