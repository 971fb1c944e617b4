package metrics

import (
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
)

// DefaultSampleInterval is how often tracked capture processes are sampled.
const DefaultSampleInterval = 5 * time.Second

// ProcessSampler periodically samples CPU and memory of the capture
// processes currently in flight, one per source. Track replaces the pid
// for a source on retry; Untrack removes the series when the capture
// reaches a terminal outcome.
type ProcessSampler struct {
	interval time.Duration

	mu   sync.Mutex
	pids map[string]int32

	quit chan struct{}
	once sync.Once
	wg   sync.WaitGroup

	cpuPercent *prometheus.GaugeVec
	memoryMB   *prometheus.GaugeVec
	numThreads *prometheus.GaugeVec
	numFDs     *prometheus.GaugeVec
}

func NewProcessSampler(interval time.Duration) *ProcessSampler {
	if interval <= 0 {
		interval = DefaultSampleInterval
	}
	return &ProcessSampler{
		interval: interval,
		pids:     make(map[string]int32),
		quit:     make(chan struct{}),
		cpuPercent: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "capturr",
				Subsystem: "process",
				Name:      "cpu_percent",
				Help:      "CPU usage percentage of the capture process per source.",
			}, []string{"source"},
		),
		memoryMB: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "capturr",
				Subsystem: "process",
				Name:      "memory_mb",
				Help:      "Resident memory in MB of the capture process per source.",
			}, []string{"source"},
		),
		numThreads: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "capturr",
				Subsystem: "process",
				Name:      "num_threads",
				Help:      "Thread count of the capture process per source.",
			}, []string{"source"},
		),
		numFDs: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "capturr",
				Subsystem: "process",
				Name:      "num_fds",
				Help:      "File descriptor count of the capture process per source (Unix only).",
			}, []string{"source"},
		),
	}
}

// Register registers the sampler gauges with r. Already-registered
// collectors are tolerated so Register can be called alongside Register of
// the package metrics on the same registry.
func (s *ProcessSampler) Register(r prometheus.Registerer) error {
	cs := []prometheus.Collector{s.cpuPercent, s.memoryMB, s.numThreads}
	if runtime.GOOS != "windows" {
		cs = append(cs, s.numFDs)
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// Start launches the sampling loop. Call Stop to end it.
func (s *ProcessSampler) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTicker(s.interval)
		defer t.Stop()
		for {
			select {
			case <-s.quit:
				return
			case <-t.C:
				s.sample()
			}
		}
	}()
}

// Stop ends the sampling loop.
func (s *ProcessSampler) Stop() {
	s.once.Do(func() { close(s.quit) })
	s.wg.Wait()
}

// Track starts sampling pid for source, replacing any previous pid.
func (s *ProcessSampler) Track(source string, pid int) {
	s.mu.Lock()
	s.pids[source] = int32(pid) // #nosec G115 -- pids fit in int32
	s.mu.Unlock()
}

// Untrack stops sampling for source and drops its series.
func (s *ProcessSampler) Untrack(source string) {
	s.mu.Lock()
	delete(s.pids, source)
	s.mu.Unlock()
	s.cpuPercent.DeleteLabelValues(source)
	s.memoryMB.DeleteLabelValues(source)
	s.numThreads.DeleteLabelValues(source)
	if runtime.GOOS != "windows" {
		s.numFDs.DeleteLabelValues(source)
	}
}

func (s *ProcessSampler) sample() {
	s.mu.Lock()
	snapshot := make(map[string]int32, len(s.pids))
	for src, pid := range s.pids {
		snapshot[src] = pid
	}
	s.mu.Unlock()

	for src, pid := range snapshot {
		proc, err := process.NewProcess(pid)
		if err != nil {
			continue
		}
		if cpu, err := proc.CPUPercent(); err == nil {
			s.cpuPercent.WithLabelValues(src).Set(cpu)
		}
		if mem, err := proc.MemoryInfo(); err == nil {
			s.memoryMB.WithLabelValues(src).Set(float64(mem.RSS) / 1024 / 1024)
		}
		if threads, err := proc.NumThreads(); err == nil {
			s.numThreads.WithLabelValues(src).Set(float64(threads))
		}
		if runtime.GOOS != "windows" {
			if fds, err := proc.NumFDs(); err == nil {
				s.numFDs.WithLabelValues(src).Set(float64(fds))
			}
		}
	}
}
