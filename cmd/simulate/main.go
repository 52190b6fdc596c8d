package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/hackgods/opd-token-allocation/internal/allocation"
	"github.com/hackgods/opd-token-allocation/internal/lock"
	"github.com/hackgods/opd-token-allocation/internal/logging"
)

type SimConfig struct {
	Providers   int
	Slots       int
	Requests    int
	Workers     int
	Seed        int64
	HotRatio    float64
	CancelRatio float64
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, min, max, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

var specialties = []string{"General Medicine", "Pediatrics", "Orthopedics", "Dermatology", "ENT"}

type job struct {
	providerID uuid.UUID
	slotID     uuid.UUID
	patient    string
	source     allocation.Source
	cancel     bool
}

// Simulator drives one in-process engine with a generated OPD day.
type Simulator struct {
	config    SimConfig
	svc       *allocation.Service
	providers []allocation.Provider
	slots     map[uuid.UUID][]allocation.Slot

	Request OperationMetrics
	Cancel  OperationMetrics

	mu       sync.Mutex
	bySource map[allocation.Source]int
}

func main() {
	var cfg SimConfig
	flag.IntVar(&cfg.Providers, "providers", 3, "number of providers")
	flag.IntVar(&cfg.Slots, "slots", 6, "hourly slots per provider")
	flag.IntVar(&cfg.Requests, "requests", 200, "token requests to issue")
	flag.IntVar(&cfg.Workers, "workers", 8, "concurrent workers")
	flag.Int64Var(&cfg.Seed, "seed", 0, "random seed, 0 picks one from the clock")
	flag.Float64Var(&cfg.HotRatio, "hot-ratio", 0.8, "share of requests aimed at each provider's first slot")
	flag.Float64Var(&cfg.CancelRatio, "cancel-ratio", 0.05, "share of requests followed by a cancellation")
	flag.Parse()

	logger, err := logging.New("dev", "warn")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := validateConfig(cfg); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}

	ctx := context.Background()
	sim, err := NewSimulator(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("setup failed", zap.Error(err))
	}

	start := time.Now()
	sim.Run(ctx)
	elapsed := time.Since(start)

	if err := sim.PrintReport(ctx, elapsed); err != nil {
		logger.Fatal("simulation check failed", zap.Error(err))
	}
}

func validateConfig(cfg SimConfig) error {
	switch {
	case cfg.Providers <= 0:
		return errors.New("--providers must be > 0")
	case cfg.Slots <= 0:
		return errors.New("--slots must be > 0")
	case cfg.Slots > 14:
		return errors.New("--slots must be <= 14 to fit in one day from 09:00")
	case cfg.Requests < 0:
		return errors.New("--requests must be >= 0")
	case cfg.Workers <= 0:
		return errors.New("--workers must be > 0")
	case cfg.HotRatio < 0 || cfg.HotRatio > 1:
		return errors.New("--hot-ratio must be within [0, 1]")
	case cfg.CancelRatio < 0 || cfg.CancelRatio > 1:
		return errors.New("--cancel-ratio must be within [0, 1]")
	}
	return nil
}

func NewSimulator(ctx context.Context, cfg SimConfig, logger *zap.Logger) (*Simulator, error) {
	svc := allocation.NewService(allocation.NewMemoryStore(), lock.NewMemoryLocker(), logger)
	faker := gofakeit.New(uint64(cfg.Seed))
	rng := rand.New(rand.NewSource(cfg.Seed))

	sim := &Simulator{
		config:   cfg,
		svc:      svc,
		slots:    make(map[uuid.UUID][]allocation.Slot),
		bySource: make(map[allocation.Source]int),
	}

	for i := 0; i < cfg.Providers; i++ {
		p, err := svc.CreateProvider(ctx, "Dr. "+faker.LastName(), faker.RandomString(specialties))
		if err != nil {
			return nil, fmt.Errorf("create provider: %w", err)
		}
		sim.providers = append(sim.providers, *p)

		for h := 0; h < cfg.Slots; h++ {
			slot, err := svc.CreateSlot(ctx, p.ID,
				fmt.Sprintf("%02d:00", 9+h), fmt.Sprintf("%02d:00", 10+h), 3+rng.Intn(3))
			if err != nil {
				return nil, fmt.Errorf("create slot: %w", err)
			}
			sim.slots[p.ID] = append(sim.slots[p.ID], *slot)
		}
	}

	return sim, nil
}

// plan builds every job up front so a seed reproduces the same request mix.
func (s *Simulator) plan() []job {
	faker := gofakeit.New(uint64(s.config.Seed) + 1)
	rng := rand.New(rand.NewSource(s.config.Seed + 1))
	sources := allocation.Sources()

	jobs := make([]job, 0, s.config.Requests)
	for i := 0; i < s.config.Requests; i++ {
		p := s.providers[rng.Intn(len(s.providers))]
		slots := s.slots[p.ID]

		slot := slots[0]
		if len(slots) > 1 && rng.Float64() >= s.config.HotRatio {
			slot = slots[1+rng.Intn(len(slots)-1)]
		}

		jobs = append(jobs, job{
			providerID: p.ID,
			slotID:     slot.ID,
			patient:    faker.Name(),
			source:     sources[rng.Intn(len(sources))],
			cancel:     rng.Float64() < s.config.CancelRatio,
		})
	}
	return jobs
}

func (s *Simulator) Run(ctx context.Context) {
	jobs := make(chan job)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				s.do(ctx, j)
			}
		}()
	}

	for _, j := range s.plan() {
		jobs <- j
	}
	close(jobs)
	wg.Wait()
}

func (s *Simulator) do(ctx context.Context, j job) {
	start := time.Now()
	token, err := s.svc.RequestToken(ctx, j.providerID, j.slotID, j.patient, string(j.source))
	s.Request.Record(time.Since(start), err == nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.bySource[j.source]++
	s.mu.Unlock()

	if !j.cancel {
		return
	}

	start = time.Now()
	_, err = s.svc.CancelToken(ctx, token.ID)
	s.Cancel.Record(time.Since(start), err == nil)
}

// PrintReport prints the final schedule and checks that no slot is over capacity.
func (s *Simulator) PrintReport(ctx context.Context, elapsed time.Duration) error {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Seed: %d\n", s.config.Seed)
	fmt.Printf("Providers: %d  Slots/provider: %d  Requests: %d  Workers: %d\n",
		s.config.Providers, s.config.Slots, s.config.Requests, s.config.Workers)
	fmt.Printf("Elapsed: %s\n\n", elapsed.Round(time.Millisecond))

	printOperationReport("Request token", &s.Request)
	printOperationReport("Cancel token", &s.Cancel)

	fmt.Println("Requests by source:")
	for _, src := range allocation.Sources() {
		fmt.Printf("  %-10s %d\n", src, s.bySource[src])
	}
	fmt.Println()

	var violations []string
	for _, p := range s.providers {
		views, err := s.svc.ListSlots(ctx, p.ID)
		if err != nil {
			return fmt.Errorf("list slots for %s: %w", p.Name, err)
		}
		waitlist, err := s.svc.Waitlist(ctx, p.ID)
		if err != nil {
			return fmt.Errorf("waitlist for %s: %w", p.Name, err)
		}

		fmt.Printf("%s (%s):\n", p.Name, p.Specialization)
		for _, v := range views {
			marker := ""
			if v.IsFull {
				marker = " full"
			}
			fmt.Printf("  %s-%s  %d/%d%s\n", v.Slot.Start, v.Slot.End, v.CurrentCount, v.Slot.Capacity, marker)
			if v.CurrentCount > v.Slot.Capacity {
				violations = append(violations, fmt.Sprintf("%s %s over capacity", p.Name, v.Slot.Start))
			}
		}
		fmt.Printf("  waitlist: %d\n\n", len(waitlist))
	}

	if len(violations) > 0 {
		return fmt.Errorf("capacity violated: %s", strings.Join(violations, "; "))
	}
	fmt.Println("capacity check: ok")
	return nil
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	failed := atomic.LoadInt64(&om.Error)
	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg, min, max, p50, p95)
	fmt.Println()
}
