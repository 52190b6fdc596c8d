package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/hackgods/opd-token-allocation/internal/logging"
)

// Schedule is the YAML layout accepted by --file.
type Schedule struct {
	Providers []ProviderSpec `yaml:"providers"`
}

type ProviderSpec struct {
	Name           string     `yaml:"name"`
	Specialization string     `yaml:"specialization"`
	Slots          []SlotSpec `yaml:"slots"`
}

type SlotSpec struct {
	Start    string `yaml:"start"`
	End      string `yaml:"end"`
	Capacity int    `yaml:"capacity"`
}

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

func main() {
	apiURL := flag.String("api", "http://localhost:8080", "base URL of the api-server")
	file := flag.String("file", "", "YAML schedule to load instead of generated data")
	providers := flag.Int("providers", 3, "number of generated providers")
	slots := flag.Int("slots", 6, "hourly slots per generated provider, starting at 09:00")
	seed := flag.Int64("seed", 0, "faker seed, 0 picks one from the clock")
	flag.Parse()

	logger, err := logging.New("dev", "info")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	var schedule Schedule
	if *file != "" {
		schedule, err = loadSchedule(*file)
		if err != nil {
			logger.Fatal("load schedule", zap.String("file", *file), zap.Error(err))
		}
	} else {
		if *seed == 0 {
			*seed = time.Now().UnixNano()
		}
		schedule = generateSchedule(gofakeit.New(uint64(*seed)), *providers, *slots)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c := &client{base: strings.TrimRight(*apiURL, "/"), http: &http.Client{Timeout: 10 * time.Second}}
	if err := c.apply(ctx, logger, schedule); err != nil {
		logger.Fatal("seed failed", zap.Error(err))
	}

	logger.Info("seed complete", zap.Int("providers", len(schedule.Providers)))
}

func loadSchedule(path string) (Schedule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Schedule{}, err
	}

	var s Schedule
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return Schedule{}, fmt.Errorf("parse yaml: %w", err)
	}
	if err := s.validate(); err != nil {
		return Schedule{}, err
	}
	return s, nil
}

func (s Schedule) validate() error {
	if len(s.Providers) == 0 {
		return fmt.Errorf("schedule has no providers")
	}
	for i, p := range s.Providers {
		if p.Name == "" || p.Specialization == "" {
			return fmt.Errorf("provider %d: name and specialization are required", i)
		}
		for j, slot := range p.Slots {
			if slot.Start == "" || slot.End == "" {
				return fmt.Errorf("provider %q slot %d: start and end are required", p.Name, j)
			}
			if slot.Capacity <= 0 {
				return fmt.Errorf("provider %q slot %d: capacity must be positive", p.Name, j)
			}
		}
	}
	return nil
}

// generateSchedule builds consecutive hourly slots from 09:00 with capacity 2 to 5.
func generateSchedule(faker *gofakeit.Faker, providers, slots int) Schedule {
	var s Schedule
	for i := 0; i < providers; i++ {
		p := ProviderSpec{
			Name:           "Dr. " + faker.LastName(),
			Specialization: specialties[faker.Number(0, len(specialties)-1)],
		}
		for h := 0; h < slots; h++ {
			p.Slots = append(p.Slots, SlotSpec{
				Start:    fmt.Sprintf("%02d:00", 9+h),
				End:      fmt.Sprintf("%02d:00", 10+h),
				Capacity: faker.Number(2, 5),
			})
		}
		s.Providers = append(s.Providers, p)
	}
	return s
}

type client struct {
	base string
	http *http.Client
}

func (c *client) apply(ctx context.Context, logger *zap.Logger, s Schedule) error {
	for _, p := range s.Providers {
		var created struct {
			ID uuid.UUID `json:"id"`
		}
		err := c.post(ctx, "/api/providers", map[string]string{
			"name":           p.Name,
			"specialization": p.Specialization,
		}, &created)
		if err != nil {
			return fmt.Errorf("create provider %q: %w", p.Name, err)
		}

		for _, slot := range p.Slots {
			err := c.post(ctx, "/api/providers/"+created.ID.String()+"/slots", map[string]any{
				"start":    slot.Start,
				"end":      slot.End,
				"capacity": slot.Capacity,
			}, nil)
			if err != nil {
				return fmt.Errorf("create slot %s-%s for %q: %w", slot.Start, slot.End, p.Name, err)
			}
		}

		logger.Info("provider seeded",
			zap.String("name", p.Name),
			zap.Stringer("provider_id", created.ID),
			zap.Int("slots", len(p.Slots)),
		)
	}
	return nil
}

func (c *client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
