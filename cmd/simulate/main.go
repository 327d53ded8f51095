package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/appointment-sync/internal/appointment"
	"github.com/hackgods/appointment-sync/internal/logging"
)

// Drives booking traffic at one or more agents. Every agent keeps its own
// store, so with several agents the advisory slot check can be raced; the
// report counts the double bookings that got through.

type SimConfig struct {
	Agents          []string
	Duration        time.Duration
	Workers         int
	Days            int
	RescheduleRatio float64
	ReadRatio       float64
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Percentile(p int) time.Duration {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0
	}
	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	idx := len(latencies) * p / 100
	if idx >= len(latencies) {
		idx = len(latencies) - 1
	}
	return latencies[idx]
}

type Metrics struct {
	Booking    OperationMetrics
	Reschedule OperationMetrics
	Slots      OperationMetrics
}

type Simulator struct {
	config  SimConfig
	client  *http.Client
	dates   []string
	metrics Metrics
	log     zerolog.Logger

	mu     sync.Mutex
	booked []booking
}

type booking struct {
	agent string
	id    string
}

func main() {
	log := logging.New(getEnv("APP_ENV", "dev"), "simulate")

	cfg := SimConfig{
		Agents:          strings.Split(getEnv("SIM_API_BASE_URLS", "http://localhost:8080"), ","),
		Duration:        getDuration("SIM_DURATION", 30*time.Second),
		Workers:         getInt("SIM_WORKERS", 10),
		Days:            getInt("SIM_DAYS", 10),
		RescheduleRatio: getFloat("SIM_RESCHEDULE_RATIO", 0.1),
		ReadRatio:       getFloat("SIM_READ_RATIO", 0.3),
	}
	if cfg.Workers <= 0 || cfg.Duration <= 0 {
		log.Fatal().Msg("SIM_WORKERS and SIM_DURATION must be > 0")
	}

	checker := appointment.DefaultChecker()
	var dates []string
	for d := 0; len(dates) < cfg.Days && d < cfg.Days*2; d++ {
		date := appointment.FormatDate(time.Now().UTC().AddDate(0, 0, d))
		if ok, _ := checker.Bookable(date); ok {
			dates = append(dates, date)
		}
	}
	if len(dates) == 0 {
		log.Fatal().Int("days", cfg.Days).Msg("no bookable dates in range")
	}

	sim := &Simulator{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		dates:  dates,
		log:    log,
	}

	log.Info().Strs("agents", cfg.Agents).Int("workers", cfg.Workers).Dur("duration", cfg.Duration).
		Msg("starting simulation")
	sim.Run()
	sim.PrintReport()
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
			for ctx.Err() == nil {
				agent := s.config.Agents[rng.Intn(len(s.config.Agents))]
				r := rng.Float64()
				switch {
				case r < s.config.ReadRatio:
					s.doSlots(ctx, rng, agent)
				case r < s.config.ReadRatio+s.config.RescheduleRatio:
					s.doReschedule(ctx, rng)
				default:
					s.doBooking(ctx, rng, agent)
				}
			}
		}(i)
	}
	wg.Wait()
}

func (s *Simulator) randomSlot(rng *rand.Rand) (string, string) {
	date := s.dates[rng.Intn(len(s.dates))]
	start := appointment.FormatClock(9*60 + appointment.SlotStep*rng.Intn(31))
	return date, start
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand, agent string) {
	date, start := s.randomSlot(rng)
	body, _ := json.Marshal(map[string]string{
		"date":         date,
		"start_time":   start,
		"type":         appointment.TypeConsultation,
		"patient_name": fmt.Sprintf("Sim Patient %d", rng.Intn(10000)),
	})

	begin := time.Now()
	status, resp, err := s.do(ctx, http.MethodPost, agent+"/appointments", body)
	latency := time.Since(begin)

	if err == nil && status == http.StatusCreated {
		var created struct {
			ID string `json:"id"`
		}
		if json.Unmarshal(resp, &created) == nil && created.ID != "" {
			s.mu.Lock()
			s.booked = append(s.booked, booking{agent: agent, id: created.ID})
			s.mu.Unlock()
		}
	}
	s.metrics.Booking.Record(latency, err == nil && status == http.StatusCreated,
		err == nil && (status == http.StatusConflict || status == http.StatusBadRequest))
}

func (s *Simulator) doReschedule(ctx context.Context, rng *rand.Rand) {
	s.mu.Lock()
	if len(s.booked) == 0 {
		s.mu.Unlock()
		return
	}
	idx := rng.Intn(len(s.booked))
	b := s.booked[idx]
	s.mu.Unlock()

	date, start := s.randomSlot(rng)
	body, _ := json.Marshal(map[string]string{"date": date, "start_time": start})

	begin := time.Now()
	status, resp, err := s.do(ctx, http.MethodPost, b.agent+"/appointments/"+b.id+"/reschedule", body)
	latency := time.Since(begin)

	if err == nil && status == http.StatusOK {
		var moved struct {
			ID string `json:"id"`
		}
		if json.Unmarshal(resp, &moved) == nil {
			s.mu.Lock()
			for i := range s.booked {
				if s.booked[i].id == b.id {
					s.booked[i].id = moved.ID
				}
			}
			s.mu.Unlock()
		}
	}
	s.metrics.Reschedule.Record(latency, err == nil && status == http.StatusOK,
		err == nil && status == http.StatusConflict)
}

func (s *Simulator) doSlots(ctx context.Context, rng *rand.Rand, agent string) {
	date := s.dates[rng.Intn(len(s.dates))]

	begin := time.Now()
	status, _, err := s.do(ctx, http.MethodGet, agent+"/slots?date="+date, nil)
	s.metrics.Slots.Record(time.Since(begin), err == nil && status == http.StatusOK, false)
}

func (s *Simulator) do(ctx context.Context, method, url string, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	return resp.StatusCode, buf.Bytes(), nil
}

// doubleBookings reads every simulated date back from the first agent and
// counts overlapping consultation pairs.
func (s *Simulator) doubleBookings() int {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	count := 0
	for _, date := range s.dates {
		status, body, err := s.do(ctx, http.MethodGet, s.config.Agents[0]+"/appointments?date="+date, nil)
		if err != nil || status != http.StatusOK {
			continue
		}
		var day []appointment.Appointment
		if json.Unmarshal(body, &day) != nil {
			continue
		}
		for i := range day {
			conflicts, _ := appointment.DefaultChecker().Conflicts(date, day[i].StartTime, day[i+1:])
			if day[i].Type == appointment.TypeConsultation && day[i].StatusCode != appointment.StatusCancelled {
				count += len(conflicts)
			}
		}
	}
	return count
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Agents: %d\n\n", len(s.config.Agents))

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Reschedule", &s.metrics.Reschedule)
	printOperationReport("Free slots", &s.metrics.Slots)

	fmt.Printf("Double bookings observed: %d\n", s.doubleBookings())
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Rejected: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: p50=%s p95=%s\n",
		om.Percentile(50).Round(time.Millisecond), om.Percentile(95).Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
