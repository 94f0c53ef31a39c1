// Package occupancy derives ward occupancy from the bed inventory, raises
// critical alerts when a ward fills up and exports the inventory as a
// spreadsheet.
package occupancy

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bedtrack/bedtrack/internal/domain/alert"
	"github.com/bedtrack/bedtrack/internal/domain/bed"
	"github.com/bedtrack/bedtrack/internal/domain/settings"
)

// BedSource is the part of the bed service occupancy reads from.
type BedSource interface {
	Stats(ctx context.Context) ([]bed.WardCount, error)
	List(ctx context.Context, f bed.Filter) ([]*bed.Bed, int, error)
}

type WardSummary struct {
	Ward         string  `json:"ward"`
	Total        int     `json:"total"`
	Available    int     `json:"available"`
	Occupied     int     `json:"occupied"`
	Cleaning     int     `json:"cleaning"`
	Reserved     int     `json:"reserved"`
	Maintenance  int     `json:"maintenance"`
	OccupancyPct float64 `json:"occupancy_pct"`
}

func (w *WardSummary) add(status bed.Status, n int) {
	w.Total += n
	switch status {
	case bed.StatusAvailable:
		w.Available += n
	case bed.StatusOccupied:
		w.Occupied += n
	case bed.StatusCleaning:
		w.Cleaning += n
	case bed.StatusReserved:
		w.Reserved += n
	case bed.StatusMaintenance:
		w.Maintenance += n
	}
}

// Reserved beds count as taken.
func (w *WardSummary) computePct() {
	if w.Total == 0 {
		w.OccupancyPct = 0
		return
	}
	pct := float64(w.Occupied+w.Reserved) * 100 / float64(w.Total)
	w.OccupancyPct = math.Round(pct*10) / 10
}

type Summary struct {
	Wards       []WardSummary `json:"wards"`
	Hospital    WardSummary   `json:"hospital"`
	GeneratedAt time.Time     `json:"generated_at"`
}

type Service struct {
	beds     BedSource
	alerts   alert.Sink
	settings settings.Provider
	logger   zerolog.Logger

	mu       sync.Mutex
	critical map[string]bool
}

func NewService(beds BedSource, alerts alert.Sink, sp settings.Provider, logger zerolog.Logger) *Service {
	return &Service{
		beds:     beds,
		alerts:   alerts,
		settings: sp,
		logger:   logger.With().Str("component", "occupancy").Logger(),
		critical: make(map[string]bool),
	}
}

// Summary counts beds per ward and status. Wards are sorted by name.
func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	counts, err := s.beds.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("load bed stats: %w", err)
	}
	byWard := make(map[string]*WardSummary)
	out := &Summary{Hospital: WardSummary{Ward: "All wards"}, GeneratedAt: time.Now().UTC()}
	for _, c := range counts {
		w, ok := byWard[c.Ward]
		if !ok {
			w = &WardSummary{Ward: c.Ward}
			byWard[c.Ward] = w
		}
		w.add(c.Status, c.Count)
		out.Hospital.add(c.Status, c.Count)
	}
	for _, w := range byWard {
		w.computePct()
		out.Wards = append(out.Wards, *w)
	}
	sort.Slice(out.Wards, func(i, j int) bool { return out.Wards[i].Ward < out.Wards[j].Ward })
	out.Hospital.computePct()
	return out, nil
}

// CheckThresholds raises one critical alert each time a ward's occupancy
// crosses the configured threshold. A ward must drop back below the
// threshold before it can alert again. It returns the wards alerted.
func (s *Service) CheckThresholds(ctx context.Context) ([]string, error) {
	sum, err := s.Summary(ctx)
	if err != nil {
		return nil, err
	}
	threshold := float64(s.settings.Current().CriticalOccupancyPct)

	s.mu.Lock()
	var crossed []WardSummary
	for _, w := range sum.Wards {
		over := w.Total > 0 && w.OccupancyPct >= threshold
		switch {
		case over && !s.critical[w.Ward]:
			s.critical[w.Ward] = true
			crossed = append(crossed, w)
		case !over && s.critical[w.Ward]:
			delete(s.critical, w.Ward)
		}
	}
	s.mu.Unlock()

	var alerted []string
	for _, w := range crossed {
		s.logger.Warn().Str("ward", w.Ward).Float64("occupancy_pct", w.OccupancyPct).Msg("ward occupancy critical")
		alerted = append(alerted, w.Ward)
		if s.alerts == nil {
			continue
		}
		msg := fmt.Sprintf("%s occupancy at %.1f%% (%d of %d beds taken)",
			w.Ward, w.OccupancyPct, w.Occupied+w.Reserved, w.Total)
		err := s.alerts.Create(ctx, alert.Input{
			Severity: alert.SeverityCritical,
			Message:  msg,
			Ward:     w.Ward,
			Priority: 5,
		})
		if err != nil {
			s.logger.Error().Err(err).Str("ward", w.Ward).Msg("failed to raise occupancy alert")
		}
	}
	return alerted, nil
}

const inventoryPage = 500

// inventory pages through every bed.
func (s *Service) inventory(ctx context.Context) ([]*bed.Bed, error) {
	var all []*bed.Bed
	for offset := 0; ; offset += inventoryPage {
		page, total, err := s.beds.List(ctx, bed.Filter{Limit: inventoryPage, Offset: offset})
		if err != nil {
			return nil, fmt.Errorf("list beds: %w", err)
		}
		all = append(all, page...)
		if len(page) < inventoryPage || len(all) >= total {
			return all, nil
		}
	}
}
