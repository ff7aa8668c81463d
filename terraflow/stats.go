// SPDX-License-Identifier: MIT

package terraflow

import (
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Stats is the prometheus-backed counters the pipeline updates as it
// runs: algorithmic warning counts and basic per-component throughput,
// per §7. It registers into its own private registry rather than the
// global default one, since this runs inside a one-shot CLI tool
// rather than a server with a /metrics endpoint.
type Stats struct {
	registry        *prometheus.Registry
	boundaryNodata  prometheus.Counter
	interiorNodata  prometheus.Counter
	pitsFilled      prometheus.Counter
	plateausFound   prometheus.Counter
	watershedsFound prometheus.Counter
	islandWarnings  prometheus.Counter
	timeTravel      prometheus.Counter
}

// NewStats builds a Stats with every counter registered and zeroed.
func NewStats() *Stats {
	s := &Stats{registry: prometheus.NewRegistry()}
	s.boundaryNodata = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "terraflow", Name: "boundary_nodata_cells_total",
		Help: "Cells classified as boundary nodata (8-connected to the grid edge).",
	})
	s.interiorNodata = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "terraflow", Name: "interior_nodata_cells_total",
		Help: "Cells classified as interior nodata voids.",
	})
	s.pitsFilled = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "terraflow", Name: "pits_filled_total",
		Help: "1-cell pits raised to their minimum neighbour during nodata classification.",
	})
	s.plateausFound = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "terraflow", Name: "plateaus_found_total",
		Help: "Distinct flat plateaus detected.",
	})
	s.watershedsFound = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "terraflow", Name: "watersheds_labeled_total",
		Help: "Fresh watershed labels minted during the labeling sweep.",
	})
	s.islandWarnings = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "terraflow", Name: "island_watersheds_total",
		Help: "Watersheds that never reached the grid boundary during depression fill.",
	})
	s.timeTravel = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "terraflow", Name: "time_travel_warnings_total",
		Help: "Flow contributions dropped because the receiving neighbour's priority was not strictly greater than the emitting cell's.",
	})
	s.registry.MustRegister(
		s.boundaryNodata, s.interiorNodata, s.pitsFilled,
		s.plateausFound, s.watershedsFound, s.islandWarnings,
		s.timeTravel,
	)
	return s
}

func (s *Stats) RecordNodata(st NodataStats) {
	s.boundaryNodata.Add(float64(st.Boundary))
	s.interiorNodata.Add(float64(st.Interior))
	s.pitsFilled.Add(float64(st.PitsFilled))
}

func (s *Stats) RecordPlateaus(n int)   { s.plateausFound.Add(float64(n)) }
func (s *Stats) RecordWatersheds(n int) { s.watershedsFound.Add(float64(n)) }
func (s *Stats) RecordIsland()          { s.islandWarnings.Inc() }
func (s *Stats) RecordTimeTravel(n int) { s.timeTravel.Add(float64(n)) }

// DumpText writes every registered metric in prometheus text exposition
// format to path (§6.3's stats= flag).
func (s *Stats) DumpText(path string) error {
	mfs, err := s.registry.Gather()
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := expfmt.NewEncoder(f, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
