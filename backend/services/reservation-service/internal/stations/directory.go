package stations

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"swapstation/backend/services/reservation-service/internal/metrics"
	"swapstation/backend/services/reservation-service/internal/models"
)

// DefaultSnapshotTTL is the idle age after which a session snapshot is pruned when no
// positive age is configured.
const DefaultSnapshotTTL = 2 * time.Hour

// ErrDirectoryUnavailable wraps failures of the upstream station backend.
var ErrDirectoryUnavailable = errors.New("stations: directory unavailable")

// Fetcher reads stations from the station backend.
type Fetcher interface {
	ListStations(ctx context.Context) ([]models.Station, error)
	NearbyStations(ctx context.Context, lat, lng, radiusKm float64) ([]models.Station, error)
	GetStation(ctx context.Context, stationID int64) (models.Station, error)
}

// Geocoder turns coordinates into an address.
type Geocoder interface {
	Reverse(ctx context.Context, lat, lng float64) (string, error)
}

// Query selects stations near an origin; without an origin every station is listed.
type Query struct {
	Origin   *Coordinates
	RadiusKm float64
}

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64
	Lng float64
}

// SearchResult is the outcome of one search. Stale is set when a newer search of the
// same session committed first, in which case the session snapshot was left alone.
type SearchResult struct {
	Stations []models.Station `json:"stations"`
	Location string           `json:"location,omitempty"`
	Seq      uint64           `json:"seq"`
	Stale    bool             `json:"stale"`
}

type snapshot struct {
	issued    uint64
	committed uint64
	stations  map[int64]models.Station
	updatedAt time.Time
}

// Directory keeps the last station search of every session. A search response only
// replaces the snapshot if no later search of that session committed before it.
type Directory struct {
	mu            sync.Mutex
	sessions      map[string]*snapshot
	fetcher       Fetcher
	geocoder      Geocoder
	defaultRadius float64
	metrics       *metrics.Metrics
	logger        *zap.Logger
	now           func() time.Time
}

// Options configures a Directory.
type Options struct {
	Fetcher       Fetcher
	Geocoder      Geocoder
	DefaultRadius float64
	Metrics       *metrics.Metrics
	Logger        *zap.Logger
}

// NewDirectory builds directory.
func NewDirectory(opts Options) *Directory {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	radius := opts.DefaultRadius
	if radius <= 0 {
		radius = 10
	}
	return &Directory{
		sessions:      make(map[string]*snapshot),
		fetcher:       opts.Fetcher,
		geocoder:      opts.Geocoder,
		defaultRadius: radius,
		metrics:       opts.Metrics,
		logger:        logger,
		now:           time.Now,
	}
}

// Search fetches stations for q and makes them the session's snapshot.
func (d *Directory) Search(ctx context.Context, session string, q Query) (SearchResult, error) {
	seq := d.begin(session)

	list, err := d.fetch(ctx, q)
	if err != nil {
		d.logger.Warn("station search failed", zap.Uint64("seq", seq), zap.Error(err))
		return SearchResult{Seq: seq}, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}

	result := SearchResult{
		Stations: list,
		Location: d.locate(ctx, q.Origin),
		Seq:      seq,
	}
	if !d.commit(session, seq, list) {
		d.metrics.StaleSearchDiscarded()
		d.logger.Debug("discarding stale station search", zap.Uint64("seq", seq))
		result.Stale = true
	}
	return result, nil
}

// Refresh refetches one station and updates it in the session snapshot when present.
func (d *Directory) Refresh(ctx context.Context, session string, stationID int64) (models.Station, error) {
	start := d.now()
	st, err := d.fetcher.GetStation(ctx, stationID)
	d.metrics.ObserveStationFetch("get", err == nil, d.now().Sub(start))
	if err != nil {
		return models.Station{}, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if snap, ok := d.sessions[session]; ok {
		if _, known := snap.stations[stationID]; known {
			snap.stations[stationID] = st
		}
	}
	return st, nil
}

// Station looks up a station in the session snapshot.
func (d *Directory) Station(session string, stationID int64) (models.Station, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	snap, ok := d.sessions[session]
	if !ok || snap.stations == nil {
		return models.Station{}, false
	}
	st, ok := snap.stations[stationID]
	return st, ok
}

// Source binds the directory to one session for the quota engine.
func (d *Directory) Source(session string) SessionSource {
	return SessionSource{dir: d, session: session}
}

// Forget drops the snapshot of session.
func (d *Directory) Forget(session string) {
	d.mu.Lock()
	delete(d.sessions, session)
	d.mu.Unlock()
}

// Prune drops snapshots not updated within maxAge and returns how many were removed.
// A non-positive maxAge means DefaultSnapshotTTL.
func (d *Directory) Prune(maxAge time.Duration) int {
	if maxAge <= 0 {
		maxAge = DefaultSnapshotTTL
	}
	cutoff := d.now().Add(-maxAge)
	d.mu.Lock()
	defer d.mu.Unlock()
	removed := 0
	for session, snap := range d.sessions {
		if snap.updatedAt.Before(cutoff) {
			delete(d.sessions, session)
			removed++
		}
	}
	return removed
}

// Run prunes idle snapshots every interval until ctx is done.
func (d *Directory) Run(ctx context.Context, interval, maxAge time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := d.Prune(maxAge); n > 0 {
				d.logger.Debug("pruned station snapshots", zap.Int("count", n))
			}
		}
	}
}

func (d *Directory) begin(session string) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	snap, ok := d.sessions[session]
	if !ok {
		snap = &snapshot{}
		d.sessions[session] = snap
	}
	snap.issued++
	snap.updatedAt = d.now()
	return snap.issued
}

func (d *Directory) commit(session string, seq uint64, list []models.Station) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	snap, ok := d.sessions[session]
	if !ok {
		snap = &snapshot{issued: seq}
		d.sessions[session] = snap
	}
	if seq < snap.committed {
		return false
	}
	byID := make(map[int64]models.Station, len(list))
	for _, st := range list {
		byID[st.ID] = st
	}
	snap.committed = seq
	snap.stations = byID
	snap.updatedAt = d.now()
	return true
}

func (d *Directory) fetch(ctx context.Context, q Query) ([]models.Station, error) {
	start := d.now()
	var (
		list     []models.Station
		err      error
		endpoint string
	)
	if q.Origin != nil {
		radius := q.RadiusKm
		if radius <= 0 {
			radius = d.defaultRadius
		}
		endpoint = "nearby"
		list, err = d.fetcher.NearbyStations(ctx, q.Origin.Lat, q.Origin.Lng, radius)
	} else {
		endpoint = "list"
		list, err = d.fetcher.ListStations(ctx)
	}
	d.metrics.ObserveStationFetch(endpoint, err == nil, d.now().Sub(start))
	return list, err
}

func (d *Directory) locate(ctx context.Context, origin *Coordinates) string {
	if origin == nil {
		return ""
	}
	fallback := fmt.Sprintf("%.5f, %.5f", origin.Lat, origin.Lng)
	if d.geocoder == nil {
		return fallback
	}
	name, err := d.geocoder.Reverse(ctx, origin.Lat, origin.Lng)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			d.logger.Info("reverse geocoding failed, using coordinates", zap.Error(err))
		}
		return fallback
	}
	return name
}

// SessionSource resolves stations from one session's snapshot.
type SessionSource struct {
	dir     *Directory
	session string
}

// Station implements quota.StationSource.
func (s SessionSource) Station(stationID int64) (models.Station, bool) {
	return s.dir.Station(s.session, stationID)
}
