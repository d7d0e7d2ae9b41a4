package austrianelevation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

var (
	rowCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "austrianelevation_row_cache_hits_total",
		Help: "The total number of hits on the row file cache",
	})
	rowCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "austrianelevation_row_cache_misses_total",
		Help: "The total number of misses on the row file cache",
	})
	rowCacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "austrianelevation_row_cache_evictions_total",
		Help: "The total number of evictions from the row file cache",
	})
	rowStoreHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "austrianelevation_row_store_hits_total",
		Help: "The total number of row files read from the local store",
	})
	rowFetches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "austrianelevation_row_fetches_total",
		Help: "The total number of row files fetched from the remote source",
	})
)

var errNonFiniteCoord = errors.New("non-finite coordinate")

// A RowKeyFunc returns the row key for a raster coordinate.
type RowKeyFunc func(Coord) RowKey

// A RowFileSet is a set of row files that are fetched from a RowSource on
// demand and persisted in a RowStore.
type RowFileSet struct {
	mutex        sync.Mutex
	source       RowSource
	store        RowStore
	srid         int
	rowKeyFunc   RowKeyFunc
	logger       logrus.FieldLogger
	cacheSize    int
	rowFileCache *lru.Cache[RowKey, *RowFile]
}

// A RowFileSetOption sets an option on a RowFileSet.
type RowFileSetOption func(*RowFileSet)

// NewRowFileSet returns a new RowFileSet with the given options.
func NewRowFileSet(options ...RowFileSetOption) (*RowFileSet, error) {
	s := &RowFileSet{
		srid:       DefaultSRID,
		rowKeyFunc: AustrianRowKey,
		cacheSize:  256,
	}
	for _, option := range options {
		option(s)
	}

	if s.source == nil {
		return nil, errors.New("no row source")
	}
	if s.logger == nil {
		logger := logrus.New()
		logger.SetOutput(io.Discard)
		s.logger = logger
	}

	var err error
	s.rowFileCache, err = lru.NewWithEvict(s.cacheSize, func(key RowKey, value *RowFile) {
		rowCacheEvictions.Inc()
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func WithCacheSize(cacheSize int) RowFileSetOption {
	return func(s *RowFileSet) {
		s.cacheSize = cacheSize
	}
}

func WithLogger(logger logrus.FieldLogger) RowFileSetOption {
	return func(s *RowFileSet) {
		s.logger = logger
	}
}

func WithRowKeyFunc(rowKeyFunc RowKeyFunc) RowFileSetOption {
	return func(s *RowFileSet) {
		s.rowKeyFunc = rowKeyFunc
	}
}

func WithSource(source RowSource) RowFileSetOption {
	return func(s *RowFileSet) {
		s.source = source
	}
}

func WithSRID(srid int) RowFileSetOption {
	return func(s *RowFileSet) {
		s.srid = srid
	}
}

// WithStore sets the store in which fetched row files are persisted. A nil
// store keeps row files in memory only.
func WithStore(store RowStore) RowFileSetOption {
	return func(s *RowFileSet) {
		s.store = store
	}
}

// Elevation returns the elevation at p and whether it was found.
func (s *RowFileSet) Elevation(ctx context.Context, p Point) (int, bool, error) {
	x, y := p.X(), p.Y()
	if !isFinite(x) || !isFinite(y) {
		return 0, false, fmt.Errorf("%v, %v: %w", x, y, errNonFiniteCoord)
	}
	return s.Sample(ctx, CoordOf(p))
}

// Sample returns the elevation of the raster cell at coord and whether it was
// found.
func (s *RowFileSet) Sample(ctx context.Context, coord Coord) (int, bool, error) {
	rowFile, err := s.RowFile(ctx, s.rowKeyFunc(coord))
	if err != nil {
		return 0, false, err
	}
	elevation, ok := rowFile.Lookup(coord.X)
	return elevation, ok, nil
}

// Samples returns the samples at coords. Missing samples are represented by
// NaNs.
func (s *RowFileSet) Samples(ctx context.Context, coords []Coord) ([]float64, error) {
	samples := make([]float64, len(coords))

	// Group indexes by row key.
	indexesByRowKey := make(map[RowKey][]int)
	for index, coord := range coords {
		rowKey := s.rowKeyFunc(coord)
		indexesByRowKey[rowKey] = append(indexesByRowKey[rowKey], index)
	}

	// Populate samples one row file at a time.
	for rowKey, indexes := range indexesByRowKey {
		rowFile, err := s.RowFile(ctx, rowKey)
		if err != nil {
			return nil, err
		}
		for _, index := range indexes {
			if elevation, ok := rowFile.Lookup(coords[index].X); ok {
				samples[index] = float64(elevation)
			} else {
				samples[index] = math.NaN()
			}
		}
	}

	return samples, nil
}

// Prefetch ensures that the row files for rowKeys are in s's store, fetching
// them from s's source if needed. If progress is not nil it is called after
// each row key.
func (s *RowFileSet) Prefetch(ctx context.Context, rowKeys []RowKey, progress func(RowKey)) error {
	if s.store == nil {
		return errors.New("no row store")
	}
	for _, rowKey := range rowKeys {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch ok, err := s.store.HasRow(ctx, rowKey); {
		case err != nil:
			return err
		case !ok:
			data, err := s.fetchRow(ctx, rowKey)
			if err != nil {
				return err
			}
			if _, err := NewRowFile(data); err != nil {
				return fmt.Errorf("%d/%d: %w", rowKey.Database, rowKey.Y, err)
			}
			if err := s.store.WriteRow(ctx, rowKey, data); err != nil {
				return err
			}
		}
		if progress != nil {
			progress(rowKey)
		}
	}
	return nil
}

// SRID returns s's SRID.
func (s *RowFileSet) SRID() int {
	return s.srid
}

// Scale returns s's scale.
func (s *RowFileSet) Scale() (int, int) {
	return RasterSize, RasterSize
}

// RowFile returns the row file for rowKey, using the cache if possible.
func (s *RowFileSet) RowFile(ctx context.Context, rowKey RowKey) (*RowFile, error) {
	if rowFile, ok := s.rowFileCache.Get(rowKey); ok {
		rowCacheHits.Inc()
		return rowFile, nil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if rowFile, ok := s.rowFileCache.Get(rowKey); ok {
		rowCacheHits.Inc()
		return rowFile, nil
	}

	rowCacheMisses.Inc()

	rowFile, err := s.getRowFile(ctx, rowKey)
	if err != nil {
		return nil, err
	}

	s.rowFileCache.Add(rowKey, rowFile)

	return rowFile, nil
}

// getRowFile returns the row file for rowKey from s's store, or from s's
// source if it is not stored. Row files fetched from the source are only
// stored if they parse.
func (s *RowFileSet) getRowFile(ctx context.Context, rowKey RowKey) (*RowFile, error) {
	logger := s.logger.WithFields(logrus.Fields{
		"database": rowKey.Database,
		"y":        rowKey.Y,
	})

	if s.store != nil {
		switch data, err := s.store.ReadRow(ctx, rowKey); {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			rowStoreHits.Inc()
			rowFile, err := NewRowFile(data)
			if err != nil {
				return nil, fmt.Errorf("%d/%d: %w", rowKey.Database, rowKey.Y, err)
			}
			return rowFile, nil
		}
	}

	data, err := s.fetchRow(ctx, rowKey)
	if err != nil {
		return nil, err
	}
	rowFile, err := NewRowFile(data)
	if err != nil {
		return nil, fmt.Errorf("%d/%d: %w", rowKey.Database, rowKey.Y, err)
	}

	if s.store != nil {
		if err := s.store.WriteRow(ctx, rowKey, data); err != nil {
			return nil, err
		}
		logger.Debug("stored row file")
	}

	return rowFile, nil
}

func (s *RowFileSet) fetchRow(ctx context.Context, rowKey RowKey) ([]byte, error) {
	rowFetches.Inc()
	s.logger.WithFields(logrus.Fields{
		"database": rowKey.Database,
		"y":        rowKey.Y,
	}).Debug("fetching row file")
	return s.source.FetchRow(ctx, rowKey)
}
