package austrianelevation_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/paulmach/orb"

	"github.com/ogdwien/go-austrianelevation"
)

// A testRemote serves row files over HTTP and counts the requests it
// receives.
type testRemote struct {
	server   *httptest.Server
	rows     map[austrianelevation.RowKey]string
	requests atomic.Int64
}

func newTestRemote(t *testing.T, rows map[austrianelevation.RowKey]string) *testRemote {
	t.Helper()
	r := &testRemote{
		rows: rows,
	}
	r.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.requests.Add(1)
		var key austrianelevation.RowKey
		if _, err := fmt.Sscanf(req.URL.Path, "/%d/master/%d.txt", &key.Database, &key.Y); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, ok := r.rows[key]
		if !ok {
			http.NotFound(w, req)
			return
		}
		_, _ = w.Write([]byte(data))
	}))
	t.Cleanup(r.server.Close)
	return r
}

func (r *testRemote) source() *austrianelevation.HTTPSource {
	return austrianelevation.NewHTTPSource(r.server.URL)
}

func newTestRowFileSet(t *testing.T, remote *testRemote, store austrianelevation.RowStore, options ...austrianelevation.RowFileSetOption) *austrianelevation.RowFileSet {
	t.Helper()
	rowFileSet, err := austrianelevation.NewAustrianElevation(append([]austrianelevation.RowFileSetOption{
		austrianelevation.WithSource(remote.source()),
		austrianelevation.WithStore(store),
	}, options...)...)
	assert.NoError(t, err)
	return rowFileSet
}

func TestRowFileSet_Elevation(t *testing.T) {
	remote := newTestRemote(t, map[austrianelevation.RowKey]string{
		{Database: 20000, Y: 100}:   "20000 250\n20010 260\n",
		{Database: -20000, Y: -10}:  "-20 40\n-10 42\n",
		{Database: 600000, Y: 480}:  "612340 171\n",
		{Database: 1820000, Y: 100}: "1822570 999\n",
	})
	rowFileSet := newTestRowFileSet(t, remote, austrianelevation.NewDirStore(t.TempDir()))

	for _, tc := range []struct {
		name              string
		point             orb.Point
		expectedElevation int
		expectedOK        bool
	}{
		{
			name:              "found",
			point:             orb.Point{20015.5, 100.2},
			expectedElevation: 260,
			expectedOK:        true,
		},
		{
			name:  "absent",
			point: orb.Point{20995, 100},
		},
		{
			name:              "negative",
			point:             orb.Point{-5, -5},
			expectedElevation: 42,
			expectedOK:        true,
		},
		{
			name:              "truncated",
			point:             orb.Point{612345.6, 489.99},
			expectedElevation: 171,
			expectedOK:        true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			elevation, ok, err := rowFileSet.Elevation(t.Context(), tc.point)
			assert.NoError(t, err)
			assert.Equal(t, tc.expectedOK, ok)
			assert.Equal(t, tc.expectedElevation, elevation)
		})
	}
}

func TestRowFileSet_Idempotence(t *testing.T) {
	remote := newTestRemote(t, map[austrianelevation.RowKey]string{
		{Database: 0, Y: 100}: "100 250\n110 260\n",
	})
	store := austrianelevation.NewDirStore(t.TempDir())
	point := orb.Point{115, 107}

	rowFileSet := newTestRowFileSet(t, remote, store)
	elevation1, ok, err := rowFileSet.Elevation(t.Context(), point)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 260, elevation1)
	assert.Equal(t, int64(1), remote.requests.Load())

	elevation2, ok, err := rowFileSet.Elevation(t.Context(), point)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, elevation1, elevation2)
	assert.Equal(t, int64(1), remote.requests.Load())

	// A new row file set with the same store reads the persisted row file.
	rowFileSet = newTestRowFileSet(t, remote, store)
	elevation3, ok, err := rowFileSet.Elevation(t.Context(), point)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, elevation1, elevation3)
	assert.Equal(t, int64(1), remote.requests.Load())
}

func TestRowFileSet_DatabasesDoNotCollide(t *testing.T) {
	remote := newTestRemote(t, map[austrianelevation.RowKey]string{
		{Database: 0, Y: 100}:     "100 1\n",
		{Database: 20000, Y: 100}: "20100 2\n",
	})
	store := austrianelevation.NewDirStore(t.TempDir())
	rowFileSet := newTestRowFileSet(t, remote, store)

	elevation, ok, err := rowFileSet.Elevation(t.Context(), orb.Point{100, 100})
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, elevation)

	elevation, ok, err = rowFileSet.Elevation(t.Context(), orb.Point{20100, 100})
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, elevation)

	assert.Equal(t, int64(2), remote.requests.Load())
	assert.NotEqual(t,
		store.Path(austrianelevation.RowKey{Database: 0, Y: 100}),
		store.Path(austrianelevation.RowKey{Database: 20000, Y: 100}),
	)
}

func TestRowFileSet_Malformed(t *testing.T) {
	remote := newTestRemote(t, map[austrianelevation.RowKey]string{
		{Database: 0, Y: 100}: "100 250\nabc 260\n",
	})
	store := austrianelevation.NewDirStore(t.TempDir())
	rowFileSet := newTestRowFileSet(t, remote, store)

	_, _, err := rowFileSet.Elevation(t.Context(), orb.Point{100, 100})
	var parseError *austrianelevation.ParseError
	assert.True(t, errors.As(err, &parseError))
	assert.Equal(t, 2, parseError.Line)

	ok, err := store.HasRow(t.Context(), austrianelevation.RowKey{Database: 0, Y: 100})
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestRowFileSet_NotFound(t *testing.T) {
	remote := newTestRemote(t, nil)
	rowFileSet := newTestRowFileSet(t, remote, austrianelevation.NewDirStore(t.TempDir()))

	_, _, err := rowFileSet.Elevation(t.Context(), orb.Point{100, 100})
	var httpStatusError *austrianelevation.HTTPStatusError
	assert.True(t, errors.As(err, &httpStatusError))
	assert.Equal(t, http.StatusNotFound, httpStatusError.StatusCode)
}

func TestRowFileSet_NonFinite(t *testing.T) {
	remote := newTestRemote(t, nil)
	rowFileSet := newTestRowFileSet(t, remote, nil)

	for _, point := range []orb.Point{
		{math.NaN(), 0},
		{0, math.Inf(1)},
	} {
		_, _, err := rowFileSet.Elevation(t.Context(), point)
		assert.Error(t, err)
	}
	assert.Equal(t, int64(0), remote.requests.Load())
}

func TestRowFileSet_CanceledContext(t *testing.T) {
	remote := newTestRemote(t, map[austrianelevation.RowKey]string{
		{Database: 0, Y: 100}: "100 250\n",
	})
	rowFileSet := newTestRowFileSet(t, remote, nil)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, _, err := rowFileSet.Elevation(ctx, orb.Point{100, 100})
	assert.IsError(t, err, context.Canceled)
}

func TestRowFileSet_Samples(t *testing.T) {
	remote := newTestRemote(t, map[austrianelevation.RowKey]string{
		{Database: 0, Y: 100}: "100 250\n110 260\n",
		{Database: 0, Y: 110}: "100 270\n",
	})
	rowFileSet := newTestRowFileSet(t, remote, nil)

	actual, err := rowFileSet.Samples(t.Context(), []austrianelevation.Coord{
		{X: 100, Y: 100},
		{X: 100, Y: 110},
		{X: 120, Y: 110},
		{X: 110, Y: 100},
	})
	assert.NoError(t, err)
	assert.Equal(t, 4, len(actual))
	assert.Equal(t, 250.0, actual[0])
	assert.Equal(t, 270.0, actual[1])
	assert.True(t, math.IsNaN(actual[2]))
	assert.Equal(t, 260.0, actual[3])
	assert.Equal(t, int64(2), remote.requests.Load())
}

func TestRowFileSet_CacheEviction(t *testing.T) {
	remote := newTestRemote(t, map[austrianelevation.RowKey]string{
		{Database: 0, Y: 100}: "100 1\n",
		{Database: 0, Y: 110}: "100 2\n",
	})
	rowFileSet := newTestRowFileSet(t, remote, austrianelevation.NewDirStore(t.TempDir()),
		austrianelevation.WithCacheSize(1),
	)

	for range 3 {
		for _, tc := range []struct {
			point    orb.Point
			expected int
		}{
			{point: orb.Point{100, 100}, expected: 1},
			{point: orb.Point{100, 110}, expected: 2},
		} {
			elevation, ok, err := rowFileSet.Elevation(t.Context(), tc.point)
			assert.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, tc.expected, elevation)
		}
	}
	assert.Equal(t, int64(2), remote.requests.Load())
}

func TestRowFileSet_Concurrent(t *testing.T) {
	remote := newTestRemote(t, map[austrianelevation.RowKey]string{
		{Database: 0, Y: 100}: "100 250\n",
	})
	rowFileSet := newTestRowFileSet(t, remote, austrianelevation.NewDirStore(t.TempDir()))

	var wg sync.WaitGroup
	elevations := make([]int, 16)
	errs := make([]error, len(elevations))
	for i := range elevations {
		wg.Add(1)
		go func() {
			defer wg.Done()
			elevations[i], _, errs[i] = rowFileSet.Elevation(context.Background(), orb.Point{105, 105})
		}()
	}
	wg.Wait()

	for i := range elevations {
		assert.NoError(t, errs[i])
		assert.Equal(t, 250, elevations[i])
	}
	assert.Equal(t, int64(1), remote.requests.Load())
}

func TestRowFileSet_Prefetch(t *testing.T) {
	rowKeys, err := austrianelevation.RowKeysInBound(orb.Bound{
		Min: orb.Point{100, 100},
		Max: orb.Point{120, 120},
	})
	assert.NoError(t, err)
	rows := make(map[austrianelevation.RowKey]string)
	for _, rowKey := range rowKeys {
		rows[rowKey] = fmt.Sprintf("100 %d\n", rowKey.Y)
	}
	remote := newTestRemote(t, rows)
	store := austrianelevation.NewDirStore(t.TempDir())
	rowFileSet := newTestRowFileSet(t, remote, store)

	var progress []austrianelevation.RowKey
	assert.NoError(t, rowFileSet.Prefetch(t.Context(), rowKeys, func(rowKey austrianelevation.RowKey) {
		progress = append(progress, rowKey)
	}))
	assert.Equal(t, rowKeys, progress)
	assert.Equal(t, int64(3), remote.requests.Load())

	for _, rowKey := range rowKeys {
		ok, err := store.HasRow(t.Context(), rowKey)
		assert.NoError(t, err)
		assert.True(t, ok)
	}

	assert.NoError(t, rowFileSet.Prefetch(t.Context(), rowKeys, nil))
	assert.Equal(t, int64(3), remote.requests.Load())

	elevation, ok, err := rowFileSet.Elevation(t.Context(), orb.Point{100, 110})
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 110, elevation)
	assert.Equal(t, int64(3), remote.requests.Load())
}

func TestRowFileSet_RowSourceFunc(t *testing.T) {
	var fetched []austrianelevation.RowKey
	rowFileSet, err := austrianelevation.NewRowFileSet(
		austrianelevation.WithSource(austrianelevation.RowSourceFunc(func(ctx context.Context, key austrianelevation.RowKey) ([]byte, error) {
			fetched = append(fetched, key)
			return []byte("-20 7\n"), nil
		})),
	)
	assert.NoError(t, err)

	elevation, ok, err := rowFileSet.Elevation(t.Context(), orb.Point{-15, 3})
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 7, elevation)
	assert.Equal(t, []austrianelevation.RowKey{{Database: -20000, Y: 0}}, fetched)
}

func TestNewRowFileSet_NoSource(t *testing.T) {
	_, err := austrianelevation.NewRowFileSet()
	assert.Error(t, err)
}
