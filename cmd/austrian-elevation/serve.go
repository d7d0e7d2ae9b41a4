package main

import (
	"encoding/json"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/ogdwien/go-austrianelevation"
)

const maxProfileBytes = 1 << 20

type elevationResponse struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Elevation *int    `json:"elevation"`
}

func newHandler(es *austrianelevation.ElevationService, logger log.FieldLogger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /elevation", func(w http.ResponseWriter, r *http.Request) {
		serveElevation(es, logger, w, r)
	})
	mux.HandleFunc("POST /profile", func(w http.ResponseWriter, r *http.Request) {
		serveProfile(es, logger, w, r)
	})
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// serveElevation serves the elevation at the query parameters x and y, or lon
// and lat.
func serveElevation(es *austrianelevation.ElevationService, logger log.FieldLogger, w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	wgs84 := query.Has("lon") || query.Has("lat")
	var xKey, yKey string
	if wgs84 {
		xKey, yKey = "lon", "lat"
	} else {
		xKey, yKey = "x", "y"
	}
	x, err := strconv.ParseFloat(query.Get(xKey), 64)
	if err != nil {
		http.Error(w, xKey+": "+err.Error(), http.StatusBadRequest)
		return
	}
	y, err := strconv.ParseFloat(query.Get(yKey), 64)
	if err != nil {
		http.Error(w, yKey+": "+err.Error(), http.StatusBadRequest)
		return
	}

	var elevation int
	var ok bool
	if wgs84 {
		elevation, ok, err = es.Elevation4326(r.Context(), orb.Point{x, y})
	} else {
		elevation, ok, err = es.Elevation(r.Context(), orb.Point{x, y})
	}
	if err != nil {
		logger.WithError(err).WithFields(log.Fields{xKey: x, yKey: y}).Error("elevation lookup failed")
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	response := elevationResponse{
		X: x,
		Y: y,
	}
	if ok {
		response.Elevation = &elevation
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

// serveProfile serves the elevations at the vertices of a GeoJSON LineString
// as a GeoJSON FeatureCollection of Points. If the query parameter srid is
// 4326 the vertices are longitudes and latitudes.
func serveProfile(es *austrianelevation.ElevationService, logger log.FieldLogger, w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxProfileBytes))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	geometry, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	lineString, ok := geometry.Geometry().(orb.LineString)
	if !ok {
		http.Error(w, "not a LineString", http.StatusBadRequest)
		return
	}

	var elevations []float64
	if r.URL.Query().Get("srid") == "4326" {
		elevations, err = es.Profile4326(r.Context(), lineString)
	} else {
		elevations, err = es.Profile(r.Context(), lineString)
	}
	if err != nil {
		logger.WithError(err).WithField("vertices", len(lineString)).Error("profile failed")
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	featureCollection := geojson.NewFeatureCollection()
	for i, p := range lineString {
		feature := geojson.NewFeature(p)
		if math.IsNaN(elevations[i]) {
			feature.Properties["elevation"] = nil
		} else {
			feature.Properties["elevation"] = elevations[i]
		}
		featureCollection.Append(feature)
	}
	body, err := featureCollection.MarshalJSON()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	_, _ = w.Write(body)
}
