package analyzeserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"hydro-server/ee"
	"hydro-server/water"

	"github.com/davecgh/go-spew/spew"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/sync/errgroup"

	log "github.com/sirupsen/logrus"
)

// AnalyzeServer serves POST /analyze: two period composites, water masks,
// change raster, then a tile URL and area stats from the compute platform.
type AnalyzeServer struct {
	Compute ee.Service
}

func New(svc ee.Service) *AnalyzeServer {
	return &AnalyzeServer{Compute: svc}
}

type analyzeRequest struct {
	GeoJSON    json.RawMessage `json:"geojson"`
	Date1Start string          `json:"date1_start"`
	Date1End   string          `json:"date1_end"`
	Date2Start string          `json:"date2_start"`
	Date2End   string          `json:"date2_end"`

	roi *geojson.Geometry
}

type analyzeResponse struct {
	TileURL string      `json:"tile_url"`
	Stats   water.Stats `json:"stats"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func parseRequest(r *http.Request) (*analyzeRequest, error) {
	req := &analyzeRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		return nil, fmt.Errorf("bad request body: %v", err)
	}

	dates := []struct {
		name  string
		value string
	}{
		{"date1_start", req.Date1Start},
		{"date1_end", req.Date1End},
		{"date2_start", req.Date2Start},
		{"date2_end", req.Date2End},
	}
	for _, d := range dates {
		if d.value == "" {
			return nil, fmt.Errorf("missing %s", d.name)
		}
		if _, err := time.Parse("2006-01-02", d.value); err != nil {
			return nil, fmt.Errorf("bad %s: %v", d.name, err)
		}
	}

	if len(req.GeoJSON) == 0 {
		return nil, fmt.Errorf("missing geojson")
	}
	roi, err := geojson.UnmarshalGeometry(req.GeoJSON)
	if err != nil {
		return nil, fmt.Errorf("bad geojson: %v", err)
	}
	req.roi = roi
	return req, nil
}

func noDataDetail(period int, start, end string) string {
	switch period {
	case 1:
		return fmt.Sprintf("No clear images found for Period 1 (%s to %s). \nSuggestion: Try a different month or expand the date range.", start, end)
	default:
		return fmt.Sprintf("No clear images found for Period 2 (%s to %s). \nSuggestion: Monsoon clouds might be blocking the view. Try 'November' or 'April'.", start, end)
	}
}

func (s *AnalyzeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	jsonError := func(detail string, code int) {
		w.WriteHeader(code)
		if err := json.NewEncoder(w).Encode(&errorResponse{Detail: detail}); err != nil {
			log.Errorf("analyze encode: %v", err)
		}
	}

	req, err := parseRequest(r)
	if err != nil {
		log.Errorf("analyze parseRequest: %v", err)
		jsonError(err.Error(), http.StatusBadRequest)
		return
	}

	log.Infof("Request: T1(%s) vs T2(%s)", req.Date1Start, req.Date2Start)
	log.Debugf("Analyze request: %v", spew.Sdump(req))

	// The two period fetches are independent; run them together and keep
	// Period 1 first when reporting no-data.
	var t1, t2 water.Mosaic
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		t1, err = water.FetchMosaic(ctx, s.Compute, req.roi, req.Date1Start, req.Date1End)
		return err
	})
	g.Go(func() error {
		var err error
		t2, err = water.FetchMosaic(ctx, s.Compute, req.roi, req.Date2Start, req.Date2End)
		return err
	})
	if err := g.Wait(); err != nil {
		log.Errorf("Server error: %v", err)
		jsonError(err.Error(), http.StatusInternalServerError)
		return
	}

	if !t1.Found {
		jsonError(noDataDetail(1, req.Date1Start, req.Date1End), http.StatusNotFound)
		return
	}
	if !t2.Found {
		jsonError(noDataDetail(2, req.Date2Start, req.Date2End), http.StatusNotFound)
		return
	}

	water1 := water.Classify(t1.Image, water.DefaultThreshold)
	water2 := water.Classify(t2.Image, water.DefaultThreshold)
	change := water.DetectChange(water1, water2)

	tileURL, err := s.Compute.CreateMap(r.Context(), change.Expr(), &water.ChangeVis)
	if err != nil {
		log.Errorf("Server error: %v", err)
		jsonError(err.Error(), http.StatusInternalServerError)
		return
	}

	raw, err := s.Compute.ComputeValue(r.Context(), water.HistogramExpr(change, req.roi))
	if err != nil {
		log.Errorf("Server error: %v", err)
		jsonError(err.Error(), http.StatusInternalServerError)
		return
	}
	stats, err := water.AreaStats(raw)
	if err != nil {
		log.Errorf("Server error: %v", err)
		jsonError(err.Error(), http.StatusInternalServerError)
		return
	}

	resp := &analyzeResponse{TileURL: tileURL, Stats: stats}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Errorf("analyze encode: %v", err)
	}
}
