package analyzeserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"hydro-server/ee"
	"hydro-server/water"
)

const testTileURL = "https://compute.test/maps/abc/tiles/{z}/{x}/{y}"

// fakeCompute answers collection size probes by matching the period's start
// date inside the serialized expression, so the concurrent period fetches
// stay deterministic.
type fakeCompute struct {
	mu sync.Mutex

	sizes     map[string]int
	histogram map[string]map[string]float64

	computeErr error
	mapErr     error

	sizeCalls int
	histCalls int
	mapCalls  int
	lastVis   *ee.VisParams
}

func (f *fakeCompute) ComputeValue(ctx context.Context, expr *ee.Expr) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, _ := json.Marshal(expr.Serialize())
	s := string(j)

	if strings.Contains(s, `"Collection.size"`) {
		f.sizeCalls++
		if f.computeErr != nil {
			return nil, f.computeErr
		}
		for date, n := range f.sizes {
			if strings.Contains(s, date) {
				return json.Marshal(n)
			}
		}
		return json.Marshal(0)
	}

	f.histCalls++
	if f.computeErr != nil {
		return nil, f.computeErr
	}
	return json.Marshal(f.histogram)
}

func (f *fakeCompute) CreateMap(ctx context.Context, expr *ee.Expr, vis *ee.VisParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mapCalls++
	f.lastVis = vis
	if f.mapErr != nil {
		return "", f.mapErr
	}
	return testTileURL, nil
}

const validGeometry = `{"type":"Polygon","coordinates":[[[77.5,12.9],[77.6,12.9],[77.6,13.0],[77.5,13.0],[77.5,12.9]]]}`

func requestBody(d1s, d1e, d2s, d2e string) string {
	return fmt.Sprintf(`{"geojson":%s,"date1_start":%q,"date1_end":%q,"date2_start":%q,"date2_end":%q}`,
		validGeometry, d1s, d1e, d2s, d2e)
}

func analyze(t *testing.T, f *fakeCompute, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/analyze", strings.NewReader(body))
	w := httptest.NewRecorder()
	New(f).ServeHTTP(w, req)
	return w
}

func decodeDetail(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp.Detail
}

func TestMalformedBody(t *testing.T) {
	f := &fakeCompute{}
	w := analyze(t, f, "not json at all")
	if w.Code != http.StatusBadRequest {
		t.Errorf("code = %d, want 400", w.Code)
	}
	if f.sizeCalls != 0 || f.mapCalls != 0 || f.histCalls != 0 {
		t.Error("malformed body must fail before any remote call")
	}
	if decodeDetail(t, w) == "" {
		t.Error("missing detail")
	}
}

func TestMalformedGeometry(t *testing.T) {
	f := &fakeCompute{}
	body := strings.Replace(requestBody("2023-01-01", "2023-01-31", "2023-06-01", "2023-06-30"),
		validGeometry, `{"type":"Banana","coordinates":[]}`, 1)
	w := analyze(t, f, body)
	if w.Code != http.StatusBadRequest {
		t.Errorf("code = %d, want 400", w.Code)
	}
	if f.sizeCalls != 0 {
		t.Error("bad geometry must fail before any remote call")
	}
}

func TestMissingAndMalformedDates(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "missing date2_end",
			body: fmt.Sprintf(`{"geojson":%s,"date1_start":"2023-01-01","date1_end":"2023-01-31","date2_start":"2023-06-01"}`, validGeometry),
			want: "missing date2_end",
		},
		{
			name: "unparseable date",
			body: requestBody("2023-13-45", "2023-01-31", "2023-06-01", "2023-06-30"),
			want: "bad date1_start",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeCompute{}
			w := analyze(t, f, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("code = %d, want 400", w.Code)
			}
			if detail := decodeDetail(t, w); !strings.Contains(detail, tt.want) {
				t.Errorf("detail = %q, want %q", detail, tt.want)
			}
			if f.sizeCalls != 0 {
				t.Error("validation must run before any remote call")
			}
		})
	}
}

func TestNoDataPeriod1(t *testing.T) {
	f := &fakeCompute{sizes: map[string]int{"2023-01-01": 0, "2023-06-01": 5}}
	w := analyze(t, f, requestBody("2023-01-01", "2023-01-31", "2023-06-01", "2023-06-30"))
	if w.Code != http.StatusNotFound {
		t.Fatalf("code = %d, want 404", w.Code)
	}
	want := "No clear images found for Period 1 (2023-01-01 to 2023-01-31). \nSuggestion: Try a different month or expand the date range."
	if detail := decodeDetail(t, w); detail != want {
		t.Errorf("detail = %q, want %q", detail, want)
	}
	if f.mapCalls != 0 || f.histCalls != 0 {
		t.Error("no-data must short-circuit before change detection")
	}
}

func TestNoDataPeriod2(t *testing.T) {
	f := &fakeCompute{sizes: map[string]int{"2023-01-01": 5, "2023-06-01": 0}}
	w := analyze(t, f, requestBody("2023-01-01", "2023-01-31", "2023-06-01", "2023-06-30"))
	if w.Code != http.StatusNotFound {
		t.Fatalf("code = %d, want 404", w.Code)
	}
	want := "No clear images found for Period 2 (2023-06-01 to 2023-06-30). \nSuggestion: Monsoon clouds might be blocking the view. Try 'November' or 'April'."
	if detail := decodeDetail(t, w); detail != want {
		t.Errorf("detail = %q, want %q", detail, want)
	}
	if f.mapCalls != 0 || f.histCalls != 0 {
		t.Error("no-data must short-circuit before change detection")
	}
}

func TestBothPeriodsEmptyReportsPeriod1(t *testing.T) {
	f := &fakeCompute{sizes: map[string]int{"2023-01-01": 0, "2023-06-01": 0}}
	w := analyze(t, f, requestBody("2023-01-01", "2023-01-31", "2023-06-01", "2023-06-30"))
	if w.Code != http.StatusNotFound {
		t.Fatalf("code = %d, want 404", w.Code)
	}
	if detail := decodeDetail(t, w); !strings.Contains(detail, "Period 1") {
		t.Errorf("detail = %q, want Period 1 reported first", detail)
	}
}

func TestAnalyzeSuccess(t *testing.T) {
	f := &fakeCompute{
		sizes:     map[string]int{"2023-01-01": 3, "2023-06-01": 4},
		histogram: map[string]map[string]float64{"constant": {"1": 100, "2": 50, "3": 25}},
	}
	w := analyze(t, f, requestBody("2023-01-01", "2023-01-31", "2023-06-01", "2023-06-30"))
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d, body = %s", w.Code, w.Body.String())
	}

	var resp analyzeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.TileURL != testTileURL {
		t.Errorf("tile_url = %q", resp.TileURL)
	}
	want := water.Stats{GainSqKm: 0.01, LossSqKm: 0.005, PersistentSqKm: 0.0025}
	if resp.Stats != want {
		t.Errorf("stats = %+v, want %+v", resp.Stats, want)
	}

	if f.sizeCalls != 2 || f.mapCalls != 1 || f.histCalls != 1 {
		t.Errorf("calls: size=%d map=%d hist=%d, want 2/1/1", f.sizeCalls, f.mapCalls, f.histCalls)
	}
	if f.lastVis == nil || f.lastVis.Min != 1 || f.lastVis.Max != 3 || len(f.lastVis.Palette) != 3 {
		t.Errorf("visualization = %+v", f.lastVis)
	}
}

func TestMissingHistogramClassReportsZero(t *testing.T) {
	f := &fakeCompute{
		sizes:     map[string]int{"2023-01-01": 3, "2023-06-01": 4},
		histogram: map[string]map[string]float64{"constant": {"3": 40}},
	}
	w := analyze(t, f, requestBody("2023-01-01", "2023-01-31", "2023-06-01", "2023-06-30"))
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
	var resp analyzeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	want := water.Stats{PersistentSqKm: 0.004}
	if resp.Stats != want {
		t.Errorf("stats = %+v, want %+v", resp.Stats, want)
	}
}

// Identical date ranges describe no real change: all detected water lands in
// the persistent class, gain and loss stay zero.
func TestIdenticalPeriods(t *testing.T) {
	f := &fakeCompute{
		sizes:     map[string]int{"2023-01-01": 3},
		histogram: map[string]map[string]float64{"constant": {"3": 40}},
	}
	w := analyze(t, f, requestBody("2023-01-01", "2023-01-31", "2023-01-01", "2023-01-31"))
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
	var resp analyzeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Stats.GainSqKm != 0 || resp.Stats.LossSqKm != 0 {
		t.Errorf("gain/loss = %v/%v, want 0/0", resp.Stats.GainSqKm, resp.Stats.LossSqKm)
	}
	if resp.Stats.PersistentSqKm == 0 {
		t.Error("persistent area missing")
	}
}

func TestRemoteFailure(t *testing.T) {
	f := &fakeCompute{computeErr: errors.New("quota exceeded")}
	w := analyze(t, f, requestBody("2023-01-01", "2023-01-31", "2023-06-01", "2023-06-30"))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("code = %d, want 500", w.Code)
	}
	if detail := decodeDetail(t, w); detail != "quota exceeded" {
		t.Errorf("detail = %q, want raw error message", detail)
	}
}

func TestMapFailure(t *testing.T) {
	f := &fakeCompute{
		sizes:  map[string]int{"2023-01-01": 3, "2023-06-01": 4},
		mapErr: errors.New("render failed"),
	}
	w := analyze(t, f, requestBody("2023-01-01", "2023-01-31", "2023-06-01", "2023-06-30"))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("code = %d, want 500", w.Code)
	}
	if detail := decodeDetail(t, w); detail != "render failed" {
		t.Errorf("detail = %q", detail)
	}
}
