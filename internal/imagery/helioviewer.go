package imagery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"solarimager/internal/filters"
	"solarimager/internal/logger"
)

// solarDiameterArcsec is roughly the apparent diameter of the Sun plus a
// margin for the corona, used to size screenshots.
const solarDiameterArcsec = 2500.0

// HelioviewerSource fetches images through the Helioviewer v2 API.
type HelioviewerSource struct {
	client    *resty.Client
	baseURL   string
	preferred time.Duration
	log       *logger.Logger

	mu        sync.Mutex
	sourceIDs map[filters.Layer]int64
}

// NewHelioviewerSource creates a Helioviewer source aiming for the
// preferred time of day.
func NewHelioviewerSource(client *resty.Client, baseURL string, preferred time.Duration) *HelioviewerSource {
	return &HelioviewerSource{
		client:    client,
		baseURL:   strings.TrimRight(baseURL, "/"),
		preferred: preferred,
		log:       logger.WithComponent("helioviewer"),
		sourceIDs: make(map[filters.Layer]int64),
	}
}

func (h *HelioviewerSource) Name() string { return "helioviewer" }

// SupportsCombined is true: composites are rendered with takeScreenshot.
func (h *HelioviewerSource) SupportsCombined() bool { return true }

func (h *HelioviewerSource) get(ctx context.Context, endpoint string, params map[string]string) ([]byte, error) {
	url := h.baseURL + "/" + endpoint + "/"
	h.log.Debug("helioviewer request", map[string]interface{}{"endpoint": endpoint, "params": params})
	resp, err := h.client.R().SetContext(ctx).SetQueryParams(params).Get(url)
	if err != nil {
		return nil, fmt.Errorf("request %s failed: %w", endpoint, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, fmt.Errorf("%s: %w", endpoint, ErrNotFound)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d: %s", endpoint, resp.StatusCode(), truncate(resp.String(), 200))
	}
	return resp.Body(), nil
}

// Fetch downloads the image nearest the preferred time for a band, or a
// three-layer screenshot for a composite.
func (h *HelioviewerSource) Fetch(ctx context.Context, date time.Time, code string, resolution int) (*Image, error) {
	target := observationTime(date, h.preferred)
	if filters.IsComposite(code) {
		return h.screenshot(ctx, target, code, resolution)
	}

	layer, err := filters.HelioviewerLayer(code)
	if err != nil {
		return nil, err
	}
	sourceID, err := h.lookupSourceID(ctx, layer)
	if err != nil {
		return nil, err
	}
	id, captured, err := h.closestImage(ctx, target, sourceID)
	if err != nil {
		return nil, err
	}

	body, err := h.get(ctx, "downloadImage", map[string]string{
		"id":    strconv.FormatInt(id, 10),
		"width": strconv.Itoa(resolution),
	})
	if err != nil {
		return nil, err
	}
	return &Image{Data: body, Captured: captured, URL: fmt.Sprintf("%s/downloadImage/?id=%d", h.baseURL, id)}, nil
}

// closestImage resolves the image id nearest target. Helioviewer returns
// the id as a string, older deployments as a number.
func (h *HelioviewerSource) closestImage(ctx context.Context, target time.Time, sourceID int64) (int64, time.Time, error) {
	b, err := h.get(ctx, "getClosestImage", map[string]string{
		"date":     target.Format("2006-01-02T15:04:05Z"),
		"sourceId": strconv.FormatInt(sourceID, 10),
	})
	if err != nil {
		return 0, time.Time{}, err
	}

	var resp struct {
		ID    json.RawMessage `json:"id"`
		Date  string          `json:"date"`
		Error string          `json:"error"`
	}
	if err := json.Unmarshal(b, &resp); err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to parse getClosestImage response: %w", err)
	}
	if resp.Error != "" {
		return 0, time.Time{}, fmt.Errorf("getClosestImage: %s: %w", resp.Error, ErrNotFound)
	}
	raw := strings.Trim(string(resp.ID), `"`)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, time.Time{}, fmt.Errorf("getClosestImage: no image id in %q: %w", truncate(string(b), 200), ErrNotFound)
	}
	captured, err := time.Parse("2006-01-02 15:04:05", resp.Date)
	if err != nil {
		captured = target
	}
	return id, captured.UTC(), nil
}

// lookupSourceID finds the sourceId for layer in getDataSources. Results
// are cached for the life of the source.
func (h *HelioviewerSource) lookupSourceID(ctx context.Context, layer filters.Layer) (int64, error) {
	h.mu.Lock()
	id, ok := h.sourceIDs[layer]
	h.mu.Unlock()
	if ok {
		return id, nil
	}

	b, err := h.get(ctx, "getDataSources", nil)
	if err != nil {
		return 0, err
	}
	var tree map[string]interface{}
	if err := json.Unmarshal(b, &tree); err != nil {
		return 0, fmt.Errorf("failed to parse data sources: %w", err)
	}

	// The tree skips the detector level when it repeats the instrument,
	// e.g. SDO -> AIA -> 304 -> sourceId.
	path := []string{layer.Observatory, layer.Instrument}
	if layer.Detector != "" && layer.Detector != layer.Instrument {
		path = append(path, layer.Detector)
	}
	path = append(path, layer.Measurement)

	node := tree
	for _, key := range path {
		next, ok := node[key].(map[string]interface{})
		if !ok {
			return 0, fmt.Errorf("data source %s not found at %q", strings.Join(path, "/"), key)
		}
		node = next
	}
	f, ok := node["sourceId"].(float64)
	if !ok || f == 0 {
		return 0, fmt.Errorf("no sourceId for %s", strings.Join(path, "/"))
	}
	id = int64(f)

	h.mu.Lock()
	h.sourceIDs[layer] = id
	h.mu.Unlock()
	return id, nil
}

// screenshot renders a composite as one image. The first constituent is
// the opaque base layer; the others are blended at half opacity.
func (h *HelioviewerSource) screenshot(ctx context.Context, target time.Time, code string, resolution int) (*Image, error) {
	var layers []string
	for i, part := range filters.Constituents(code) {
		layer, err := filters.HelioviewerLayer(part)
		if err != nil {
			return nil, err
		}
		opacity := 100
		if i > 0 {
			opacity = 50
		}
		layers = append(layers, fmt.Sprintf("[%s,%s,%s,%s,1,%d]", layer.Observatory, layer.Instrument, layer.Detector, layer.Measurement, opacity))
	}

	body, err := h.get(ctx, "takeScreenshot", map[string]string{
		"date":       target.Format("2006-01-02T15:04:05Z"),
		"imageScale": strconv.FormatFloat(solarDiameterArcsec/float64(resolution), 'f', 4, 64),
		"layers":     strings.Join(layers, ","),
		"x0":         "0",
		"y0":         "0",
		"width":      strconv.Itoa(resolution),
		"height":     strconv.Itoa(resolution),
		"display":    "true",
		"watermark":  "false",
	})
	if err != nil {
		return nil, err
	}
	return &Image{Data: body, Captured: target, URL: h.baseURL + "/takeScreenshot/"}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
