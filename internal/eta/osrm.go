package eta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

// ErrNoRoute is returned when the routing engine finds no drivable path
// between a driver and the pickup point.
var ErrNoRoute = errors.New("eta: no route between driver and pickup")

// OSRMClient asks an OSRM server how long a driver needs to reach a pickup.
type OSRMClient struct {
	Endpoint string
	// Profile is the OSRM routing profile; empty means "driving".
	Profile string
	Client  *http.Client
}

func NewOSRMClient(endpoint string) *OSRMClient {
	return &OSRMClient{
		Endpoint: strings.TrimRight(endpoint, "/"),
		Profile:  "driving",
		Client:   &http.Client{Timeout: 2 * time.Second},
	}
}

type osrmRoute struct {
	Code   string `json:"code"`
	Routes []struct {
		Duration float64 `json:"duration"`
	} `json:"routes"`
}

func (o *OSRMClient) pickupURL(driver, pickup models.Coord) (string, error) {
	base, err := url.Parse(o.Endpoint)
	if err != nil {
		return "", fmt.Errorf("eta: bad osrm endpoint %q: %w", o.Endpoint, err)
	}
	profile := o.Profile
	if profile == "" {
		profile = "driving"
	}
	legs := lonLat(driver) + ";" + lonLat(pickup)
	base.Path = strings.TrimRight(base.Path, "/") + "/route/v1/" + profile + "/" + legs
	base.RawQuery = url.Values{"overview": {"false"}}.Encode()
	return base.String(), nil
}

func lonLat(c models.Coord) string {
	return strconv.FormatFloat(c.Lon, 'f', 6, 64) + "," + strconv.FormatFloat(c.Lat, 'f', 6, 64)
}

// EstimateSeconds returns the driving time of the fastest route from driver
// to pickup.
func (o *OSRMClient) EstimateSeconds(ctx context.Context, driver, pickup models.Coord) (float64, error) {
	u, err := o.pickupURL(driver, pickup)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, err
	}
	resp, err := o.Client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("eta: pickup route request: %w", err)
	}
	defer resp.Body.Close()

	var out osrmRoute
	decodeErr := json.NewDecoder(resp.Body).Decode(&out)
	// OSRM answers 400 with code NoRoute when the points are unreachable.
	if out.Code == "NoRoute" || (decodeErr == nil && out.Code == "Ok" && len(out.Routes) == 0) {
		return 0, ErrNoRoute
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("eta: pickup route status %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return 0, fmt.Errorf("eta: decode pickup route: %w", decodeErr)
	}
	if out.Code != "Ok" {
		return 0, fmt.Errorf("eta: pickup route code %q", out.Code)
	}
	return out.Routes[0].Duration, nil
}
