package places

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/example/transport-marketplace/internal/models"
)

// MinQueryLen is the shortest query, in runes, sent upstream.
const MinQueryLen = 3

type Suggestion struct {
	DisplayName string       `json:"displayName"`
	Context     string       `json:"context,omitempty"`
	Point       models.Coord `json:"point"`
}

// PhotonClient talks to a Photon geocoder (komoot or self-hosted).
type PhotonClient struct {
	Endpoint string
	Limit    int
	Lang     string
	Client   *http.Client
}

func NewPhotonClient(endpoint string) *PhotonClient {
	return &PhotonClient{
		Endpoint: strings.TrimRight(endpoint, "/"),
		Limit:    5,
		Client:   &http.Client{Timeout: 5 * time.Second},
	}
}

type photonResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates [2]float64 `json:"coordinates"` // lng, lat
		} `json:"geometry"`
		Properties struct {
			Name        string `json:"name"`
			Street      string `json:"street"`
			HouseNumber string `json:"housenumber"`
			City        string `json:"city"`
			State       string `json:"state"`
			Country     string `json:"country"`
		} `json:"properties"`
	} `json:"features"`
}

func (p *PhotonClient) Suggest(ctx context.Context, query string) ([]Suggestion, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < MinQueryLen {
		return []Suggestion{}, nil
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", fmt.Sprint(p.Limit))
	if p.Lang != "" {
		params.Set("lang", p.Lang)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.Endpoint+"/api/?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("photon status %d", resp.StatusCode)
	}
	var out photonResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("photon decode: %w", err)
	}

	res := make([]Suggestion, 0, len(out.Features))
	for _, f := range out.Features {
		pr := f.Properties
		name := pr.Name
		if name == "" && pr.Street != "" {
			name = strings.TrimSpace(pr.Street + " " + pr.HouseNumber)
		}
		if name == "" {
			name = pr.City
		}
		if name == "" {
			continue
		}
		var ctxParts []string
		for _, part := range []string{pr.City, pr.State, pr.Country} {
			if part != "" && part != name {
				ctxParts = append(ctxParts, part)
			}
		}
		res = append(res, Suggestion{
			DisplayName: name,
			Context:     strings.Join(ctxParts, ", "),
			Point:       models.Coord{Lat: f.Geometry.Coordinates[1], Lng: f.Geometry.Coordinates[0]},
		})
	}
	return res, nil
}
