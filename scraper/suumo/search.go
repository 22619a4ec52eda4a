package suumo

import (
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v2"

	"listing-scraper/models"
)

const (
	searchPath = "/jj/chintai/ichiran/FR301FC001/"
	// bs=040 selects the rental (chintai) vertical.
	rentalVertical = "040"
)

var ErrUnknownRegion = errors.New("unknown region code")

//go:embed regions.yaml
var regionsYAML []byte

type Region struct {
	Code     string `yaml:"code"`
	Name     string `yaml:"name"`
	Area     string `yaml:"area"`
	AreaName string `yaml:"area_name"`
}

type regionFile struct {
	Regions []Region `yaml:"regions"`
}

var (
	regionsOnce sync.Once
	regionIndex map[string]Region
	regionsErr  error
)

func loadRegions() (map[string]Region, error) {
	regionsOnce.Do(func() {
		var f regionFile
		if err := yaml.Unmarshal(regionsYAML, &f); err != nil {
			regionsErr = fmt.Errorf("parse region table: %w", err)
			return
		}
		regionIndex = make(map[string]Region, len(f.Regions))
		for _, r := range f.Regions {
			regionIndex[r.Code] = r
		}
	})
	return regionIndex, regionsErr
}

// LookupRegion resolves a prefecture code such as "13" or "1" to its
// Suumo region entry.
func LookupRegion(code string) (Region, error) {
	code = strings.TrimSpace(code)
	n, err := strconv.Atoi(code)
	if err != nil || n < 0 {
		return Region{}, fmt.Errorf("%w: %q", ErrUnknownRegion, code)
	}

	regions, err := loadRegions()
	if err != nil {
		return Region{}, err
	}

	r, ok := regions[fmt.Sprintf("%02d", n)]
	if !ok {
		return Region{}, fmt.Errorf("%w: %q", ErrUnknownRegion, code)
	}
	return r, nil
}

// BuildSearchURL returns the rental search result URL for one page.
func BuildSearchURL(baseURL string, q models.SearchQuery, page, pageSize int) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + searchPath)
	if err != nil {
		return "", fmt.Errorf("invalid base url %q: %w", baseURL, err)
	}

	params := url.Values{}
	params.Set("bs", rentalVertical)
	params.Set("fw2", strings.TrimSpace(q.Keyword))
	params.Set("pc", strconv.Itoa(pageSize))
	params.Set("page", strconv.Itoa(page))

	if q.Region != nil {
		r, err := LookupRegion(*q.Region)
		if err != nil {
			return "", err
		}
		params.Set("ar", r.Area)
		params.Set("ta", r.Code)
	}

	u.RawQuery = params.Encode()
	return u.String(), nil
}
