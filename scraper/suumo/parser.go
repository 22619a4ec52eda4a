package suumo

import (
	"fmt"
	"io"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/width"

	"listing-scraper/models"
)

// SearchPage is what one rental result page yields.
type SearchPage struct {
	Listings  []models.Listing
	LastPage  int
	TotalHits int
}

var (
	sourceIDPattern = regexp.MustCompile(`jnc_[0-9]+`)
	numberPattern   = regexp.MustCompile(`[0-9]+(?:\.[0-9]+)?`)
	agePattern      = regexp.MustCompile(`築([0-9]+)年`)
	floorsPattern   = regexp.MustCompile(`([0-9]+)階建`)
)

// ParseSearchPage extracts every room row of a result page. Each
// div.cassetteitem is one building; each tr.js-cassette_link inside it is
// one rentable room. Relative links resolve against pageURL.
func ParseSearchPage(r io.Reader, pageURL *url.URL) (*SearchPage, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse search page: %w", err)
	}

	page := &SearchPage{
		LastPage:  lastPage(doc),
		TotalHits: parseCount(doc.Find(".paginate_set-hit").First().Text()),
	}

	doc.Find("div.cassetteitem").Each(func(_ int, item *goquery.Selection) {
		building := parseBuilding(item)

		item.Find("tr.js-cassette_link").Each(func(_ int, row *goquery.Selection) {
			if l, ok := parseRoom(row, building, pageURL); ok {
				page.Listings = append(page.Listings, l)
			}
		})
	})

	return page, nil
}

func parseBuilding(item *goquery.Selection) models.Listing {
	b := models.Listing{
		Source:       SourceName,
		BuildingName: clean(item.Find(".cassetteitem_content-title").First().Text()),
		PropertyType: clean(item.Find(".cassetteitem_content-label").First().Text()),
		Address:      clean(item.Find(".cassetteitem_detail-col1").First().Text()),
	}

	item.Find(".cassetteitem_detail-col2 .cassetteitem_detail-text").Each(func(_ int, s *goquery.Selection) {
		if line := clean(s.Text()); line != "" {
			b.Access = append(b.Access, line)
		}
	})

	item.Find(".cassetteitem_detail-col3 div").Each(func(_ int, s *goquery.Selection) {
		text := clean(s.Text())
		switch {
		case strings.Contains(text, "新築"):
			b.AgeYears = 0
		case agePattern.MatchString(text):
			b.AgeYears, _ = strconv.Atoi(agePattern.FindStringSubmatch(text)[1])
		case floorsPattern.MatchString(text):
			b.Floors, _ = strconv.Atoi(floorsPattern.FindStringSubmatch(text)[1])
		}
	})

	return b
}

func parseRoom(row *goquery.Selection, building models.Listing, pageURL *url.URL) (models.Listing, bool) {
	href, ok := row.Find("a.js-cassette_link_href").First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		href, ok = row.Find(`a[href*="/chintai/"]`).First().Attr("href")
	}
	if !ok || strings.TrimSpace(href) == "" {
		return models.Listing{}, false
	}

	link, err := resolve(pageURL, href)
	if err != nil {
		return models.Listing{}, false
	}

	l := building
	l.Access = append([]string(nil), building.Access...)
	l.URL = link.String()
	l.SourceID = sourceID(link)
	l.Floor = clean(row.Find("td").Eq(2).Text())
	l.RawRent = clean(row.Find(".cassetteitem_price--rent").First().Text())
	l.Rent = parseYen(l.RawRent)
	l.AdminFee = parseYen(row.Find(".cassetteitem_price--administration").First().Text())
	l.Deposit = parseYen(row.Find(".cassetteitem_price--deposit").First().Text())
	l.KeyMoney = parseYen(row.Find(".cassetteitem_price--gratuity").First().Text())
	l.Layout = clean(row.Find(".cassetteitem_madori").First().Text())
	l.AreaSqm = parseArea(row.Find(".cassetteitem_menseki").First().Text())

	return l, true
}

func lastPage(doc *goquery.Document) int {
	last := 1
	doc.Find("ol.pagination-parts li").Each(func(_ int, s *goquery.Selection) {
		if n, err := strconv.Atoi(clean(s.Text())); err == nil && n > last {
			last = n
		}
	})
	return last
}

func resolve(base *url.URL, href string) (*url.URL, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return nil, err
	}
	if base == nil {
		return ref, nil
	}
	return base.ResolveReference(ref), nil
}

// sourceID prefers the jnc_ property code, which is stable across
// search pages, and falls back to the link path.
func sourceID(u *url.URL) string {
	if id := sourceIDPattern.FindString(u.Path); id != "" {
		return id
	}
	return u.Path
}

// clean folds full-width ASCII to half-width and collapses whitespace.
func clean(s string) string {
	return strings.Join(strings.Fields(width.Fold.String(s)), " ")
}

// parseYen understands the notations used in result tables: "8.5万円",
// "5000円", "1,000円" and "-" for none.
func parseYen(raw string) int64 {
	s := strings.ReplaceAll(clean(raw), ",", "")
	num := numberPattern.FindString(s)
	if num == "" {
		return 0
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if strings.Contains(s, "万") {
		v *= 10000
	}
	return int64(math.Round(v))
}

func parseArea(raw string) float64 {
	num := numberPattern.FindString(clean(raw))
	if num == "" {
		return 0
	}
	v, _ := strconv.ParseFloat(num, 64)
	return v
}

func parseCount(raw string) int {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, clean(raw))
	n, _ := strconv.Atoi(digits)
	return n
}
