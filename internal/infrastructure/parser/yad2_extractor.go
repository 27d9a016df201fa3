package parser

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"ApartmentHunter/internal/domain"
	"ApartmentHunter/internal/normalize"
	"ApartmentHunter/internal/scanner"
)

const (
	yad2BaseURL       = "https://www.yad2.co.il"
	itemPathMarker    = "/realestate/item/"
	minTitleLength    = 5
	shortLinkTextSize = 10
)

const (
	titleSelector       = `h1, h2, h3, h4, [class*="title"], [class*="heading"]`
	priceSelector       = `[class*="price"], [data-testid*="price"]`
	roomsSelector       = `[class*="rooms"], [data-testid*="rooms"]`
	locationSelector    = `[class*="subtitle"], [class*="address"], [class*="location"]`
	descriptionSelector = `[class*="description"], [class*="content"]`
	cardSelector        = `li, article, [data-testid*="item"], [class*="item"], [class*="card"]`
)

var (
	captchaMarkers = []string{
		"Are you for real", "אבטחת אתר", "h-captcha", "hcaptcha", "ShieldSquare", "robot_checkup",
	}
	noResultsMarkers = []string{"לא נמצאו תוצאות", "no results", "אין תוצאות"}
	marketingMarkers = []string{"פרויקט חדש", "מודעה ממומנת", "sponsored", "ישירות מהקבלן"}
	promoClassHints  = []string{"project", "promoted", "sponsor", "agency-banner"}

	hebrewExpr       = regexp.MustCompile(`[\x{0590}-\x{05FF}]`)
	priceFallback    = regexp.MustCompile(`(?:₪\s*\d[\d,.]*|\d[\d,.]*\s*(?:₪|ש"ח|ש״ח|שקל)|מחיר[:\s]*(?:\d[\d,.]*|[^\s\d]+(?:\s+[^\s\d]+){0,2}))`)
	roomsFallback    = regexp.MustCompile(`\d+(?:[.,]\d+)?\s*(?:חדרים|חדר|חד['׳]?)`)
	neighborhoodExpr = regexp.MustCompile(`שכונת\s+([^,•|]+)`)
)

var errEmptyHref = errors.New("empty href")

// Yad2Extractor parses Yad2 rental search result pages.
type Yad2Extractor struct {
	baseURL string
	logger  *slog.Logger
}

var _ scanner.Extractor = (*Yad2Extractor)(nil)

// NewYad2Extractor resolves relative item links against baseURL (defaults to yad2.co.il).
func NewYad2Extractor(baseURL string, logger *slog.Logger) *Yad2Extractor {
	if baseURL == "" {
		baseURL = yad2BaseURL
	}
	return &Yad2Extractor{baseURL: strings.TrimSuffix(baseURL, "/"), logger: logger}
}

// Name identifies the extractor inside the registry.
func (y *Yad2Extractor) Name() string {
	return "yad2"
}

// Extract validates the page layout up front and returns a lazy, single-pass
// sequence over the item cards. Promoted projects and ads are skipped silently;
// cards with no usable content are yielded as domain.ErrExtraction.
func (y *Yad2Extractor) Extract(fragment domain.RawFragment) (scanner.Entries, error) {
	if marker, blocked := containsAny(string(fragment.Body), captchaMarkers); blocked {
		return emptyEntries, fmt.Errorf("%w: block page marker %q at %s", domain.ErrPageUnrecognized, marker, fragment.URL)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(fragment.Body))
	if err != nil {
		return emptyEntries, fmt.Errorf("%w: parse document %s: %w", domain.ErrPageUnrecognized, fragment.URL, err)
	}

	links := doc.Find(`a[href*="/realestate/"]`)
	// Navigation links share the /realestate/ prefix, so only item links prove the layout.
	items := uniqueItemLinks(links)
	if len(items) == 0 {
		if _, empty := containsAny(doc.Text(), noResultsMarkers); empty {
			y.debug("page has no results", "url", fragment.URL)
			return emptyEntries, nil
		}
		return emptyEntries, fmt.Errorf("%w: no item links at %s (%d real-estate links)",
			domain.ErrPageUnrecognized, fragment.URL, links.Length())
	}
	y.debug("page recognized", "url", fragment.URL, "links", links.Length(), "items", len(items))

	var consumed atomic.Bool
	return func(yield func(domain.Candidate, error) bool) {
		if consumed.Swap(true) {
			return
		}
		for _, link := range items {
			card := cardFor(link)
			href, _ := link.Attr("href")
			if isPromotion(href, card) {
				y.debug("skip promoted entry", "href", href)
				continue
			}
			if !yield(y.parseItem(card, href, fragment.Source)) {
				return
			}
		}
	}, nil
}

func (y *Yad2Extractor) parseItem(card *goquery.Selection, href, source string) (domain.Candidate, error) {
	itemURL, err := y.resolve(href)
	if err != nil {
		return domain.Candidate{}, fmt.Errorf("%w: item link %q: %w", domain.ErrExtraction, href, err)
	}

	text := spacedText(card)
	c := domain.Candidate{
		Title:       firstText(card, titleSelector, minTitleLength),
		PriceText:   firstText(card, priceSelector, 1),
		RoomsText:   firstText(card, roomsSelector, 1),
		Location:    firstText(card, locationSelector, 1),
		Description: firstText(card, descriptionSelector, 1),
		URL:         itemURL,
		Source:      source,
	}

	if c.Title == "" {
		c.Title = hebrewFallbackTitle(card)
	}
	if c.PriceText == "" {
		c.PriceText = priceFallback.FindString(text)
	}
	if c.RoomsText == "" {
		c.RoomsText = roomsFallback.FindString(text)
	}
	if c.Location == "" {
		if m := neighborhoodExpr.FindStringSubmatch(text); m != nil {
			c.Location = strings.TrimSpace(m[1])
		}
	}

	if c.Title == "" && c.PriceText == "" && c.RoomsText == "" && c.Location == "" {
		return domain.Candidate{}, fmt.Errorf("%w: empty card for %s", domain.ErrExtraction, itemURL)
	}
	return c, nil
}

func (y *Yad2Extractor) resolve(href string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", errEmptyHref
	}
	base, err := url.Parse(y.baseURL)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

func (y *Yad2Extractor) debug(msg string, args ...any) {
	if y.logger != nil {
		y.logger.Debug(msg, args...)
	}
}

func emptyEntries(func(domain.Candidate, error) bool) {}

// uniqueItemLinks keeps one link per item href; cards often link the image and the title separately.
func uniqueItemLinks(links *goquery.Selection) []*goquery.Selection {
	seen := map[string]struct{}{}
	var items []*goquery.Selection
	links.Each(func(_ int, link *goquery.Selection) {
		href, _ := link.Attr("href")
		if !strings.Contains(href, itemPathMarker) {
			return
		}
		key := href
		if i := strings.IndexAny(key, "?#"); i >= 0 {
			key = key[:i]
		}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		items = append(items, link)
	})
	return items
}

// cardFor returns the element holding the listing fields: the link itself when it
// wraps the card, otherwise its closest card-like ancestor.
func cardFor(link *goquery.Selection) *goquery.Selection {
	if len([]rune(normalize.CleanText(link.Text()))) >= shortLinkTextSize {
		return link
	}
	if card := link.Closest(cardSelector); card.Length() > 0 {
		return card
	}
	if parent := link.Parent(); parent.Length() > 0 {
		return parent
	}
	return link
}

func isPromotion(href string, card *goquery.Selection) bool {
	if strings.Contains(strings.ToLower(href), "project") {
		return true
	}
	class, _ := card.Attr("class")
	if _, hit := containsAny(strings.ToLower(class), promoClassHints); hit {
		return true
	}
	if card.Find(`[class*="project"], [data-testid*="project"]`).Length() > 0 {
		return true
	}
	_, hit := containsAny(strings.ToLower(spacedText(card)), marketingMarkers)
	return hit
}

func firstText(card *goquery.Selection, selector string, minLen int) string {
	var found string
	card.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := normalize.CleanText(spacedText(s))
		if len([]rune(text)) >= minLen {
			found = text
			return false
		}
		return true
	})
	return found
}

func hebrewFallbackTitle(card *goquery.Selection) string {
	var found string
	card.Find("span, div, p").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.Children().Length() > 0 {
			return true
		}
		text := normalize.CleanText(s.Text())
		if hebrewExpr.MatchString(text) && len([]rune(text)) > shortLinkTextSize {
			found = text
			return false
		}
		return true
	})
	return found
}

// spacedText joins text nodes with spaces; Selection.Text concatenates adjacent
// elements without a separator, which glues price and room figures together.
func spacedText(sel *goquery.Selection) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
			return
		}
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return strings.Join(parts, " ")
}

func containsAny(text string, markers []string) (string, bool) {
	for _, m := range markers {
		if strings.Contains(text, m) {
			return m, true
		}
	}
	return "", false
}
