package catalog

import (
	"encoding/xml"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/acp-checkout/internal/common"
)

const defaultProductType = "Apparel & Accessories"

// FeedHandler publishes the catalog as JSON and RSS product feeds.
type FeedHandler struct {
	Source       Source
	BaseURL      string
	MerchantName string
	Currency     string
	Now          func() time.Time
}

// FeedProduct is one entry of the JSON feed.
type FeedProduct struct {
	ID                    string `json:"id"`
	Title                 string `json:"title"`
	Description           string `json:"description"`
	Link                  string `json:"link"`
	Price                 string `json:"price"`
	Availability          string `json:"availability"`
	Condition             string `json:"condition"`
	Brand                 string `json:"brand"`
	ImageLink             string `json:"image_link"`
	ProductType           string `json:"product_type"`
	GoogleProductCategory string `json:"google_product_category"`
}

// Feed is the JSON feed document.
type Feed struct {
	Version  string        `json:"version"`
	Merchant FeedMerchant  `json:"merchant"`
	Products []FeedProduct `json:"products"`
	Updated  time.Time     `json:"last_updated"`
}

// FeedMerchant identifies the feed publisher.
type FeedMerchant struct {
	Name   string `json:"name"`
	Domain string `json:"domain"`
}

type rssFeed struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	NSG     string     `xml:"xmlns:g,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title         string    `xml:"title"`
	Link          string    `xml:"link"`
	Description   string    `xml:"description"`
	LastBuildDate string    `xml:"lastBuildDate"`
	Items         []rssItem `xml:"item"`
}

type rssItem struct {
	ID           string `xml:"g:id"`
	Title        string `xml:"g:title"`
	Description  string `xml:"g:description"`
	Link         string `xml:"g:link"`
	ImageLink    string `xml:"g:image_link"`
	Price        string `xml:"g:price"`
	Availability string `xml:"g:availability"`
	Condition    string `xml:"g:condition"`
	Brand        string `xml:"g:brand"`
	ProductType  string `xml:"g:product_type"`
}

// JSON handles GET /api/feed/products.json.
func (h *FeedHandler) JSON(w http.ResponseWriter, r *http.Request) {
	products, ok := h.list(w, r)
	if !ok {
		return
	}
	feed := Feed{
		Version:  "1.0",
		Merchant: FeedMerchant{Name: h.MerchantName, Domain: h.BaseURL},
		Products: make([]FeedProduct, 0, len(products)),
		Updated:  h.now().UTC(),
	}
	for _, p := range products {
		feed.Products = append(feed.Products, h.entry(p))
	}
	common.JSON(w, http.StatusOK, feed)
}

// XML handles GET /api/feed/products.xml.
func (h *FeedHandler) XML(w http.ResponseWriter, r *http.Request) {
	products, ok := h.list(w, r)
	if !ok {
		return
	}
	doc := rssFeed{
		Version: "2.0",
		NSG:     "http://base.google.com/ns/1.0",
		Channel: rssChannel{
			Title:         h.MerchantName + " Product Feed",
			Link:          h.BaseURL,
			Description:   "Product feed for " + h.MerchantName,
			LastBuildDate: h.now().UTC().Format(http.TimeFormat),
		},
	}
	for _, p := range products {
		e := h.entry(p)
		doc.Channel.Items = append(doc.Channel.Items, rssItem{
			ID:           e.ID,
			Title:        e.Title,
			Description:  e.Description,
			Link:         e.Link,
			ImageLink:    e.ImageLink,
			Price:        e.Price,
			Availability: e.Availability,
			Condition:    e.Condition,
			Brand:        e.Brand,
			ProductType:  e.ProductType,
		})
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(xml.Header))
	_ = xml.NewEncoder(w).Encode(doc)
}

func (h *FeedHandler) list(w http.ResponseWriter, r *http.Request) ([]Product, bool) {
	if h == nil || h.Source == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog not configured", nil)
		return nil, false
	}
	products, err := h.Source.List(r.Context())
	if err != nil {
		common.JSONError(w, http.StatusServiceUnavailable, "CATALOG_UNAVAILABLE", "catalog unavailable", nil)
		return nil, false
	}
	return products, true
}

func (h *FeedHandler) entry(p Product) FeedProduct {
	base := strings.TrimRight(h.BaseURL, "/")
	availability := "in stock"
	if !p.Available {
		availability = "out of stock"
	}
	image := p.Image
	switch {
	case image == "":
		image = base + "/placeholder-" + p.ID + ".jpg"
	case strings.HasPrefix(image, "/"):
		image = base + image
	}
	productType := p.Category
	if productType == "" {
		productType = defaultProductType
	}
	currency := strings.ToUpper(h.Currency)
	if currency == "" {
		currency = "USD"
	}
	return FeedProduct{
		ID:                    p.ID,
		Title:                 p.Name,
		Description:           p.Description,
		Link:                  base + "/product/" + p.ID,
		Price:                 decimal.New(p.UnitPrice, -2).StringFixed(2) + " " + currency,
		Availability:          availability,
		Condition:             "new",
		Brand:                 h.MerchantName,
		ImageLink:             image,
		ProductType:           productType,
		GoogleProductCategory: defaultProductType,
	}
}

func (h *FeedHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}
