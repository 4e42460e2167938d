// Package catalog aggregates the upstream product catalog into ranked
// snapshots. Each Engine pages through a Source, drops excluded and
// unpopular items with a Filter, orders what remains with a Ranker, and
// publishes the capped result as one atomic Snapshot.
package catalog

import (
	"github.com/jrsteele09/go-dropship-gateway/internal/utils"
)

// ProductURLPrefix builds a product's public page from its pid.
const ProductURLPrefix = "https://app.cjdropshipping.com/product-detail/"

// RawProduct is one entry of an upstream product listing.
type RawProduct struct {
	PID           string            `json:"pid"`
	ProductID     string            `json:"productId"`
	ProductNameEn string            `json:"productNameEn"`
	ProductName   string            `json:"productName"`
	CategoryName  string            `json:"categoryName"`
	ProductImage  string            `json:"productImage"`
	SellPrice     utils.LooseNumber `json:"sellPrice"`
	OrderCount    utils.LooseNumber `json:"orderCount"`
	ListedNum     utils.LooseNumber `json:"listedNum"`
	Orders        utils.LooseNumber `json:"orders"`
}

// ID returns pid, falling back to productId.
func (p RawProduct) ID() string {
	if p.PID != "" {
		return p.PID
	}
	return p.ProductID
}

func (p RawProduct) Title() string {
	switch {
	case p.ProductNameEn != "":
		return p.ProductNameEn
	case p.ProductName != "":
		return p.ProductName
	default:
		return "Unknown"
	}
}

// Popularity is the first non-zero of orderCount, listedNum and orders.
func (p RawProduct) Popularity() int {
	for _, n := range []utils.LooseNumber{p.OrderCount, p.ListedNum, p.Orders} {
		if n.Float() != 0 {
			return int(n.Float())
		}
	}
	return 0
}

func (p RawProduct) Cost() float64 {
	return p.SellPrice.Float()
}

func (p RawProduct) URL() string {
	if id := p.ID(); id != "" {
		return ProductURLPrefix + id
	}
	return ""
}

type listPage struct {
	List []RawProduct `json:"list"`
}
