package catalog

import (
	"context"
	"sort"

	"github.com/jrsteele09/go-dropship-gateway/internal/utils"
)

const (
	retailMarkup   = 2.5
	originalMarkup = 1.15
)

// Ranker orders filtered candidates, best first.
type Ranker[T any] interface {
	Rank(ctx context.Context, candidates []RawProduct) []T
}

// PublicProduct is the shape served by the public winning-products endpoint.
type PublicProduct struct {
	Name          string  `json:"product_name"`
	Price         float64 `json:"price"`
	OriginalPrice float64 `json:"original_price"`
	ImageURL      string  `json:"image_url"`
	OrderCount    int     `json:"order_count"`
	Rating        float64 `json:"rating"`
	ProductURL    string  `json:"product_url"`
}

// NewPublicProduct prices p at the retail markup with a struck-through original price.
func NewPublicProduct(p RawProduct) PublicProduct {
	price := utils.RoundTo(p.Cost()*retailMarkup, 2)
	return PublicProduct{
		Name:          p.Title(),
		Price:         price,
		OriginalPrice: utils.RoundTo(price*originalMarkup, 2),
		ImageURL:      p.ProductImage,
		OrderCount:    p.Popularity(),
		ProductURL:    p.URL(),
	}
}

// PopularityRanker sorts by order count without any extra upstream calls.
type PopularityRanker struct{}

var _ Ranker[PublicProduct] = PopularityRanker{}

func (PopularityRanker) Rank(_ context.Context, candidates []RawProduct) []PublicProduct {
	out := make([]PublicProduct, 0, len(candidates))
	for _, p := range candidates {
		out = append(out, NewPublicProduct(p))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OrderCount > out[j].OrderCount
	})
	return out
}

// RankerFunc adapts a function to Ranker.
type RankerFunc[T any] func(ctx context.Context, candidates []RawProduct) []T

func (f RankerFunc[T]) Rank(ctx context.Context, candidates []RawProduct) []T {
	return f(ctx, candidates)
}
