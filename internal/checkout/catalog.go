package checkout

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pixelmint/pixelmint-backend/pkg/enums"
)

// Product is a purchasable credit pack or subscription plan.
type Product struct {
	Code     string          `json:"code"`
	Name     string          `json:"name"`
	Type     enums.OrderType `json:"type"`
	Credits  int64           `json:"credits"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
	Active   bool            `json:"active"`
}

// AmountCents converts the display price to minor units.
func (p Product) AmountCents() int64 {
	return p.Price.Shift(2).Round(0).IntPart()
}

func (p Product) IsSubscription() bool {
	return p.Type == enums.OrderTypeSubscription
}

type Catalog struct {
	products map[string]Product
}

func NewCatalog(products ...Product) *Catalog {
	c := &Catalog{products: make(map[string]Product, len(products))}
	for _, p := range products {
		c.products[p.Code] = p
	}
	return c
}

// DefaultCatalog is the production price list.
func DefaultCatalog() *Catalog {
	return NewCatalog(
		Product{Code: "pack_small", Name: "Starter pack", Type: enums.OrderTypeOneTime, Credits: 800, Price: decimal.RequireFromString("9.90"), Currency: "USD", Active: true},
		Product{Code: "pack_large", Name: "Creator pack", Type: enums.OrderTypeOneTime, Credits: 3000, Price: decimal.RequireFromString("29.90"), Currency: "USD", Active: true},
		Product{Code: "sub_basic", Name: "Basic monthly", Type: enums.OrderTypeSubscription, Credits: 1200, Price: decimal.RequireFromString("12.90"), Currency: "USD", Active: true},
		Product{Code: "sub_pro", Name: "Pro monthly", Type: enums.OrderTypeSubscription, Credits: 4000, Price: decimal.RequireFromString("36.90"), Currency: "USD", Active: true},
	)
}

// Lookup returns an active product by code.
func (c *Catalog) Lookup(code string) (Product, bool) {
	p, ok := c.products[strings.TrimSpace(code)]
	if !ok || !p.Active {
		return Product{}, false
	}
	return p, true
}

// List returns active products ordered by code.
func (c *Catalog) List() []Product {
	out := make([]Product, 0, len(c.products))
	for _, p := range c.products {
		if p.Active {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// ProductIndex resolves the product a webhook refers to, by catalog code or
// by the provider's own product/price id. Inactive products still resolve so
// renewals of retired plans keep granting.
type ProductIndex struct {
	catalog      *Catalog
	byProviderID map[string]string
}

func NewProductIndex(catalog *Catalog, providerProducts map[string]string) *ProductIndex {
	idx := &ProductIndex{catalog: catalog, byProviderID: make(map[string]string, len(providerProducts))}
	for code, providerID := range providerProducts {
		idx.byProviderID[strings.TrimSpace(providerID)] = code
	}
	return idx
}

func (i *ProductIndex) Resolve(code, providerProductID string) (Product, bool) {
	if p, ok := i.catalog.products[strings.TrimSpace(code)]; ok {
		return p, true
	}
	if mapped, ok := i.byProviderID[strings.TrimSpace(providerProductID)]; ok && providerProductID != "" {
		p, ok := i.catalog.products[mapped]
		return p, ok
	}
	return Product{}, false
}
