package purchases

import (
	"fmt"
	"strings"
)

// Package is a request pack offered for sale. Amount is in minor currency units.
type Package struct {
	Type          string `json:"package_type"`
	Title         string `json:"title"`
	RequestsCount int    `json:"requests_count"`
	Amount        int64  `json:"amount"`
	Price         string `json:"price"`
	Currency      string `json:"currency"`
}

type Catalog struct {
	currency string
	packages []Package
}

// DefaultCatalog lists the standard and pro packs priced in currency.
func DefaultCatalog(currency string) *Catalog {
	return NewCatalog(currency,
		Package{Type: "standard", Title: "Standard", RequestsCount: 40, Amount: 39900},
		Package{Type: "pro", Title: "Pro", RequestsCount: 80, Amount: 74900},
	)
}

func NewCatalog(currency string, pkgs ...Package) *Catalog {
	currency = strings.ToLower(currency)
	c := &Catalog{currency: currency, packages: make([]Package, 0, len(pkgs))}
	for _, p := range pkgs {
		p.Currency = currency
		p.Price = formatAmount(p.Amount)
		c.packages = append(c.packages, p)
	}
	return c
}

func (c *Catalog) Currency() string { return c.currency }

func (c *Catalog) List() []Package {
	return append([]Package(nil), c.packages...)
}

func (c *Catalog) Lookup(packageType string) (Package, bool) {
	for _, p := range c.packages {
		if p.Type == packageType {
			return p, true
		}
	}
	return Package{}, false
}

func formatAmount(minor int64) string {
	return fmt.Sprintf("%d.%02d", minor/100, minor%100)
}
