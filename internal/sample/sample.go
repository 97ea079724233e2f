// Package sample generates synthetic product catalogs for demos and tests.
// Output is fully determined by the seed.
package sample

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
)

// Performance tiers shape a product's funnel rates.
const (
	tierLow = iota
	tierAverage
	tierHigh
	tierElite
)

// Base funnel rates per tier, as fractions.
var tierRates = [...]struct{ ctr, cr, str float64 }{
	tierLow:     {ctr: 0.010, cr: 0.004, str: 0.020},
	tierAverage: {ctr: 0.030, cr: 0.012, str: 0.060},
	tierHigh:    {ctr: 0.060, cr: 0.025, str: 0.110},
	tierElite:   {ctr: 0.095, cr: 0.045, str: 0.180},
}

// DefaultCategories are used when none are configured.
var DefaultCategories = []string{"shoes", "bags", "watches", "outerwear"}

var adjectives = []string{"Classic", "Urban", "Trail", "Summer", "Studio", "Nomad", "Coastal", "Midnight"}

// Config controls a generated catalog.
type Config struct {
	Seed                uint64
	Categories          []string
	ProductsPerCategory int
	// Turkish writes Turkish column headers and comma decimals, as seen in
	// marketplace exports.
	Turkish bool
	// MissingRate blanks this fraction of metric cells.
	MissingRate float64
	// NoiseRate replaces this fraction of metric cells with text.
	NoiseRate float64
}

// DefaultConfig returns a small mixed catalog.
func DefaultConfig() Config {
	return Config{
		Seed:                1,
		Categories:          DefaultCategories,
		ProductsPerCategory: 25,
	}
}

type columns struct {
	id, category, name, ctr, cr, str, sales, stock, popularity string
}

var (
	englishColumns = columns{"Product ID", "Category", "Product Name", "CTR", "Conversion Rate", "Add To Cart", "Units Sold", "Inventory", "Google Trends"}
	turkishColumns = columns{"Urun Kodu", "Kategori", "Urun Adi", "Tiklama Orani", "Donusum Orani", "Add To Card", "Satis Adedi", "Stok", "Google Trends"}
)

// Header returns the column order used by Generate for cfg.
func Header(cfg Config) []string {
	c := englishColumns
	if cfg.Turkish {
		c = turkishColumns
	}
	return []string{c.id, c.category, c.name, c.ctr, c.cr, c.str, c.sales, c.stock, c.popularity}
}

// Generate builds the catalog rows. Cells are text, like an uploaded file.
func Generate(cfg Config) []map[string]any {
	categories := cfg.Categories
	if len(categories) == 0 {
		categories = DefaultCategories
	}
	perCategory := cfg.ProductsPerCategory
	if perCategory <= 0 {
		perCategory = DefaultConfig().ProductsPerCategory
	}
	c := englishColumns
	if cfg.Turkish {
		c = turkishColumns
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	rows := make([]map[string]any, 0, len(categories)*perCategory)
	for ci, category := range categories {
		// Categories differ in scale so per-category normalization matters.
		scale := 1 + float64(ci)*0.75
		for p := 0; p < perCategory; p++ {
			tier := pickTier(rng)
			base := tierRates[tier]
			sales := int(math.Round(scale * (20 + 400*base.cr/tierRates[tierElite].cr*rng.Float64())))
			stock := 10 + rng.IntN(600)

			row := map[string]any{
				c.id:       fmt.Sprintf("%s-%04d", strings.ToUpper(category[:min(3, len(category))]), p+1),
				c.category: category,
				c.name:     fmt.Sprintf("%s %s %d", adjectives[rng.IntN(len(adjectives))], category, p+1),
			}
			metrics := []struct {
				column string
				value  float64
			}{
				{c.ctr, scale * jitter(rng, base.ctr)},
				{c.cr, scale * jitter(rng, base.cr)},
				{c.str, scale * jitter(rng, base.str)},
				{c.sales, float64(sales)},
				{c.stock, float64(stock)},
				{c.popularity, math.Round(100 * min(1, jitter(rng, base.ctr/tierRates[tierElite].ctr)))},
			}
			for _, m := range metrics {
				row[m.column] = cell(rng, cfg, m.value)
			}
			rows = append(rows, row)
		}
	}
	return rows
}

// pickTier draws a tier: most products are average, few are elite.
func pickTier(rng *rand.Rand) int {
	switch r := rng.Float64(); {
	case r < 0.25:
		return tierLow
	case r < 0.75:
		return tierAverage
	case r < 0.93:
		return tierHigh
	default:
		return tierElite
	}
}

// jitter scales v by a random factor in [0.7, 1.3).
func jitter(rng *rand.Rand, v float64) float64 {
	return v * (0.7 + 0.6*rng.Float64())
}

func cell(rng *rand.Rand, cfg Config, v float64) string {
	r := rng.Float64()
	switch {
	case r < cfg.MissingRate:
		return ""
	case r < cfg.MissingRate+cfg.NoiseRate:
		return "n/a"
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if v != math.Trunc(v) {
		s = strconv.FormatFloat(v, 'f', 4, 64)
	}
	if cfg.Turkish {
		s = strings.Replace(s, ".", ",", 1)
	}
	return s
}

// WriteCSV writes rows with header order. Turkish catalogs use ';' because
// their decimals use ','.
func WriteCSV(w io.Writer, cfg Config, rows []map[string]any) error {
	cw := csv.NewWriter(w)
	if cfg.Turkish {
		cw.Comma = ';'
	}
	header := Header(cfg)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	record := make([]string, len(header))
	for _, row := range rows {
		for i, col := range header {
			record[i] = fmt.Sprint(row[col])
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
