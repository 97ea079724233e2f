// Package schema maps inconsistent input column names onto the canonical
// metric vocabulary through an explicit synonym table.
package schema

import (
	"fmt"
	"strings"
)

// Canonical names of the structural fields every dataset must carry.
const (
	FieldID       = "id"
	FieldCategory = "category"
)

// Field declares a canonical name and the column names accepted for it.
type Field struct {
	Canonical string   `json:"canonical" yaml:"canonical" koanf:"canonical"`
	Synonyms  []string `json:"synonyms" yaml:"synonyms" koanf:"synonyms"`
}

// Schema is an immutable synonym table.
type Schema struct {
	fields []Field
	index  map[string]string // normalized accepted name -> canonical
}

// New builds a Schema. The canonical name itself is always accepted. A name
// claimed by two canonical fields is rejected with ErrInvalidSchema.
func New(fields ...Field) (*Schema, error) {
	s := &Schema{index: make(map[string]string)}
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		canonical := strings.TrimSpace(f.Canonical)
		if canonical == "" {
			return nil, fmt.Errorf("%w: empty canonical name", ErrInvalidSchema)
		}
		if seen[canonical] {
			return nil, fmt.Errorf("%w: duplicate canonical name %q", ErrInvalidSchema, canonical)
		}
		seen[canonical] = true

		names := append([]string{canonical}, f.Synonyms...)
		for _, name := range names {
			key := Normalize(name)
			if key == "" {
				continue
			}
			if owner, ok := s.index[key]; ok && owner != canonical {
				return nil, fmt.Errorf("%w: %q accepted for both %q and %q", ErrInvalidSchema, name, owner, canonical)
			}
			s.index[key] = canonical
		}
		s.fields = append(s.fields, Field{Canonical: canonical, Synonyms: append([]string(nil), f.Synonyms...)})
	}
	return s, nil
}

// Normalize folds a column name for matching: lower case, '_' and '-' read
// as spaces, surrounding and repeated whitespace removed.
func Normalize(name string) string {
	name = strings.ToLower(name)
	name = strings.NewReplacer("_", " ", "-", " ").Replace(name)
	return strings.Join(strings.Fields(name), " ")
}

// Canonical returns the canonical name a column resolves to.
func (s *Schema) Canonical(column string) (string, bool) {
	c, ok := s.index[Normalize(column)]
	return c, ok
}

// Fields returns a copy of the declared fields in declaration order.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Has reports whether canonical is declared.
func (s *Schema) Has(canonical string) bool {
	for _, f := range s.fields {
		if f.Canonical == canonical {
			return true
		}
	}
	return false
}

// Default returns the vocabulary used by the product dashboards, covering
// both the Turkish and the English column headers seen in exports.
func Default() *Schema {
	s, err := New(DefaultFields()...)
	if err != nil {
		panic(err)
	}
	return s
}

// DefaultFields lists the built-in synonym table.
func DefaultFields() []Field {
	return []Field{
		{Canonical: FieldID, Synonyms: []string{"product id", "urun id", "urun kodu", "sku"}},
		{Canonical: FieldCategory, Synonyms: []string{"kategori", "product category"}},
		{Canonical: "name", Synonyms: []string{"urun adi", "product name", "urun"}},
		{Canonical: "image", Synonyms: []string{"gorsel", "image url", "gorsel url"}},
		{Canonical: "description", Synonyms: []string{"aciklama"}},
		{Canonical: "CTR", Synonyms: []string{"click through rate", "click rate", "tiklama orani"}},
		{Canonical: "CR", Synonyms: []string{"conversion rate", "donusum orani"}},
		{Canonical: "STR", Synonyms: []string{"add to cart", "add to card", "add to cart rate", "sepete ekleme orani"}},
		{Canonical: "sales", Synonyms: []string{"satis", "satis adedi", "units sold"}},
		{Canonical: "stock", Synonyms: []string{"stok", "stok adedi", "inventory"}},
		{Canonical: "turnover", Synonyms: []string{"turnover rate", "devir hizi"}},
		{Canonical: "cover", Synonyms: []string{"stock cover", "inventory cover", "stok gun"}},
		{Canonical: "popularity", Synonyms: []string{"google trends", "trend index", "interest index"}},
	}
}
