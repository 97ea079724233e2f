package normalize_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/okian/trendradar/internal/domain/model"
	"github.com/okian/trendradar/internal/domain/normalize"
	"github.com/okian/trendradar/internal/domain/schema"
	. "github.com/smartystreets/goconvey/convey"
)

var specs = []model.MetricSpec{
	{Name: "CTR", Required: true, Sign: model.Higher, Weight: 1},
	{Name: "cover", Required: false, Sign: model.Lower, Weight: 1},
}

func resolve(rows []map[string]any) (*schema.Mapping, []model.Record) {
	req := schema.Requirements{
		Required:    []string{schema.FieldID, schema.FieldCategory, "CTR"},
		Optional:    []string{"cover"},
		Derivations: []model.DerivationRule{{Target: "cover", Numerator: "stock", Denominator: "sales"}},
	}
	m, err := schema.Default().Resolve(schema.Columns(rows), req)
	So(err, ShouldBeNil)
	records, err := m.Apply(rows, schema.ApplyOptions{Values: []string{"CTR", "cover", "stock", "sales"}, External: "popularity"})
	So(err, ShouldBeNil)
	return m, records
}

func group(n *normalize.Normalized, category string) normalize.Group {
	for _, g := range n.Groups {
		if g.Category == category {
			return g
		}
	}
	return normalize.Group{}
}

func member(g normalize.Group, id string) normalize.Member {
	for _, m := range g.Members {
		if m.Record.ID == id {
			return m
		}
	}
	return normalize.Member{}
}

func TestStandardize(t *testing.T) {
	Convey("Given value sets", t, func() {
		Convey("When values have spread", func() {
			stats, z := normalize.Standardize([]float64{2, 4, 4, 4, 5, 5, 7, 9})

			Convey("Then z-scores have mean 0 and population std 1", func() {
				So(stats.Mean, ShouldEqual, 5.0)
				So(stats.Std, ShouldEqual, 2.0)
				So(stats.Degenerate, ShouldBeFalse)
				var sum, sq float64
				for _, v := range z {
					sum += v
					sq += v * v
				}
				So(sum/float64(len(z)), ShouldAlmostEqual, 0, 1e-12)
				So(math.Sqrt(sq/float64(len(z))), ShouldAlmostEqual, 1, 1e-12)
			})
		})

		Convey("When every value is identical", func() {
			stats, z := normalize.Standardize([]float64{0.3, 0.3, 0.3})

			Convey("Then every z-score is exactly zero", func() {
				So(stats.Degenerate, ShouldBeTrue)
				So(z, ShouldResemble, []float64{0, 0, 0})
			})
		})

		Convey("When there is a single value", func() {
			stats, z := normalize.Standardize([]float64{42})

			Convey("Then it standardizes to zero", func() {
				So(stats.Degenerate, ShouldBeTrue)
				So(stats.Count, ShouldEqual, 1)
				So(z, ShouldResemble, []float64{0})
			})
		})

		Convey("When there are no values", func() {
			stats, z := normalize.Standardize(nil)

			Convey("Then stats are degenerate and empty", func() {
				So(stats.Degenerate, ShouldBeTrue)
				So(z, ShouldBeEmpty)
			})
		})
	})

	Convey("Given values large enough to overflow when squared", t, func() {
		stats, z := normalize.Standardize([]float64{1e200, 3e200})

		Convey("Then they still standardize to -1 and 1", func() {
			So(stats.Degenerate, ShouldBeFalse)
			So(math.IsInf(stats.Std, 0), ShouldBeFalse)
			So(stats.Std, ShouldAlmostEqual, 1e200, 1e188)
			So(stats.Mean, ShouldAlmostEqual, 2e200, 1e188)
			So(z[0], ShouldAlmostEqual, -1, 1e-12)
			So(z[1], ShouldAlmostEqual, 1, 1e-12)
		})
	})

}

func TestCoerce(t *testing.T) {
	Convey("Given raw cells", t, func() {
		cases := []struct {
			in   any
			want float64
		}{
			{0.25, 0.25},
			{7, 7},
			{int64(3), 3},
			{"12,5%", 12.5},
			{"1.234,5", 1234.5},
			{"1,234.5", 1234.5},
			{"1,234,567", 1234567},
			{" 0.07 ", 0.07},
			{"1 234,5", 1234.5},
		}

		Convey("Then numeric forms are read", func() {
			for _, c := range cases {
				v, _, ok := normalize.Coerce(c.in)
				So(ok, ShouldBeTrue)
				So(v, ShouldAlmostEqual, c.want, 1e-9)
			}
		})

		Convey("Then blanks are missing", func() {
			for _, in := range []any{nil, "", "   "} {
				_, kind, ok := normalize.Coerce(in)
				So(ok, ShouldBeFalse)
				So(kind, ShouldEqual, model.IssueMissing)
			}
		})

		Convey("Then text and non-finite numbers are non-numeric", func() {
			for _, in := range []any{"n/a", "abc", math.NaN(), math.Inf(1), true} {
				_, kind, ok := normalize.Coerce(in)
				So(ok, ShouldBeFalse)
				So(kind, ShouldEqual, model.IssueNonNumeric)
			}
		})
	})
}

func TestNormalize(t *testing.T) {
	ctx := context.Background()

	Convey("Given records in two categories", t, func() {
		rows := []map[string]any{
			{"id": "s1", "category": "shoes", "CTR": 1.0},
			{"id": "s2", "category": "shoes", "CTR": 3.0},
			{"id": "b1", "category": "bags", "CTR": 100.0},
			{"id": "b2", "category": "bags", "CTR": 300.0},
		}
		m, records := resolve(rows)
		n, err := normalize.New(normalize.WithWorkers(2)).Normalize(ctx, normalize.Input{Records: records, Specs: specs, Mapping: m})
		So(err, ShouldBeNil)

		Convey("Then statistics are computed within each category", func() {
			So(n.Groups, ShouldHaveLength, 2)
			So(n.Groups[0].Category, ShouldEqual, "bags")
			So(member(group(n, "shoes"), "s1").Z["CTR"], ShouldAlmostEqual, -1, 1e-12)
			So(member(group(n, "shoes"), "s2").Z["CTR"], ShouldAlmostEqual, 1, 1e-12)
			So(member(group(n, "bags"), "b1").Z["CTR"], ShouldAlmostEqual, -1, 1e-12)
			So(group(n, "bags").Stats["CTR"].Mean, ShouldEqual, 200.0)
		})

		Convey("And the optional metric is dropped for the run", func() {
			So(n.Dropped, ShouldResemble, []string{"cover"})
			So(group(n, "shoes").Active, ShouldResemble, []string{"CTR"})
		})
	})

	Convey("Given the same records in a different order", t, func() {
		forward := []map[string]any{
			{"id": "a", "category": "c", "CTR": 0.1},
			{"id": "b", "category": "c", "CTR": 0.7},
			{"id": "c", "category": "c", "CTR": 0.3},
		}
		backward := []map[string]any{forward[2], forward[0], forward[1]}

		m1, r1 := resolve(forward)
		m2, r2 := resolve(backward)
		n1, err := normalize.New().Normalize(ctx, normalize.Input{Records: r1, Specs: specs, Mapping: m1})
		So(err, ShouldBeNil)
		n2, err := normalize.New().Normalize(ctx, normalize.Input{Records: r2, Specs: specs, Mapping: m2})
		So(err, ShouldBeNil)

		Convey("Then standardized values are bit-identical", func() {
			for _, id := range []string{"a", "b", "c"} {
				So(member(n1.Groups[0], id).Z["CTR"], ShouldEqual, member(n2.Groups[0], id).Z["CTR"])
			}
		})
	})

	Convey("Given a category with a constant metric", t, func() {
		rows := []map[string]any{
			{"id": "a", "category": "c", "CTR": "0,5"},
			{"id": "b", "category": "c", "CTR": "0.5"},
		}
		m, records := resolve(rows)
		n, err := normalize.New().Normalize(ctx, normalize.Input{Records: records, Specs: specs, Mapping: m})
		So(err, ShouldBeNil)

		Convey("Then every member standardizes to exactly zero", func() {
			g := group(n, "c")
			So(g.Stats["CTR"].Degenerate, ShouldBeTrue)
			So(member(g, "a").Z["CTR"], ShouldEqual, 0.0)
			So(member(g, "b").Z["CTR"], ShouldEqual, 0.0)
			So(member(g, "a").Excluded, ShouldBeFalse)
		})
	})

	Convey("Given a non-numeric cell", t, func() {
		rows := []map[string]any{
			{"id": "a", "category": "c", "CTR": 1.0},
			{"id": "b", "category": "c", "CTR": "n/a"},
			{"id": "d", "category": "c", "CTR": 3.0},
		}
		m, records := resolve(rows)
		n, err := normalize.New().Normalize(ctx, normalize.Input{Records: records, Specs: specs, Mapping: m})
		So(err, ShouldBeNil)

		Convey("Then it is flagged and left out of the statistics", func() {
			So(n.Flagged, ShouldHaveLength, 1)
			So(errors.Is(n.Flagged[0], model.ErrNonNumericValue), ShouldBeTrue)
			g := group(n, "c")
			So(g.Stats["CTR"].Count, ShouldEqual, 2)
			So(g.Stats["CTR"].Mean, ShouldEqual, 2.0)
		})

		Convey("And the record is excluded with its issue", func() {
			b := member(group(n, "c"), "b")
			So(b.Excluded, ShouldBeTrue)
			So(b.Issues, ShouldResemble, []model.Issue{{Metric: "CTR", Kind: model.IssueNonNumeric, Value: "n/a"}})
		})
	})

	Convey("Given a derived ratio with a zero denominator", t, func() {
		rows := []map[string]any{
			{"id": "a", "category": "c", "CTR": 1.0, "stock": 10, "sales": 5},
			{"id": "b", "category": "c", "CTR": 2.0, "stock": 10, "sales": 0},
			{"id": "d", "category": "c", "CTR": 3.0, "stock": 30, "sales": 5},
		}
		m, records := resolve(rows)
		n, err := normalize.New().Normalize(ctx, normalize.Input{Records: records, Specs: specs, Mapping: m})
		So(err, ShouldBeNil)

		Convey("Then the ratio is undefined for that record only", func() {
			g := group(n, "c")
			So(g.Active, ShouldResemble, []string{"CTR", "cover"})
			So(member(g, "a").Raw["cover"], ShouldEqual, 2.0)
			b := member(g, "b")
			So(b.Excluded, ShouldBeTrue)
			So(b.Issues[0].Kind, ShouldEqual, model.IssueUndefinedRatio)
			So(n.Flagged, ShouldBeEmpty)
		})
	})

	Convey("Given a category where a required metric is never defined", t, func() {
		rows := []map[string]any{
			{"id": "a", "category": "good", "CTR": 1.0},
			{"id": "b", "category": "good", "CTR": 2.0},
			{"id": "c", "category": "empty", "CTR": ""},
			{"id": "d", "category": "empty", "CTR": nil},
		}
		m, records := resolve(rows)
		n, err := normalize.New().Normalize(ctx, normalize.Input{Records: records, Specs: specs, Mapping: m})
		So(err, ShouldBeNil)

		Convey("Then only that category fails", func() {
			So(errors.Is(group(n, "empty").Err, model.ErrInsufficientData), ShouldBeTrue)
			So(group(n, "good").Err, ShouldBeNil)
			So(n.Failures(), ShouldHaveLength, 1)
		})
	})

	Convey("Given an external signal", t, func() {
		rows := []map[string]any{
			{"id": "a", "category": "x", "CTR": 1.0, "popularity": 10},
			{"id": "b", "category": "y", "CTR": 2.0, "popularity": 30},
			{"id": "c", "category": "y", "CTR": 3.0, "popularity": "?"},
		}
		m, records := resolve(rows)
		n, err := normalize.New().Normalize(ctx, normalize.Input{Records: records, Specs: specs, Mapping: m, External: "popularity"})
		So(err, ShouldBeNil)

		Convey("Then it is standardized across all categories", func() {
			So(n.External["a"], ShouldAlmostEqual, -1, 1e-12)
			So(n.External["b"], ShouldAlmostEqual, 1, 1e-12)
			So(n.ExternalStats.Count, ShouldEqual, 2)
		})

		Convey("And records without a readable value are excluded", func() {
			So(member(group(n, "y"), "c").Excluded, ShouldBeTrue)
			So(n.Flagged, ShouldHaveLength, 1)
		})
	})

	Convey("Given a cancelled context", t, func() {
		rows := []map[string]any{{"id": "a", "category": "c", "CTR": 1.0}}
		m, records := resolve(rows)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := normalize.New().Normalize(cctx, normalize.Input{Records: records, Specs: specs, Mapping: m})

		Convey("Then normalization stops with the context error", func() {
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
		})
	})

	Convey("Given no mapping", t, func() {
		_, err := normalize.New().Normalize(ctx, normalize.Input{})

		Convey("Then the input is rejected", func() {
			So(errors.Is(err, normalize.ErrInvalidInput), ShouldBeTrue)
		})
	})
}

func TestNormalizeWithoutWeightedMetrics(t *testing.T) {
	ctx := context.Background()
	optional := []model.MetricSpec{
		{Name: "CTR", Required: false, Sign: model.Higher, Weight: 1},
		{Name: "CR", Required: false, Sign: model.Higher, Weight: 0},
	}
	resolveOptional := func(rows []map[string]any) (*schema.Mapping, []model.Record) {
		req := schema.Requirements{
			Required: []string{schema.FieldID, schema.FieldCategory},
			Optional: []string{"CTR", "CR"},
		}
		m, err := schema.Default().Resolve(schema.Columns(rows), req)
		So(err, ShouldBeNil)
		records, err := m.Apply(rows, schema.ApplyOptions{Values: []string{"CTR", "CR"}})
		So(err, ShouldBeNil)
		return m, records
	}

	Convey("Given a category where no optional metric has a value", t, func() {
		rows := []map[string]any{
			{"id": "a1", "category": "A", "CTR": 1, "CR": 1},
			{"id": "a2", "category": "A", "CTR": 3, "CR": 2},
			{"id": "b1", "category": "B", "CTR": "", "CR": ""},
			{"id": "b2", "category": "B", "CTR": "n/a", "CR": ""},
		}
		m, records := resolveOptional(rows)
		n, err := normalize.New().Normalize(ctx, normalize.Input{Records: records, Specs: optional, Mapping: m})
		So(err, ShouldBeNil)

		Convey("Then its members are excluded and the other category is not", func() {
			b := group(n, "B")
			So(b.Err, ShouldBeNil)
			So(b.Active, ShouldBeEmpty)
			So(member(b, "b1").Excluded, ShouldBeTrue)
			So(member(b, "b2").Excluded, ShouldBeTrue)
			So(member(b, "b2").Issues, ShouldContain, model.Issue{Metric: "CTR", Kind: model.IssueNonNumeric, Value: "n/a"})
			So(member(group(n, "A"), "a1").Excluded, ShouldBeFalse)
		})
	})

	Convey("Given a category where only a zero-weight metric has values", t, func() {
		rows := []map[string]any{
			{"id": "a1", "category": "A", "CTR": 1, "CR": 1},
			{"id": "a2", "category": "A", "CTR": 3, "CR": 2},
			{"id": "b1", "category": "B", "CTR": "", "CR": 4},
			{"id": "b2", "category": "B", "CTR": "", "CR": 6},
		}
		m, records := resolveOptional(rows)
		n, err := normalize.New().Normalize(ctx, normalize.Input{Records: records, Specs: optional, Mapping: m})
		So(err, ShouldBeNil)

		Convey("Then its members are excluded", func() {
			b := group(n, "B")
			So(b.Active, ShouldResemble, []string{"CR"})
			So(member(b, "b1").Excluded, ShouldBeTrue)
			So(member(b, "b2").Excluded, ShouldBeTrue)
		})
	})
}
