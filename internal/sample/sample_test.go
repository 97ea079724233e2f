package sample_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/okian/trendradar/internal/adapters/ingest"
	"github.com/okian/trendradar/internal/config"
	"github.com/okian/trendradar/internal/domain/pipeline"
	"github.com/okian/trendradar/internal/sample"
	. "github.com/smartystreets/goconvey/convey"
)

func TestGenerate(t *testing.T) {
	Convey("Given the default sample configuration", t, func() {
		cfg := sample.DefaultConfig()

		Convey("When generating twice with the same seed", func() {
			a := sample.Generate(cfg)
			b := sample.Generate(cfg)

			Convey("Then the catalogs are identical", func() {
				So(a, ShouldHaveLength, len(sample.DefaultCategories)*cfg.ProductsPerCategory)
				So(a, ShouldResemble, b)
			})
		})

		Convey("When generating with another seed", func() {
			other := cfg
			other.Seed = 7

			Convey("Then the values differ", func() {
				So(sample.Generate(other), ShouldNotResemble, sample.Generate(cfg))
			})
		})

		Convey("When blanking and corrupting cells", func() {
			noisy := cfg
			noisy.MissingRate = 0.2
			noisy.NoiseRate = 0.1
			rows := sample.Generate(noisy)
			var blank, text int
			for _, row := range rows {
				switch row["CTR"] {
				case "":
					blank++
				case "n/a":
					text++
				}
			}

			Convey("Then some cells are missing or non-numeric", func() {
				So(blank, ShouldBeGreaterThan, 0)
				So(text, ShouldBeGreaterThan, 0)
			})
		})
	})
}

func TestWriteCSV(t *testing.T) {
	Convey("Given generated catalogs written as CSV", t, func() {
		for _, turkish := range []bool{false, true} {
			cfg := sample.DefaultConfig()
			cfg.Turkish = turkish
			cfg.ProductsPerCategory = 10
			rows := sample.Generate(cfg)

			var buf bytes.Buffer
			So(sample.WriteCSV(&buf, cfg, rows), ShouldBeNil)

			read, err := ingest.ReadTable(&buf)
			So(err, ShouldBeNil)
			So(read, ShouldHaveLength, len(rows))
			So(read[0][sample.Header(cfg)[0]], ShouldEqual, rows[0][sample.Header(cfg)[0]])

			pc, err := config.New().Pipeline()
			So(err, ShouldBeNil)
			out, err := pipeline.ResolveAndScore(context.Background(), read, pc)
			So(err, ShouldBeNil)
			So(out.Scored(), ShouldEqual, len(rows))
			So(out.Failures, ShouldBeEmpty)
			So(out.Dropped, ShouldBeEmpty)
		}
	})
}
