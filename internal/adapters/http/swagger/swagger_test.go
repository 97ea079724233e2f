package swagger_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/okian/trendradar/internal/adapters/http/swagger"
	. "github.com/smartystreets/goconvey/convey"
	"gopkg.in/yaml.v3"
)

func TestRegister(t *testing.T) {
	Convey("Given a mux with the OpenAPI route", t, func() {
		mux := http.NewServeMux()
		swagger.Register(mux)

		Convey("When requesting the document", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil))

			Convey("Then it is served as YAML describing the run routes", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Content-Type"), ShouldContainSubstring, "yaml")

				var doc struct {
					OpenAPI string         `yaml:"openapi"`
					Paths   map[string]any `yaml:"paths"`
				}
				So(yaml.Unmarshal(w.Body.Bytes(), &doc), ShouldBeNil)
				So(doc.OpenAPI, ShouldStartWith, "3.")
				So(doc.Paths, ShouldContainKey, "/runs")
				So(doc.Paths, ShouldContainKey, "/runs/{id}/trending")
			})
		})

		Convey("When registering on a nil mux", func() {
			Convey("Then it panics", func() {
				So(func() { swagger.Register(nil) }, ShouldPanic)
			})
		})
	})
}
