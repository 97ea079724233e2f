package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/okian/trendradar/internal/adapters/http/api"
	service "github.com/okian/trendradar/internal/app"
	"github.com/okian/trendradar/internal/domain/model"
	"github.com/okian/trendradar/internal/domain/pipeline"
	"github.com/okian/trendradar/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

const catalogCSV = "ID;Kategori;CTR;CR;Add To Card;Urun Adi\n" +
	"p1;shoes;0,10;0,01;0,2;Runner\n" +
	"p2;shoes;0,30;0,03;0,4;Trail\n" +
	"p3;bags;0,20;0,02;0,3;Tote\n" +
	"p4;bags;0,40;abc;0,1;Clutch\n" +
	"p5;bags;0,10;0,04;0,5;Duffel\n"

type rankingBody struct {
	RunID     string  `json:"run_id"`
	Threshold float64 `json:"threshold"`
	Total     int     `json:"total"`
	Trending  int     `json:"trending"`
	Excluded  int     `json:"excluded"`
	Results   []struct {
		Rank     int      `json:"rank"`
		ID       string   `json:"id"`
		Category string   `json:"category"`
		Score    *float64 `json:"score"`
		Trending bool     `json:"trending"`
		Excluded bool     `json:"excluded"`
		Issues   []model.Issue
	} `json:"results"`
}

type postBody struct {
	Run struct {
		ID         string   `json:"id"`
		Rows       int      `json:"rows"`
		Scored     int      `json:"scored"`
		Excluded   int      `json:"excluded"`
		NonNumeric []string `json:"non_numeric"`
	} `json:"run"`
	Ranking rankingBody `json:"ranking"`
}

type errorBody struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Column  string   `json:"column"`
	Columns []string `json:"columns"`
	Row     int      `json:"row"`
}

func newMux(opts ...api.Option) (*http.ServeMux, *service.Service) {
	svc := service.New(
		service.WithLogger(logger.Nop()),
		service.WithThreshold(0),
		service.WithPipeline(pipeline.Config{
			Metrics: []model.MetricSpec{
				{Name: "CTR", Required: true, Sign: model.Higher, Weight: 1},
				{Name: "CR", Required: true, Sign: model.Higher, Weight: 1},
				{Name: "STR", Required: true, Sign: model.Higher, Weight: 1},
			},
		}),
	)
	So(svc.Start(context.Background()), ShouldBeNil)
	mux := http.NewServeMux()
	api.NewServer(svc, svc, opts...).Register(mux)
	return mux, svc
}

func do(mux *http.ServeMux, method, target, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		mux, svc := newMux()
		defer svc.Stop()

		Convey("Then the health endpoint is accessible", func() {
			w := do(mux, http.MethodGet, "/healthz", "", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"ok"`)
		})

		Convey("Then the stats endpoint is accessible", func() {
			w := do(mux, http.MethodGet, "/stats", "", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"started":true`)
		})

		Convey("Then the metrics endpoint serves Prometheus text", func() {
			_ = do(mux, http.MethodGet, "/healthz", "", "")
			w := do(mux, http.MethodGet, "/metrics", "", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "trendradar_http_requests_total")
		})

		Convey("Then unknown methods and paths are not found", func() {
			So(do(mux, http.MethodDelete, "/runs", "", "").Code, ShouldEqual, http.StatusNotFound)
			So(do(mux, http.MethodPost, "/stats", "", "").Code, ShouldEqual, http.StatusNotFound)
			So(do(mux, http.MethodGet, "/runs/latest/other", "", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestRunsHandler(t *testing.T) {
	Convey("Given an API server", t, func() {
		mux, svc := newMux(api.WithMaxLimit(50))
		defer svc.Stop()

		Convey("When uploading a semicolon table", func() {
			w := do(mux, http.MethodPost, "/runs?source=catalog.csv&all=true", "text/csv", catalogCSV)
			So(w.Code, ShouldEqual, http.StatusCreated)
			var body postBody
			So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)

			Convey("Then the run is summarized", func() {
				So(body.Run.ID, ShouldNotBeBlank)
				So(w.Header().Get("Location"), ShouldEqual, "/runs/"+body.Run.ID)
				So(body.Run.Rows, ShouldEqual, 5)
				So(body.Run.Scored, ShouldEqual, 4)
				So(body.Run.Excluded, ShouldEqual, 1)
				So(body.Run.NonNumeric, ShouldHaveLength, 1)
			})

			Convey("And excluded records are listed last without a score", func() {
				results := body.Ranking.Results
				So(results, ShouldHaveLength, 5)
				last := results[len(results)-1]
				So(last.ID, ShouldEqual, "p4")
				So(last.Excluded, ShouldBeTrue)
				So(last.Score, ShouldBeNil)
				So(last.Issues, ShouldNotBeEmpty)
				So(results[0].Score, ShouldNotBeNil)
				So(results[0].Rank, ShouldEqual, 1)
			})

			Convey("And the run can be reclassified by id", func() {
				w := do(mux, http.MethodGet, "/runs/"+body.Run.ID+"/trending?threshold=0.5&limit=10", "", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				var ranking rankingBody
				So(json.Unmarshal(w.Body.Bytes(), &ranking), ShouldBeNil)
				So(ranking.Threshold, ShouldEqual, 0.5)
				So(ranking.Results, ShouldHaveLength, ranking.Trending)
				for _, r := range ranking.Results {
					So(r.Trending, ShouldBeTrue)
					So(*r.Score, ShouldBeGreaterThanOrEqualTo, 0.5)
				}
			})

			Convey("And the latest run can be filtered by category", func() {
				w := do(mux, http.MethodGet, "/runs/latest/trending?category=shoes&all=1", "", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				var ranking rankingBody
				So(json.Unmarshal(w.Body.Bytes(), &ranking), ShouldBeNil)
				So(ranking.RunID, ShouldEqual, body.Run.ID)
				So(ranking.Total, ShouldEqual, 2)
				So(ranking.Results[0].ID, ShouldEqual, "p2")
			})

			Convey("And the run summary is available", func() {
				w := do(mux, http.MethodGet, "/runs/"+body.Run.ID, "", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, body.Run.ID)
			})
		})

		Convey("When uploading JSON rows without a content type", func() {
			payload := `{"rows":[{"id":1,"category":"c","CTR":1,"CR":2,"STR":3},{"id":2,"category":"c","CTR":3,"CR":4,"STR":5}]}`
			w := do(mux, http.MethodPost, "/runs", "", payload)

			Convey("Then the body is sniffed as JSON", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				var body postBody
				So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
				So(body.Run.Scored, ShouldEqual, 2)
				So(body.Ranking.Results, ShouldHaveLength, 1)
				So(body.Ranking.Results[0].ID, ShouldEqual, "2")
			})
		})

		Convey("When a required column is missing", func() {
			w := do(mux, http.MethodPost, "/runs", "text/csv", "id,category,CTR,CR\na,c,1,2\n")

			Convey("Then the response is 422 naming the column", func() {
				So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
				var e errorBody
				So(json.Unmarshal(w.Body.Bytes(), &e), ShouldBeNil)
				So(e.Code, ShouldEqual, "missing_column")
				So(e.Column, ShouldEqual, "STR")
			})
		})

		Convey("When two columns map to one metric", func() {
			w := do(mux, http.MethodPost, "/runs", "text/csv", "id,category,CTR,click rate,CR,STR\na,c,1,1,2,3\n")

			Convey("Then the response is 422 naming both columns", func() {
				So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
				var e errorBody
				So(json.Unmarshal(w.Body.Bytes(), &e), ShouldBeNil)
				So(e.Code, ShouldEqual, "ambiguous_column")
				So(e.Columns, ShouldResemble, []string{"CTR", "click rate"})
			})
		})

		Convey("When an identifier repeats", func() {
			w := do(mux, http.MethodPost, "/runs", "text/csv", "id,category,CTR,CR,STR\na,c,1,1,1\na,c,2,2,2\n")

			Convey("Then the response is 422 naming the row", func() {
				So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
				var e errorBody
				So(json.Unmarshal(w.Body.Bytes(), &e), ShouldBeNil)
				So(e.Code, ShouldEqual, "invalid_record")
				So(e.Row, ShouldEqual, 2)
			})
		})

		Convey("When the body is empty or malformed", func() {
			So(do(mux, http.MethodPost, "/runs", "", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodPost, "/runs", "application/json", `{"rows":`).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When query parameters are invalid", func() {
			So(do(mux, http.MethodPost, "/runs?limit=0", "text/csv", catalogCSV).Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodGet, "/runs/latest/trending?limit=51", "", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When no run exists", func() {
			w := do(mux, http.MethodGet, "/runs/latest/trending", "", "")

			Convey("Then the response is 404", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
				So(w.Body.String(), ShouldContainSubstring, "not_found")
			})
		})
	})

	Convey("Given a small upload limit and a capturing logger", t, func() {
		var logs bytes.Buffer
		So(logger.Init(logger.WithWriter(&logs)), ShouldBeNil)
		mux, svc := newMux(api.WithMaxUploadBytes(16), api.WithLogger(logger.Get()))
		defer svc.Stop()

		Convey("When the upload is larger", func() {
			w := do(mux, http.MethodPost, "/runs?source=big.csv", "text/csv", catalogCSV)

			Convey("Then it is rejected as too large and logged", func() {
				So(w.Code, ShouldEqual, http.StatusRequestEntityTooLarge)
				var e errorBody
				So(json.Unmarshal(w.Body.Bytes(), &e), ShouldBeNil)
				So(e.Code, ShouldEqual, "too_large")
				So(e.Message, ShouldContainSubstring, api.ErrTooLarge.Error())
				So(logs.String(), ShouldContainSubstring, "upload rejected")
				So(logs.String(), ShouldContainSubstring, "big.csv")
			})
		})
	})

	Convey("Given cached runs", t, func() {
		mux, svc := newMux()
		defer svc.Stop()

		Convey("When none has been scored", func() {
			w := do(mux, http.MethodGet, "/runs", "", "")

			Convey("Then the list is empty", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"runs":[]`)
			})
		})

		Convey("When two uploads were scored", func() {
			first := do(mux, http.MethodPost, "/runs?source=first", "text/csv", catalogCSV)
			second := do(mux, http.MethodPost, "/runs?source=second", "text/csv", catalogCSV)
			So(first.Code, ShouldEqual, http.StatusCreated)
			So(second.Code, ShouldEqual, http.StatusCreated)

			w := do(mux, http.MethodGet, "/runs", "", "")
			var body struct {
				Runs []struct {
					ID     string `json:"id"`
					Source string `json:"source"`
				} `json:"runs"`
			}
			So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)

			Convey("Then they are listed newest first", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(body.Runs, ShouldHaveLength, 2)
				So(body.Runs[0].Source, ShouldEqual, "second")
				So(body.Runs[1].Source, ShouldEqual, "first")
			})
		})
	})
}
