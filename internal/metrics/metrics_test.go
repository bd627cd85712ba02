package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

// value reads a counter back from the registry. Label values are given in
// label-name order, which is how Gather reports them.
func value(m *Manager, name string, labelValues ...string) float64 {
	families, err := m.Registry().Gather()
	if err != nil {
		return -1
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			labels := metric.GetLabel()
			if len(labels) != len(labelValues) {
				continue
			}
			match := true
			for i, l := range labels {
				if l.GetValue() != labelValues[i] {
					match = false
					break
				}
			}
			if match {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options", func() {
			manager := NewManager()

			Convey("Then it owns a registry with runtime collectors", func() {
				So(manager, ShouldNotBeNil)
				So(manager.Registry(), ShouldNotBeNil)

				families, err := manager.Registry().Gather()
				So(err, ShouldBeNil)

				found := false
				for _, f := range families {
					if f.GetName() == "go_goroutines" {
						found = true
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When creating with a custom registry and namespace", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithRegistry(registry),
				WithNamespace("wallet_test"),
				WithHistogramBuckets([]float64{1, 10, 100}),
			)

			Convey("Then metrics are registered under that namespace", func() {
				So(manager.Registry(), ShouldEqual, registry)

				manager.RecordCardAdded()
				families, err := registry.Gather()
				So(err, ShouldBeNil)

				names := []string{}
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(names, ShouldContain, "wallet_test_catalog_cards_added_total")
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given a metrics manager", t, func() {
		manager := NewManager(WithRegistry(prometheus.NewRegistry()))

		Convey("When recording recommendations", func() {
			manager.RecordRecommendation(false, nil, 3*time.Millisecond, 3)
			manager.RecordRecommendation(true, nil, time.Millisecond, 3)
			manager.RecordRecommendation(true, nil, time.Millisecond, 3)
			manager.RecordRecommendation(false, errors.New("boom"), 0, 0)

			Convey("Then they are split by source and outcome", func() {
				So(value(manager, "smartwallet_recommend_requests_total", "ok", "computed"), ShouldEqual, 1)
				So(value(manager, "smartwallet_recommend_requests_total", "ok", "cached"), ShouldEqual, 2)
				So(value(manager, "smartwallet_recommend_requests_total", "error", "computed"), ShouldEqual, 1)
			})
		})

		Convey("When recording catalog and worker events", func() {
			manager.RecordCatalogLoad(true)
			manager.RecordCatalogLoad(false)
			manager.RecordCatalogLoad(true)
			manager.RecordWorkerJob("completed")
			manager.RecordAdvisoryTriggered("large-purchase")

			Convey("Then each counter moves", func() {
				So(value(manager, "smartwallet_catalog_loads_total", "hit"), ShouldEqual, 2)
				So(value(manager, "smartwallet_catalog_loads_total", "miss"), ShouldEqual, 1)
				So(value(manager, "smartwallet_worker_jobs_total", "completed"), ShouldEqual, 1)
				So(value(manager, "smartwallet_advisory_triggered_total", "large-purchase"), ShouldEqual, 1)
			})
		})

		Convey("When recording purges", func() {
			manager.RecordPurged(5)
			manager.RecordPurged(0)
			manager.RecordPurged(-1)

			Convey("Then only positive counts are added", func() {
				So(value(manager, "smartwallet_retention_records_purged_total"), ShouldEqual, 5)
			})
		})

		Convey("When recording HTTP traffic", func() {
			manager.RecordHTTPRequest("/api/cards", "GET", 200, 2*time.Millisecond)
			manager.RecordHTTPRequest("/api/cards", "GET", 200, 2*time.Millisecond)
			manager.RecordRateLimited()

			Convey("Then requests are counted by route and status", func() {
				So(value(manager, "smartwallet_http_requests_total", "GET", "/api/cards", "200"), ShouldEqual, 2)
				So(value(manager, "smartwallet_http_rate_limited_total"), ShouldEqual, 1)
			})
		})
	})
}

func TestNilManager(t *testing.T) {
	Convey("Given a nil metrics manager", t, func() {
		var manager *Manager

		Convey("Then recording is a no-op", func() {
			So(func() {
				manager.RecordRecommendation(false, nil, time.Millisecond, 1)
				manager.RecordAdvisoryTriggered("x")
				manager.RecordCatalogLoad(true)
				manager.RecordCardAdded()
				manager.RecordWorkerJob("failed")
				manager.RecordPurged(3)
				manager.RecordHTTPRequest("/", "GET", 200, time.Millisecond)
				manager.RecordRateLimited()
			}, ShouldNotPanic)
			So(manager.Registry(), ShouldBeNil)
		})

		Convey("Then the handler answers 404", func() {
			rec := httptest.NewRecorder()
			manager.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
			So(rec.Code, ShouldEqual, 404)
		})
	})
}

func TestHandler(t *testing.T) {
	Convey("Given a manager with recorded metrics", t, func() {
		manager := NewManager(WithRegistry(prometheus.NewRegistry()))
		manager.RecordCardAdded()

		Convey("When scraping the handler", func() {
			rec := httptest.NewRecorder()
			manager.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
			body, _ := io.ReadAll(rec.Body)

			Convey("Then the exposition contains the metric", func() {
				So(rec.Code, ShouldEqual, 200)
				So(strings.Contains(string(body), "smartwallet_catalog_cards_added_total 1"), ShouldBeTrue)
			})
		})
	})
}
