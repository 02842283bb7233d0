package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then collectors are registered under the podium namespace", func() {
				So(manager, ShouldNotBeNil)
				manager.submissions.WithLabelValues(OutcomeAccepted).Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				names := make(map[string]bool, len(families))
				for _, f := range families {
					names[f.GetName()] = true
				}
				So(names["podium_leaderboard_submissions_total"], ShouldBeTrue)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("board"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then the options are applied", func() {
				So(manager.namespace, ShouldEqual, "test")
				So(manager.subsystem, ShouldEqual, "board")
				So(manager.histogramBuckets, ShouldResemble, []float64{0.1, 0.5, 1.0})
				So(manager.constLabels["env"], ShouldEqual, "test")
			})
		})

		Convey("When empty options are passed", func() {
			manager := NewManager(
				WithNamespace(""),
				WithSubsystem(""),
				WithHistogramBuckets(nil),
				WithPrometheusRegistry(prometheus.NewRegistry()),
			)

			Convey("Then defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "podium")
				So(manager.subsystem, ShouldEqual, "leaderboard")
				So(manager.histogramBuckets, ShouldResemble, prometheus.DefBuckets)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording submissions", func() {
			before := testutil.ToFloat64(globalManager.submissions.WithLabelValues(OutcomePartial))
			RecordSubmission(OutcomePartial)
			RecordSubmission(OutcomePartial)

			Convey("Then the outcome counter grows", func() {
				So(testutil.ToFloat64(globalManager.submissions.WithLabelValues(OutcomePartial)), ShouldEqual, before+2)
			})
		})

		Convey("When recording board updates", func() {
			before := testutil.ToFloat64(globalManager.boardUpdateErrors.WithLabelValues("daily"))
			RecordBoardUpdate("daily")
			RecordBoardUpdateError("daily")

			Convey("Then the per-kind error counter grows", func() {
				So(testutil.ToFloat64(globalManager.boardUpdateErrors.WithLabelValues("daily")), ShouldEqual, before+1)
			})
		})

		Convey("When updating gauges", func() {
			UpdateStoreBoards(7)
			UpdateStoreEntries(1200)
			UpdateSyncDivergentCategories(2)
			UpdateQueueCapacity(64)

			Convey("Then the gauges hold the last value", func() {
				So(testutil.ToFloat64(globalManager.storeBoards), ShouldEqual, 7)
				So(testutil.ToFloat64(globalManager.storeEntries), ShouldEqual, 1200)
				So(testutil.ToFloat64(globalManager.syncDivergent), ShouldEqual, 2)
				So(testutil.ToFloat64(globalManager.queueCapacity), ShouldEqual, 64)
			})
		})

		Convey("When recording the remaining collectors", func() {
			So(func() {
				RecordSubmitLatency(3.5)
				RecordDuplicateSubmission()
				RecordDecodeSkipped()
				RecordStoreLatency("upsert", 0.2)
				RecordBoardExpired()
				RecordLedgerLatency("append", 1.1)
				RecordLedgerError("append")
				RecordCatalogHit()
				RecordCatalogMiss()
				RecordSyncRun(SyncRebuilt)
				RecordSyncDuration(120)
				UpdateSyncLastUnix(1_700_000_000)
				RecordEventPublished("score.submitted")
				RecordEventPublishError("score.submitted")
				UpdateQueueSize(3)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError()
				RecordQueueProcessingLatency(0.4)
				UpdateWorkerActiveCount(4)
				RecordWorkerProcessingLatency(2)
				RecordWorkerError()
				RecordHTTPRequest("/scores", "POST", "201")
				RecordHTTPRequestDuration("/scores", "POST", "201", 4)
				RecordErrorByComponent("ledger", "unavailable")
				RecordErrorByEndpoint("/scores", "POST", "invalid_score")
				UpdateSystemMemoryUsage(1 << 20)
				UpdateSystemGoroutineCount(12)
				RecordSystemGCPauseTime(0.3)
			}, ShouldNotPanic)
		})

		Convey("When gathering the shared registry", func() {
			families, err := GetRegistry().Gather()

			Convey("Then it succeeds", func() {
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)
			})
		})
	})
}
