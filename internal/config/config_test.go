package config_test

import (
	"errors"
	"runtime"
	"testing"

	"github.com/okian/podium/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with defaults", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.LedgerDriver, convey.ShouldEqual, config.DriverMemory)
			convey.So(cfg.MaxLeaderboardLimit, convey.ShouldEqual, 100)
			convey.So(cfg.RebuildWorkers, convey.ShouldEqual, runtime.NumCPU()*2)
			convey.So(cfg.DedupeSize, convey.ShouldEqual, 100_000)
			convey.So(cfg.SyncOnStart, convey.ShouldBeTrue)
			convey.So(cfg.StoreTimeout().Milliseconds(), convey.ShouldEqual, 250)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a default config", t, func() {
		cfg := config.New()

		convey.Convey("When the postgres driver has no database url", func() {
			cfg.LedgerDriver = config.DriverPostgres
			err := cfg.Validate()

			convey.Convey("Then validation fails with ErrInvalidConfig", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "database_url")
			})
		})

		convey.Convey("When the driver is unknown", func() {
			cfg.LedgerDriver = "redis"

			convey.Convey("Then validation fails", func() {
				convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When categories repeat an id", func() {
			cfg.Categories = []config.CategorySeed{{ID: "chess", Active: true}, {ID: "chess"}}

			convey.Convey("Then validation fails", func() {
				convey.So(cfg.Validate(), convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When categories repeat a name", func() {
			cfg.Categories = []config.CategorySeed{{ID: "chess", Name: "Chess"}, {ID: "chess-960", Name: "Chess"}}

			convey.Convey("Then validation fails", func() {
				convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a name collides with another category's default name", func() {
			cfg.Categories = []config.CategorySeed{{ID: "chess"}, {ID: "classic", Name: "chess"}}

			convey.Convey("Then validation fails", func() {
				convey.So(cfg.Validate(), convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When a category has a negative max score", func() {
			neg := int64(-1)
			cfg.Categories = []config.CategorySeed{{ID: "chess", MaxScore: &neg}}

			convey.Convey("Then validation fails", func() {
				convey.So(cfg.Validate(), convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When the limit is zero", func() {
			cfg.MaxLeaderboardLimit = 0

			convey.Convey("Then validation fails", func() {
				convey.So(cfg.Validate(), convey.ShouldNotBeNil)
			})
		})
	})
}
