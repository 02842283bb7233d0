package model

import (
	"errors"
	"math"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestMemberEncoding(t *testing.T) {
	Convey("Given a member", t, func() {
		m := Member{UserID: "u-1", DisplayName: "Ada \"the\" Great"}

		Convey("When it is encoded and decoded", func() {
			got, err := DecodeMember(m.Encode())

			Convey("Then the pair survives unchanged", func() {
				So(err, ShouldBeNil)
				So(got, ShouldResemble, m)
			})
		})

		Convey("When the display name changes", func() {
			renamed := Member{UserID: "u-1", DisplayName: "Ada"}

			Convey("Then the encoded member differs", func() {
				So(renamed.Encode(), ShouldNotEqual, m.Encode())
			})
		})
	})

	Convey("Given undecodable members", t, func() {
		for _, raw := range []string{"", "not-json", `{"displayName":"x"}`, `[1,2]`} {
			_, err := DecodeMember(raw)
			So(errors.Is(err, ErrInvalidMember), ShouldBeTrue)
		}
	})
}

func TestCategoryAccepts(t *testing.T) {
	Convey("Given a bounded category", t, func() {
		maxScore := int64(100)
		c := Category{ID: "chess", MaxScore: &maxScore, Active: true}

		So(c.Accepts(0), ShouldBeTrue)
		So(c.Accepts(100), ShouldBeTrue)
		So(c.Accepts(101), ShouldBeFalse)
		So(c.Accepts(-1), ShouldBeFalse)
	})

	Convey("Given an unbounded category", t, func() {
		c := Category{ID: "darts"}

		So(c.Accepts(1<<62), ShouldBeTrue)
	})
}

func TestAddScores(t *testing.T) {
	Convey("Given accumulated scores", t, func() {
		So(AddScores(2, 3), ShouldEqual, 5)
		So(AddScores(0, 0), ShouldEqual, 0)

		Convey("Then totals past the int64 range are capped", func() {
			So(AddScores(math.MaxInt64, 1), ShouldEqual, int64(math.MaxInt64))
			So(AddScores(math.MaxInt64-1, 1), ShouldEqual, int64(math.MaxInt64))
			So(AddScores(math.MaxInt64, math.MaxInt64), ShouldEqual, int64(math.MaxInt64))
			So(AddScores(1<<62, 1<<62), ShouldEqual, int64(math.MaxInt64))
		})
	})
}
