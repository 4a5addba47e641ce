package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/saiset-co/sai-shop/types"
)

var now = time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)

func orderAt(t time.Time, total float64) types.Order {
	return types.Order{
		Document: types.Document{CreatedAt: t.UnixMilli()},
		Total:    total,
	}
}

func TestBucketByMonthPlacement(t *testing.T) {
	orders := []types.Order{
		orderAt(now, 10),
		orderAt(time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), 5),
		orderAt(time.Date(2024, time.February, 29, 23, 59, 0, 0, time.UTC), 7),
		orderAt(time.Date(2023, time.October, 1, 0, 0, 0, 0, time.UTC), 3),
		orderAt(time.Date(2023, time.September, 30, 0, 0, 0, 0, time.UTC), 100),
	}

	assert.Equal(t, []float64{1, 0, 0, 0, 1, 2}, BucketByMonth(orders, 6, now, nil))
	assert.Equal(t, []float64{3, 0, 0, 0, 7, 15}, BucketByMonth(orders, 6, now, orderTotal))
}

func TestBucketByMonthBoundaries(t *testing.T) {
	fiveBack := orderAt(time.Date(2023, time.October, 15, 0, 0, 0, 0, time.UTC), 1)
	sixBack := orderAt(time.Date(2023, time.September, 15, 0, 0, 0, 0, time.UTC), 1)

	assert.Equal(t, []float64{1, 0, 0, 0, 0, 0}, BucketByMonth([]types.Order{fiveBack}, 6, now, nil))
	assert.Equal(t, []float64{0, 0, 0, 0, 0, 0}, BucketByMonth([]types.Order{sixBack}, 6, now, nil))
}

func TestBucketByMonthCurrentMonthGoesLast(t *testing.T) {
	for _, length := range []int{1, 6, 12} {
		buckets := BucketByMonth([]types.Order{orderAt(now, 1)}, length, now, nil)
		assert.Len(t, buckets, length)
		assert.Equal(t, 1.0, buckets[length-1])
	}
}

func TestBucketByMonthDropsFutureRecords(t *testing.T) {
	future := orderAt(time.Date(2024, time.April, 2, 0, 0, 0, 0, time.UTC), 1)
	assert.Equal(t, []float64{0, 0, 0}, BucketByMonth([]types.Order{future}, 3, now, nil))
}

func TestBucketByMonthAcrossYearBoundary(t *testing.T) {
	january := time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC)
	december := orderAt(time.Date(2023, time.December, 31, 0, 0, 0, 0, time.UTC), 1)

	assert.Equal(t, []float64{1, 0}, BucketByMonth([]types.Order{december}, 2, january, nil))
}

func TestBucketByMonthEmptyAndZeroLength(t *testing.T) {
	assert.Equal(t, []float64{0, 0}, BucketByMonth([]types.Order(nil), 2, now, nil))
	assert.Empty(t, BucketByMonth([]types.Order{orderAt(now, 1)}, 0, now, nil))
}

func TestPercentageChange(t *testing.T) {
	tests := []struct {
		current, previous, want float64
	}{
		{0, 0, 0},
		{50, 0, 5000},
		{50, 100, 50},
		{150, 100, 150},
		{1, 3, 33},
		{2, 3, 67},
		{1, 8, 13},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, PercentageChange(tt.current, tt.previous), "%v/%v", tt.current, tt.previous)
	}
}

func TestAverageRating(t *testing.T) {
	assert.Equal(t, types.ReviewSummary{}, AverageRating(nil))

	reviews := []types.Review{{Rating: 4}, {Rating: 5}}
	assert.Equal(t, types.ReviewSummary{Ratings: 5, NumOfReviews: 2}, AverageRating(reviews))

	reviews = []types.Review{{Rating: 1}, {Rating: 2}, {Rating: 2}}
	assert.Equal(t, types.ReviewSummary{Ratings: 2, NumOfReviews: 3}, AverageRating(reviews))
}

func TestCategoryDistribution(t *testing.T) {
	shares := CategoryDistribution([]string{"laptop", "mobile", "camera"}, []int64{2, 1, 0}, 3)

	assert.Equal(t, []types.CategoryShare{
		{"laptop": 67},
		{"mobile": 33},
		{"camera": 0},
	}, shares)

	assert.Equal(t, []types.CategoryShare{{"laptop": 0}}, CategoryDistribution([]string{"laptop"}, []int64{4}, 0))
	assert.Equal(t, []types.CategoryShare{{"laptop": 0}}, CategoryDistribution([]string{"laptop"}, nil, 4))
}

func TestRevenueBreakdown(t *testing.T) {
	orders := []types.Order{
		{Subtotal: 1000, Discount: 50, ShippingCharges: 20, Tax: 180},
		{Subtotal: 500, Discount: 0, ShippingCharges: 0, Tax: 90},
	}

	got := RevenueBreakdown(orders)
	assert.Equal(t, types.RevenueDistribution{
		NetMargin:      1500 - (50 + 20 + 270 + 450),
		Discount:       50,
		ProductionCost: 20,
		Burnt:          270,
		MarketingCost:  450,
	}, got)
}

func TestAgeDistribution(t *testing.T) {
	users := []types.User{
		{DOB: "2010-01-01"},
		{DOB: "2004-03-16"},
		{DOB: "2004-03-15"},
		{DOB: "1984-03-16"},
		{DOB: "1970-01-01"},
	}

	assert.Equal(t, types.AgeGroups{Teen: 2, Adult: 2, Old: 1}, AgeDistribution(users, now))
}

func TestMonthStart(t *testing.T) {
	assert.Equal(t, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), MonthStart(now, 0))
	assert.Equal(t, time.Date(2023, time.October, 1, 0, 0, 0, 0, time.UTC), MonthStart(now, -5))
	assert.Equal(t, time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC), MonthStart(now, 1))
}
