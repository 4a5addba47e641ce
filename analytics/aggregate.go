package analytics

import (
	"math"
	"time"

	"github.com/saiset-co/sai-shop/types"
)

// Timestamped is any record that knows when it was created.
type Timestamped interface {
	Created() time.Time
}

// BucketByMonth spreads records over length calendar months ending with the
// month of now. Index length-1 is the current month, index 0 the oldest. A
// record adds selector(record) to its bucket, or 1 when selector is nil.
// Records older than length months and records dated after now's month are
// skipped.
func BucketByMonth[T Timestamped](records []T, length int, now time.Time, selector func(T) float64) []float64 {
	if length <= 0 {
		return []float64{}
	}

	buckets := make([]float64, length)
	for _, record := range records {
		created := record.Created().In(now.Location())

		monthDiff := (now.Year()-created.Year())*12 + int(now.Month()) - int(created.Month())
		if monthDiff < 0 || monthDiff >= length {
			continue
		}

		value := 1.0
		if selector != nil {
			value = selector(record)
		}
		buckets[length-1-monthDiff] += value
	}

	return buckets
}

// PercentageChange is current as a percentage of previous, rounded half up.
// A zero previous yields current*100.
func PercentageChange(current, previous float64) float64 {
	if previous == 0 {
		return current * 100
	}
	return roundHalfUp(current / previous * 100)
}

// AverageRating rounds the mean rating half up. No reviews yield a zero rating.
func AverageRating(reviews []types.Review) types.ReviewSummary {
	if len(reviews) == 0 {
		return types.ReviewSummary{}
	}

	sum := 0
	for _, review := range reviews {
		sum += review.Rating
	}

	return types.ReviewSummary{
		Ratings:      int(roundHalfUp(float64(sum) / float64(len(reviews)))),
		NumOfReviews: len(reviews),
	}
}

// CategoryDistribution returns one {category: percent} entry per category, in
// input order. Missing counts and a zero total yield 0.
func CategoryDistribution(categories []string, counts []int64, total int64) []types.CategoryShare {
	shares := make([]types.CategoryShare, 0, len(categories))

	for i, category := range categories {
		percent := 0.0
		if total > 0 && i < len(counts) && counts[i] > 0 {
			percent = roundHalfUp(float64(counts[i]) / float64(total) * 100)
		}
		shares = append(shares, types.CategoryShare{category: percent})
	}

	return shares
}

func roundHalfUp(value float64) float64 {
	return math.Floor(value + 0.5)
}
