package domain

import "fmt"

// Grade is the loyalty tier derived from completed reservations.
type Grade string

const (
	GradeBasic     Grade = "BASIC"
	GradeElite     Grade = "ELITE"
	GradeElitePlus Grade = "ELITE_PLUS"
)

const (
	eliteThreshold     = 3
	elitePlusThreshold = 7
)

// GradeFor derives the grade for a lifetime completed-reservation count.
func GradeFor(count int) Grade {
	switch {
	case count >= elitePlusThreshold:
		return GradeElitePlus
	case count >= eliteThreshold:
		return GradeElite
	default:
		return GradeBasic
	}
}

// DisplayName returns the customer-facing label of g.
func DisplayName(g Grade) string {
	switch g {
	case GradeElite:
		return "Elite"
	case GradeElitePlus:
		return "Elite+"
	default:
		return "Basic"
	}
}

// DiscountRate returns the booking discount fraction granted to g.
func DiscountRate(g Grade) float64 {
	return float64(discountBasisPoints(g)) / 10000
}

func discountBasisPoints(g Grade) int64 {
	switch g {
	case GradeElite:
		return 300
	case GradeElitePlus:
		return 500
	default:
		return 0
	}
}

// MaxReviewPoints caps the points a single review can earn at grade g.
func MaxReviewPoints(g Grade) int64 {
	switch g {
	case GradeElite:
		return 3000
	case GradeElitePlus:
		return 5000
	default:
		return 2000
	}
}

// CalculateDiscount returns the discount for price at grade g, rounded down.
func CalculateDiscount(g Grade, price int64) (int64, error) {
	if price < 0 {
		return 0, fmt.Errorf("%w: negative price %d", ErrInvalidInput, price)
	}
	return price * discountBasisPoints(g) / 10000, nil
}

// FinalPrice returns price minus the grade discount.
func FinalPrice(g Grade, price int64) (int64, error) {
	d, err := CalculateDiscount(g, price)
	if err != nil {
		return 0, err
	}
	return price - d, nil
}

// NextGrade returns the grade above g, or g itself at the top tier.
func NextGrade(g Grade) Grade {
	switch g {
	case GradeBasic:
		return GradeElite
	default:
		return GradeElitePlus
	}
}

// ReservationsUntilNextGrade returns how many more completed reservations
// reach the next grade; zero at the top tier.
func ReservationsUntilNextGrade(count int) int {
	switch GradeFor(count) {
	case GradeBasic:
		return eliteThreshold - count
	case GradeElite:
		return elitePlusThreshold - count
	default:
		return 0
	}
}

// IsEliteOrHigher reports whether g is ELITE or ELITE_PLUS.
func IsEliteOrHigher(g Grade) bool {
	return g == GradeElite || g == GradeElitePlus
}
