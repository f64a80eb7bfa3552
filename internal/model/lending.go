package model

import (
	"fmt"
	"math"
)

// LendingStatus описывает вариант состояния выдачи вещи.
type LendingStatus string

const (
	LendingAvailable LendingStatus = "available"
	LendingUnlisted  LendingStatus = "unlisted"
	LendingBorrowed  LendingStatus = "borrowed"
)

// Lending описывает состояние выдачи вещи: свободна, снята владельцем или выдана заёмщику.
// Заёмщик существует только у варианта LendingBorrowed. Нулевое значение соответствует свободной вещи.
type Lending struct {
	status     LendingStatus
	borrowerID string
}

// Available возвращает состояние свободной вещи.
func Available() Lending {
	return Lending{status: LendingAvailable}
}

// Unlisted возвращает состояние вещи, снятой владельцем с выдачи.
func Unlisted() Lending {
	return Lending{status: LendingUnlisted}
}

// BorrowedBy возвращает состояние вещи, выданной пользователю userID.
func BorrowedBy(userID string) Lending {
	return Lending{status: LendingBorrowed, borrowerID: userID}
}

// ParseLending восстанавливает состояние из сохранённой пары статус/заёмщик.
func ParseLending(status LendingStatus, borrowerID string) (Lending, error) {
	switch status {
	case LendingAvailable, LendingUnlisted:
		if borrowerID != "" {
			return Lending{}, fmt.Errorf("lending status %q must not have a borrower", status)
		}
		return Lending{status: status}, nil
	case LendingBorrowed:
		if borrowerID == "" {
			return Lending{}, fmt.Errorf("lending status %q requires a borrower", status)
		}
		return BorrowedBy(borrowerID), nil
	default:
		return Lending{}, fmt.Errorf("unknown lending status %q", status)
	}
}

// Status возвращает вариант состояния.
func (l Lending) Status() LendingStatus {
	if l.status == "" {
		return LendingAvailable
	}
	return l.status
}

// IsAvailable сообщает, принимает ли вещь новые заявки.
func (l Lending) IsAvailable() bool {
	return l.Status() == LendingAvailable
}

// Borrower возвращает текущего заёмщика.
func (l Lending) Borrower() (string, bool) {
	if l.status != LendingBorrowed {
		return "", false
	}
	return l.borrowerID, true
}

const earthRadiusKm = 6371.0

// DistanceKm возвращает расстояние по большому кругу до точки (lat, lng) в километрах.
func (l Location) DistanceKm(lat, lng float64) float64 {
	rad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := rad(lat - l.Latitude)
	dLng := rad(lng - l.Longitude)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(l.Latitude))*math.Cos(rad(lat))*math.Sin(dLng/2)*math.Sin(dLng/2)

	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
