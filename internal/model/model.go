// Package model содержит доменные сущности сервиса обмена вещами.
package model

import "time"

// Condition описывает состояние вещи, указанное владельцем.
type Condition string

const (
	ConditionExcellent Condition = "excellent"
	ConditionGood      Condition = "good"
	ConditionFair      Condition = "fair"
)

// Location содержит координаты и адрес, где можно забрать вещь.
type Location struct {
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Address   string  `json:"address,omitempty" validate:"max=300"`
}

// Item описывает вещь, которую владелец предлагает одолжить.
type Item struct {
	ID          string
	OwnerID     string
	Title       string
	Description string
	Category    string
	Images      []string
	Location    *Location
	Condition   Condition
	Lending     Lending
	Requests    []BorrowRequest
	History     []BorrowHistoryEntry
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Available сообщает, принимает ли вещь новые заявки.
func (it *Item) Available() bool {
	return it.Lending.IsAvailable()
}

// CurrentBorrower возвращает текущего заёмщика, если вещь выдана.
func (it *Item) CurrentBorrower() (string, bool) {
	return it.Lending.Borrower()
}

// RequestStatus описывает статус заявки на заём.
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusApproved RequestStatus = "approved"
	RequestStatusRejected RequestStatus = "rejected"
)

// Active сообщает, удерживает ли заявка право на вещь.
func (s RequestStatus) Active() bool {
	return s == RequestStatusPending || s == RequestStatusApproved
}

// BorrowRequest описывает заявку пользователя на заём вещи.
type BorrowRequest struct {
	ID          string        `json:"id"`
	RequesterID string        `json:"userId"`
	Message     string        `json:"message,omitempty"`
	RequestDate time.Time     `json:"requestDate"`
	Status      RequestStatus `json:"status"`
	DecidedAt   *time.Time    `json:"decidedAt,omitempty"`
}

// BorrowHistoryEntry фиксирует завершённый заём.
type BorrowHistoryEntry struct {
	UserID     string    `json:"userId"`
	BorrowDate time.Time `json:"borrowDate"`
	ReturnDate time.Time `json:"returnDate"`
	Rating     *int      `json:"rating,omitempty"`
	Review     string    `json:"review,omitempty"`
}

// PendingRequest описывает заявку на рассмотрении вместе с данными вещи.
type PendingRequest struct {
	ItemID      string    `json:"itemId"`
	ItemTitle   string    `json:"itemTitle"`
	RequestID   string    `json:"requestId"`
	RequesterID string    `json:"requestUser"`
	Message     string    `json:"message,omitempty"`
	RequestDate time.Time `json:"requestDate"`
}

// TransactionType описывает тип начисления эко-баллов.
type TransactionType string

const (
	TransactionSharingReward   TransactionType = "sharing_reward"
	TransactionBorrowingReward TransactionType = "borrowing_reward"
)

// TransactionStatus описывает статус записи в журнале начислений.
type TransactionStatus string

const TransactionCompleted TransactionStatus = "completed"

// Transaction описывает неизменяемую запись журнала начислений.
type Transaction struct {
	ID          string
	UserID      string
	Type        TransactionType
	Amount      int64
	Description string
	RelatedID   string
	Status      TransactionStatus
	CreatedAt   time.Time
}

// RewardSummary содержит баланс эко-баллов, вычисленный по журналу, и сам журнал.
type RewardSummary struct {
	Points       int64
	Transactions []Transaction
}

// ItemDraft содержит данные для публикации новой вещи.
type ItemDraft struct {
	Title       string   `validate:"required,max=200"`
	Description string   `validate:"max=2000"`
	Category    string   `validate:"required,max=64"`
	Images      []string `validate:"max=10,dive,url"`
	Location    *Location
	Condition   Condition `validate:"omitempty,oneof=excellent good fair"`
}

// ItemPatch содержит изменяемые владельцем поля. Nil означает «не менять».
type ItemPatch struct {
	Title        *string  `validate:"omitempty,min=1,max=200"`
	Description  *string  `validate:"omitempty,max=2000"`
	Category     *string  `validate:"omitempty,min=1,max=64"`
	Images       []string `validate:"omitempty,max=10,dive,url"`
	Location     *Location
	Condition    *Condition `validate:"omitempty,oneof=excellent good fair"`
	Availability *bool
}
