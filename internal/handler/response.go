package handler

import (
	"time"

	"github.com/mmeshcher/ecoshare/internal/model"
)

type itemResponse struct {
	ID              string                `json:"id"`
	OwnerID         string                `json:"ownerId"`
	Title           string                `json:"title"`
	Description     string                `json:"description"`
	Category        string                `json:"category"`
	Images          []string              `json:"images"`
	Location        *model.Location       `json:"location,omitempty"`
	Condition       model.Condition       `json:"condition"`
	Availability    bool                  `json:"availability"`
	LendingStatus   model.LendingStatus   `json:"lendingStatus"`
	CurrentBorrower string                `json:"currentBorrower,omitempty"`
	BorrowRequests  []requestResponse     `json:"borrowRequests"`
	BorrowHistory   []historyEntryPayload `json:"borrowHistory"`
	CreatedAt       string                `json:"createdAt"`
	UpdatedAt       string                `json:"updatedAt"`
}

type requestResponse struct {
	ID          string              `json:"id"`
	UserID      string              `json:"userId"`
	Message     string              `json:"message,omitempty"`
	RequestDate string              `json:"requestDate"`
	Status      model.RequestStatus `json:"status"`
}

type historyEntryPayload struct {
	UserID     string `json:"userId"`
	BorrowDate string `json:"borrowDate"`
	ReturnDate string `json:"returnDate"`
	Rating     *int   `json:"rating,omitempty"`
	Review     string `json:"review,omitempty"`
}

type transactionResponse struct {
	ID          string                  `json:"id"`
	Type        model.TransactionType   `json:"type"`
	Amount      int64                   `json:"amount"`
	Description string                  `json:"description"`
	RelatedID   string                  `json:"relatedId,omitempty"`
	Status      model.TransactionStatus `json:"status"`
	CreatedAt   string                  `json:"createdAt"`
}

type rewardsResponse struct {
	EcoPoints    int64                 `json:"ecoPoints"`
	Transactions []transactionResponse `json:"transactions"`
}

func newItemResponse(it *model.Item) itemResponse {
	images := it.Images
	if images == nil {
		images = []string{}
	}

	resp := itemResponse{
		ID:             it.ID,
		OwnerID:        it.OwnerID,
		Title:          it.Title,
		Description:    it.Description,
		Category:       it.Category,
		Images:         images,
		Location:       it.Location,
		Condition:      it.Condition,
		Availability:   it.Available(),
		LendingStatus:  it.Lending.Status(),
		BorrowRequests: make([]requestResponse, 0, len(it.Requests)),
		BorrowHistory:  make([]historyEntryPayload, 0, len(it.History)),
		CreatedAt:      formatTime(it.CreatedAt),
		UpdatedAt:      formatTime(it.UpdatedAt),
	}
	if borrower, ok := it.CurrentBorrower(); ok {
		resp.CurrentBorrower = borrower
	}
	for _, r := range it.Requests {
		resp.BorrowRequests = append(resp.BorrowRequests, newRequestResponse(r))
	}
	for _, e := range it.History {
		resp.BorrowHistory = append(resp.BorrowHistory, historyEntryPayload{
			UserID:     e.UserID,
			BorrowDate: formatTime(e.BorrowDate),
			ReturnDate: formatTime(e.ReturnDate),
			Rating:     e.Rating,
			Review:     e.Review,
		})
	}

	return resp
}

func newItemsResponse(items []model.Item) []itemResponse {
	resp := make([]itemResponse, 0, len(items))
	for i := range items {
		resp = append(resp, newItemResponse(&items[i]))
	}
	return resp
}

func newRequestResponse(r model.BorrowRequest) requestResponse {
	return requestResponse{
		ID:          r.ID,
		UserID:      r.RequesterID,
		Message:     r.Message,
		RequestDate: formatTime(r.RequestDate),
		Status:      r.Status,
	}
}

func newRewardsResponse(s *model.RewardSummary) rewardsResponse {
	resp := rewardsResponse{
		EcoPoints:    s.Points,
		Transactions: make([]transactionResponse, 0, len(s.Transactions)),
	}
	for _, t := range s.Transactions {
		resp.Transactions = append(resp.Transactions, transactionResponse{
			ID:          t.ID,
			Type:        t.Type,
			Amount:      t.Amount,
			Description: t.Description,
			RelatedID:   t.RelatedID,
			Status:      t.Status,
			CreatedAt:   formatTime(t.CreatedAt),
		})
	}
	return resp
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
