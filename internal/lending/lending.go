// Package lending реализует правила выдачи вещей: заявки, одобрение, возврат и удаление.
//
// Функции пакета работают только с загруженной вещью и не обращаются к хранилищу.
// Все проверки выполняются до изменения вещи, поэтому при ошибке вещь остаётся прежней.
package lending

import (
	"errors"
	"fmt"
	"time"

	"github.com/mmeshcher/ecoshare/internal/model"
)

// Виды ошибок. Конкретные ошибки оборачивают их с подробностями.
var (
	// ErrNotFound возвращается, если вещь или заявка не найдены.
	ErrNotFound = errors.New("not found")
	// ErrForbidden возвращается, если у пользователя нет нужной связи с вещью.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict возвращается, если текущее состояние вещи не допускает действие.
	ErrConflict = errors.New("conflict")
	// ErrValidation возвращается при некорректных входных данных.
	ErrValidation = errors.New("validation failed")
	// ErrInconsistent возвращается, если сохранённая вещь нарушает инварианты.
	ErrInconsistent = errors.New("inconsistent item state")
)

// Decision описывает решение владельца по заявке.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// ParseDecision разбирает решение владельца. Допускаются формы approve/approved и reject/rejected.
func ParseDecision(s string) (Decision, error) {
	switch s {
	case "approve", string(model.RequestStatusApproved):
		return DecisionApprove, nil
	case "reject", string(model.RequestStatusRejected):
		return DecisionReject, nil
	default:
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
}

// SubmitRequest добавляет заявку requesterID на вещь. Состояние выдачи не меняется.
func SubmitRequest(item *model.Item, requestID, requesterID, message string, now time.Time) (model.BorrowRequest, error) {
	if item.OwnerID == requesterID {
		return model.BorrowRequest{}, fmt.Errorf("%w: cannot borrow own item", ErrForbidden)
	}
	if !item.Available() {
		return model.BorrowRequest{}, fmt.Errorf("%w: not available", ErrConflict)
	}
	for _, r := range item.Requests {
		if r.RequesterID == requesterID && r.Status.Active() {
			return model.BorrowRequest{}, fmt.Errorf("%w: active request exists", ErrConflict)
		}
	}

	req := model.BorrowRequest{
		ID:          requestID,
		RequesterID: requesterID,
		Message:     message,
		RequestDate: now,
		Status:      model.RequestStatusPending,
	}
	item.Requests = append(item.Requests, req)

	return req, nil
}

// Respond применяет решение владельца actorID к заявке requestID.
//
// Одобрение выдаёт вещь заявителю и отклоняет все остальные заявки на рассмотрении.
func Respond(item *model.Item, requestID, actorID string, decision Decision, now time.Time) error {
	if item.OwnerID != actorID {
		return fmt.Errorf("%w: only the owner can respond to requests", ErrForbidden)
	}

	idx := findRequest(item.Requests, requestID)
	if idx < 0 {
		return fmt.Errorf("%w: request %s", ErrNotFound, requestID)
	}
	target := &item.Requests[idx]
	if target.Status != model.RequestStatusPending {
		return fmt.Errorf("%w: request already %s", ErrConflict, target.Status)
	}

	switch decision {
	case DecisionReject:
		target.Status = model.RequestStatusRejected
		target.DecidedAt = &now
		return nil
	case DecisionApprove:
	default:
		return fmt.Errorf("%w: invalid decision %q", ErrValidation, decision)
	}

	if !item.Available() {
		return fmt.Errorf("%w: no longer available", ErrConflict)
	}

	others := pendingExcept(item.Requests, target.ID)

	target.Status = model.RequestStatusApproved
	target.DecidedAt = &now
	for _, i := range others {
		item.Requests[i].Status = model.RequestStatusRejected
		item.Requests[i].DecidedAt = &now
	}
	item.Lending = model.BorrowedBy(target.RequesterID)

	return nil
}

// Return завершает текущий заём. Вернуть вещь может владелец или заёмщик.
// Возвращает добавленную в историю запись.
func Return(item *model.Item, actorID string, rating *int, review string, now time.Time) (model.BorrowHistoryEntry, error) {
	borrowerID, borrowed := item.CurrentBorrower()
	if !borrowed {
		return model.BorrowHistoryEntry{}, fmt.Errorf("%w: not currently borrowed", ErrConflict)
	}
	if actorID != item.OwnerID && actorID != borrowerID {
		return model.BorrowHistoryEntry{}, fmt.Errorf("%w: only the owner or the borrower can return the item", ErrForbidden)
	}

	idx := -1
	for i, r := range item.Requests {
		if r.RequesterID == borrowerID && r.Status == model.RequestStatusApproved {
			idx = i
			break
		}
	}
	if idx < 0 {
		return model.BorrowHistoryEntry{}, fmt.Errorf("%w: item %s has no approved request for borrower %s", ErrInconsistent, item.ID, borrowerID)
	}

	approved := item.Requests[idx]
	borrowDate := approved.RequestDate
	if approved.DecidedAt != nil {
		borrowDate = *approved.DecidedAt
	}

	entry := model.BorrowHistoryEntry{
		UserID:     borrowerID,
		BorrowDate: borrowDate,
		ReturnDate: now,
		Rating:     rating,
		Review:     review,
	}

	item.History = append(item.History, entry)
	item.Lending = model.Available()
	item.Requests = append(item.Requests[:idx:idx], item.Requests[idx+1:]...)

	return entry, nil
}

// CheckDeletable проверяет, может ли actorID удалить вещь.
func CheckDeletable(item *model.Item, actorID string) error {
	if item.OwnerID != actorID {
		return fmt.Errorf("%w: only the owner can delete the item", ErrForbidden)
	}
	if _, borrowed := item.CurrentBorrower(); borrowed {
		return fmt.Errorf("%w: item is currently borrowed", ErrConflict)
	}
	for _, r := range item.Requests {
		if r.Status.Active() {
			return fmt.Errorf("%w: item has active requests", ErrConflict)
		}
	}
	return nil
}

// ApplyPatch применяет изменения владельца к описанию вещи и её доступности.
func ApplyPatch(item *model.Item, actorID string, patch model.ItemPatch) error {
	if item.OwnerID != actorID {
		return fmt.Errorf("%w: only the owner can update the item", ErrForbidden)
	}

	next := item.Lending
	if patch.Availability != nil {
		_, borrowed := item.CurrentBorrower()
		switch {
		case borrowed && *patch.Availability:
			return fmt.Errorf("%w: item is currently borrowed", ErrConflict)
		case borrowed:
			// выданная вещь и так недоступна
		case *patch.Availability:
			next = model.Available()
		default:
			next = model.Unlisted()
		}
	}

	if patch.Title != nil {
		item.Title = *patch.Title
	}
	if patch.Description != nil {
		item.Description = *patch.Description
	}
	if patch.Category != nil {
		item.Category = *patch.Category
	}
	if patch.Images != nil {
		item.Images = patch.Images
	}
	if patch.Location != nil {
		item.Location = patch.Location
	}
	if patch.Condition != nil {
		item.Condition = *patch.Condition
	}
	item.Lending = next

	return nil
}

// PendingRequests разворачивает заявки на рассмотрении по всем вещам.
func PendingRequests(items []model.Item) []model.PendingRequest {
	res := make([]model.PendingRequest, 0)
	for _, it := range items {
		for _, r := range it.Requests {
			if r.Status != model.RequestStatusPending {
				continue
			}
			res = append(res, model.PendingRequest{
				ItemID:      it.ID,
				ItemTitle:   it.Title,
				RequestID:   r.ID,
				RequesterID: r.RequesterID,
				Message:     r.Message,
				RequestDate: r.RequestDate,
			})
		}
	}
	return res
}

func findRequest(requests []model.BorrowRequest, id string) int {
	for i, r := range requests {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// pendingExcept возвращает индексы заявок на рассмотрении, кроме approvedID.
func pendingExcept(requests []model.BorrowRequest, approvedID string) []int {
	var idx []int
	for i, r := range requests {
		if r.Status == model.RequestStatusPending && r.ID != approvedID {
			idx = append(idx, i)
		}
	}
	return idx
}
