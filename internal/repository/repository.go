// Package repository содержит хранилища вещей и журнала начислений.
package repository

import (
	"errors"

	jsoniter "github.com/json-iterator/go"

	"github.com/mmeshcher/ecoshare/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// ErrItemNotFound возвращается, если вещь не найдена.
	ErrItemNotFound = errors.New("item not found")
	// ErrStaleItem возвращается, если вещь изменилась после загрузки.
	ErrStaleItem = errors.New("item was modified concurrently")
)

// ItemFilter задаёт выборку вещей. Пустые поля не ограничивают выборку.
type ItemFilter struct {
	OwnerID             string
	BorrowerID          string
	Category            string
	OnlyAvailable       bool
	WithPendingRequests bool
}

func (f ItemFilter) match(it *model.Item) bool {
	if f.OwnerID != "" && it.OwnerID != f.OwnerID {
		return false
	}
	if f.BorrowerID != "" {
		if borrower, ok := it.CurrentBorrower(); !ok || borrower != f.BorrowerID {
			return false
		}
	}
	if f.Category != "" && it.Category != f.Category {
		return false
	}
	if f.OnlyAvailable && !it.Available() {
		return false
	}
	if f.WithPendingRequests && !hasPending(it.Requests) {
		return false
	}
	return true
}

func hasPending(requests []model.BorrowRequest) bool {
	for _, r := range requests {
		if r.Status == model.RequestStatusPending {
			return true
		}
	}
	return false
}

// itemDocs содержит вложенные части вещи в виде JSON для колонок jsonb.
type itemDocs struct {
	images   []byte
	location []byte
	requests []byte
	history  []byte
}

func encodeItemDocs(it *model.Item) (itemDocs, error) {
	var (
		d   itemDocs
		err error
	)

	images := it.Images
	if images == nil {
		images = []string{}
	}
	if d.images, err = json.Marshal(images); err != nil {
		return d, err
	}

	if it.Location != nil {
		if d.location, err = json.Marshal(it.Location); err != nil {
			return d, err
		}
	}

	requests := it.Requests
	if requests == nil {
		requests = []model.BorrowRequest{}
	}
	if d.requests, err = json.Marshal(requests); err != nil {
		return d, err
	}

	history := it.History
	if history == nil {
		history = []model.BorrowHistoryEntry{}
	}
	if d.history, err = json.Marshal(history); err != nil {
		return d, err
	}

	return d, nil
}

func decodeItemDocs(it *model.Item, d itemDocs) error {
	if err := json.Unmarshal(d.images, &it.Images); err != nil {
		return err
	}
	if len(d.location) > 0 && string(d.location) != "null" {
		var loc model.Location
		if err := json.Unmarshal(d.location, &loc); err != nil {
			return err
		}
		it.Location = &loc
	}
	if err := json.Unmarshal(d.requests, &it.Requests); err != nil {
		return err
	}
	return json.Unmarshal(d.history, &it.History)
}

func cloneItem(it *model.Item) *model.Item {
	c := *it

	c.Images = append([]string(nil), it.Images...)
	if it.Location != nil {
		loc := *it.Location
		c.Location = &loc
	}

	c.Requests = make([]model.BorrowRequest, len(it.Requests))
	for i, r := range it.Requests {
		if r.DecidedAt != nil {
			at := *r.DecidedAt
			r.DecidedAt = &at
		}
		c.Requests[i] = r
	}

	c.History = make([]model.BorrowHistoryEntry, len(it.History))
	for i, h := range it.History {
		if h.Rating != nil {
			rating := *h.Rating
			h.Rating = &rating
		}
		c.History[i] = h
	}

	return &c
}
