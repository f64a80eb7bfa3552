// Package validation содержит функции валидации входных данных.
package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mmeshcher/ecoshare/internal/model"
)

const (
	maxMessageLength = 500
	maxReviewLength  = 1000
	minRating        = 1
	maxRating        = 5
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateDraft проверяет данные новой вещи.
func ValidateDraft(d model.ItemDraft) error {
	return describe(validate.Struct(d))
}

// ValidatePatch проверяет изменения вещи.
func ValidatePatch(p model.ItemPatch) error {
	return describe(validate.Struct(p))
}

// ValidateMessage проверяет сообщение к заявке. Пустое сообщение допустимо.
func ValidateMessage(message string) error {
	if err := validate.Var(message, fmt.Sprintf("max=%d", maxMessageLength)); err != nil {
		return fmt.Errorf("message must be at most %d characters", maxMessageLength)
	}
	return nil
}

// ValidateReturn проверяет необязательные оценку и отзыв при возврате.
func ValidateReturn(rating *int, review string) error {
	if rating != nil {
		if err := validate.Var(*rating, fmt.Sprintf("min=%d,max=%d", minRating, maxRating)); err != nil {
			return fmt.Errorf("rating must be between %d and %d", minRating, maxRating)
		}
	}
	if err := validate.Var(review, fmt.Sprintf("max=%d", maxReviewLength)); err != nil {
		return fmt.Errorf("review must be at most %d characters", maxReviewLength)
	}
	return nil
}

// describe превращает ошибки валидатора в короткое сообщение вида "title: required".
func describe(err error) error {
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s", field, fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", field, fe.Tag()))
		}
	}

	return errors.New(strings.Join(parts, ", "))
}
