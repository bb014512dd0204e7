package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"family-chat/internal/models"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("body", func(fl validator.FieldLevel) bool {
		return utf8.RuneCountInString(fl.Field().String()) <= models.MaxBodyLength
	})
	return v
}

type RoomRequest struct {
	ChatID string `json:"chatId" validate:"required,uuid"`
}

type SendMessageRequest struct {
	ChatID   string `json:"chatId" validate:"required,uuid"`
	ClientID string `json:"clientId" validate:"required"`
	Body     string `json:"body" validate:"required,body"`
}

type TypingRequest struct {
	ChatID string `json:"chatId" validate:"required,uuid"`
}

type ReadReceiptRequest struct {
	ChatID    string `json:"chatId" validate:"required,uuid"`
	MessageID string `json:"messageId" validate:"required,uuid"`
}

// decode unmarshals data into req and validates it. Every failure is a
// VALIDATION_ERROR.
func decode(data json.RawMessage, req any) error {
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, req); err != nil {
			return &Error{Code: CodeValidation, Message: "malformed payload", Err: err}
		}
	}
	if err := validate.Struct(req); err != nil {
		return &Error{Code: CodeValidation, Message: describe(err), Err: err}
	}
	return nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid payload"
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "uuid":
			msgs = append(msgs, fmt.Sprintf("%s must be a valid id", fe.Field()))
		case "body":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %d characters", fe.Field(), models.MaxBodyLength))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", fe.Field()))
		}
	}
	return strings.Join(msgs, "; ")
}
