package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrCodeNotFound               ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized           ErrorCode = "UNAUTHORIZED"
	ErrCodePermissionDenied       ErrorCode = "PERMISSION_DENIED"
	ErrCodeValidation             ErrorCode = "VALIDATION_ERROR"
	ErrCodeInsufficientStock      ErrorCode = "INSUFFICIENT_STOCK"
	ErrCodePaymentDeclined        ErrorCode = "PAYMENT_DECLINED"
	ErrCodeReservationTimeout     ErrorCode = "RESERVATION_TIMEOUT"
	ErrCodeReservationCollision   ErrorCode = "RESERVATION_COLLISION"
	ErrCodeInvalidStateTransition ErrorCode = "INVALID_STATE_TRANSITION"
	ErrCodeDuplicateReport        ErrorCode = "DUPLICATE_REPORT"
	ErrCodeInternal               ErrorCode = "INTERNAL_ERROR"
)

type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is позволяет сравнивать ошибки по коду через errors.Is.
func (e *AppError) Is(target error) bool {
	var appErr *AppError
	if !errors.As(target, &appErr) {
		return false
	}
	return e.Code == appErr.Code
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Cause:      err,
	}
}

func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodePermissionDenied:
		return http.StatusForbidden
	case ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeInsufficientStock, ErrCodeDuplicateReport, ErrCodeInvalidStateTransition:
		return http.StatusConflict
	case ErrCodePaymentDeclined, ErrCodeReservationTimeout:
		return http.StatusPaymentRequired
	case ErrCodeReservationCollision:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// CodeOf возвращает код ошибки, если она является *AppError.
func CodeOf(err error) (ErrorCode, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code, true
	}
	return "", false
}

func IsNotFound(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == ErrCodeNotFound
}

func IsInvalidTransition(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == ErrCodeInvalidStateTransition
}

var (
	ErrTransactionNotFound = New(ErrCodeNotFound, "транзакция не найдена")
	ErrProductNotFound     = New(ErrCodeNotFound, "товар не найден")
	ErrDisputeNotFound     = New(ErrCodeNotFound, "спор не найден")
	ErrReportNotFound      = New(ErrCodeNotFound, "жалоба не найдена")
	ErrUserNotFound        = New(ErrCodeNotFound, "пользователь не найден")
	ErrUnauthorized        = New(ErrCodeUnauthorized, "требуется авторизация")
	ErrPermissionDenied    = New(ErrCodePermissionDenied, "недостаточно прав")

	ErrInsufficientStock      = New(ErrCodeInsufficientStock, "недостаточно товара на складе")
	ErrPaymentDeclined        = New(ErrCodePaymentDeclined, "платёж отклонён")
	ErrReservationTimeout     = New(ErrCodeReservationTimeout, "время резервирования истекло")
	ErrReservationCollision   = New(ErrCodeReservationCollision, "резервирование конфликтует с уже списанным платежом")
	ErrInvalidStateTransition = New(ErrCodeInvalidStateTransition, "недопустимый переход состояния")
	ErrDuplicateReport        = New(ErrCodeDuplicateReport, "жалоба на этот спор уже находится на рассмотрении")
)
