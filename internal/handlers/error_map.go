package handlers

import (
	"net/http"

	"discount-system/internal/apperror"
	"discount-system/internal/logger"
	"discount-system/internal/validation"
)

func writeServiceError(w http.ResponseWriter, log *logger.Logger, err error, internalMessage string) {
	switch {
	case apperror.Is(err, apperror.KindNotFound):
		writeErrorResponse(w, http.StatusNotFound, err.Error())
	case apperror.Is(err, apperror.KindValidation):
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
	case apperror.Is(err, apperror.KindConflict):
		writeErrorResponse(w, http.StatusConflict, err.Error())
	default:
		if log != nil {
			log.WithError(err).Error(internalMessage)
		}
		writeErrorResponse(w, http.StatusInternalServerError, internalMessage)
	}
}

// ValidationErrorResponse возвращает бизнес-нарушения, сгруппированные по полям.
type ValidationErrorResponse struct {
	Error  string                        `json:"error"`
	Errors map[string][]validation.Error `json:"errors"`
}

// writeValidationErrors отправляет карту ошибок валидации с кодом 400.
func writeValidationErrors(w http.ResponseWriter, errs validation.ErrorMap) {
	writeJSONResponse(w, http.StatusBadRequest, ValidationErrorResponse{
		Error:  http.StatusText(http.StatusBadRequest),
		Errors: errs,
	})
}
