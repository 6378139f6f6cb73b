package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/annel0/shopzones/internal/zone"
)

// GenericResponse общий формат ответов API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// errBadRequest некорректные параметры запроса
var errBadRequest = errors.New("некорректный запрос")

// statusFor переводит класс ошибки в HTTP-статус
func statusFor(err error) int {
	if errors.Is(err, errBadRequest) {
		return http.StatusBadRequest
	}
	switch zone.Kind(err) {
	case "ok":
		return http.StatusOK
	case "not_found":
		return http.StatusNotFound
	case "conflict":
		return http.StatusConflict
	case "corrupt":
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func respondOK(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: message, Data: data})
}

// respondError отвечает статусом по классу ошибки; data может нести частичный результат
func respondError(c *gin.Context, err error, data interface{}) {
	c.JSON(statusFor(err), GenericResponse{Success: false, Message: err.Error(), Data: data})
}
