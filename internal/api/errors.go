package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"crowdfund-ledger/internal/ledger"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes for requests rejected before reaching the ledger.
const (
	codeBadRequest = "BAD_REQUEST"
	codeNotFound   = "NOT_FOUND"
	codeInternal   = "INTERNAL"
)

func statusOf(code ledger.Code) int {
	switch code {
	case ledger.CodeCampaignNotFound,
		ledger.CodePoolNotFound,
		ledger.CodeEmergencyWithdrawalNotRequested:
		return http.StatusNotFound
	}
	switch code.Category() {
	case ledger.CategoryAuth:
		return http.StatusForbidden
	case ledger.CategoryInvariant:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

// fail writes err as JSON. Ledger rejections keep their code; anything else
// is logged and reported as an internal error.
func (s *Server) fail(c *gin.Context, err error) {
	var lerr *ledger.Error
	if errors.As(err, &lerr) {
		c.AbortWithStatusJSON(statusOf(lerr.Code), errorBody{Code: string(lerr.Code), Message: err.Error()})
		return
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody{Code: codeInternal, Message: "internal error"})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Code: codeBadRequest, Message: msg})
}

func notFound(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusNotFound, errorBody{Code: codeNotFound, Message: msg})
}
