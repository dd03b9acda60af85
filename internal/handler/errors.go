package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-io-live/live-engine/internal/client"
	"github.com/weiawesome/wes-io-live/live-engine/internal/domain"
	"github.com/weiawesome/wes-io-live/live-engine/internal/gift"
	"github.com/weiawesome/wes-io-live/live-engine/internal/pk"
	"github.com/weiawesome/wes-io-live/live-engine/pkg/log"
	"github.com/weiawesome/wes-io-live/live-engine/pkg/response"
)

type errorMapping struct {
	status int
	code   string
	wsCode string
}

func classify(err error) (errorMapping, bool) {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound),
		errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrGiftNotFound),
		errors.Is(err, domain.ErrBattleNotFound),
		errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, client.ErrClientNotFound):
		return errorMapping{http.StatusNotFound, response.CodeNotFound, domain.ErrCodeNotFound}, true
	case errors.Is(err, domain.ErrPermissionDenied), errors.Is(err, pk.ErrDisabled):
		return errorMapping{http.StatusForbidden, response.CodeForbidden, domain.ErrCodeForbidden}, true
	case errors.Is(err, domain.ErrInsufficientFunds):
		return errorMapping{http.StatusPaymentRequired, response.CodeInsufficientFunds, domain.ErrCodeInsufficientFunds}, true
	case errors.Is(err, domain.ErrInsufficientInventory):
		return errorMapping{http.StatusPaymentRequired, response.CodeInsufficientInventory, domain.ErrCodeInsufficientInventory}, true
	case errors.Is(err, domain.ErrInvalidOffer),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidDuration),
		errors.Is(err, domain.ErrInvalidMessage),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrMissingReference),
		errors.Is(err, pk.ErrSameRoom),
		errors.Is(err, gift.ErrUnknownSource):
		return errorMapping{http.StatusBadRequest, response.CodeBadRequest, domain.ErrCodeBadRequest}, true
	case errors.Is(err, domain.ErrRoomNotLive):
		return errorMapping{http.StatusConflict, response.CodeConflict, domain.ErrCodeRoomNotLive}, true
	case errors.Is(err, domain.ErrBattleConflict),
		errors.Is(err, pk.ErrCoolingDown),
		errors.Is(err, pk.ErrDeclined):
		return errorMapping{http.StatusConflict, response.CodeConflict, domain.ErrCodeBadRequest}, true
	case errors.Is(err, domain.ErrMediaNegotiationFailed):
		return errorMapping{http.StatusBadGateway, response.CodeMediaNegotiationFailed, domain.ErrCodeInternalError}, true
	case errors.Is(err, domain.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return errorMapping{http.StatusGatewayTimeout, response.CodeTimeout, domain.ErrCodeTimeout}, true
	}
	return errorMapping{http.StatusInternalServerError, response.CodeInternal, domain.ErrCodeInternalError}, false
}

// writeError maps a domain error onto the response envelope. Unknown errors
// are logged and reported as internal errors with msg.
func writeError(c *gin.Context, err error, msg string) {
	m, known := classify(err)
	if !known {
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Msg(msg)
		response.InternalError(c, msg)
		return
	}
	response.Error(c, m.status, m.code, err.Error())
}

// socketError builds the error payload sent over the socket channel.
func socketError(err error) domain.ErrorData {
	m, known := classify(err)
	if !known {
		return domain.ErrorData{Code: domain.ErrCodeInternalError, Message: "internal error"}
	}
	return domain.ErrorData{Code: m.wsCode, Message: err.Error()}
}
