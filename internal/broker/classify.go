package broker

import (
	"errors"
	"net/http"
	"strings"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
)

// Cause is a diagnostic label for a rejected broker request.
type Cause string

const (
	CauseNone                    Cause = ""
	CauseInsufficientBuyingPower Cause = "insufficient_buying_power"
	CauseShortWhileLongOpen      Cause = "short_sell_while_long_open"
	CauseInsufficientQty         Cause = "insufficient_qty"
	CauseForbidden               Cause = "forbidden"
	CauseAPI                     Cause = "api_error"
	CauseUnknown                 Cause = "unknown"
)

func Classify(err error) Cause {
	if err == nil {
		return CauseNone
	}
	var apiErr *alpaca.APIError
	if !errors.As(err, &apiErr) {
		return CauseUnknown
	}
	if apiErr.StatusCode != http.StatusForbidden {
		return CauseAPI
	}
	msg := strings.ToLower(apiErr.Message)
	switch {
	case strings.Contains(msg, "insufficient buying power"):
		return CauseInsufficientBuyingPower
	case strings.Contains(msg, "cannot open a short sell while a long buy order is open"):
		return CauseShortWhileLongOpen
	case strings.Contains(msg, "insufficient qty available for order"):
		return CauseInsufficientQty
	default:
		return CauseForbidden
	}
}
