package exchange

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"

	cryptoerrors "cryptotrader/internal/errors"
)

// apiException is the shape of a Binance-style REST error body:
// {"code": -2010, "msg": "Account has insufficient balance..."}.
type apiException struct {
	Code int
	Msg  string
}

func (e *apiException) Error() string { return e.Msg }

// classify maps a raw transport/API error into the §6 error-kind
// taxonomy {auth, insufficient_funds, symbol_filter, rate_limit, network,
// other}, per the call-site requirement in §6.
func classify(err error) *cryptoerrors.ExchangeError {
	if err == nil {
		return nil
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return cryptoerrors.NewExchangeError(cryptoerrors.ExchangeErrNetwork, "TIMEOUT", "request timed out", err)
		}
		return cryptoerrors.NewExchangeError(cryptoerrors.ExchangeErrNetwork, "NETWORK", "network error", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return cryptoerrors.NewExchangeError(cryptoerrors.ExchangeErrNetwork, "TIMEOUT", "request timed out", err)
	}

	var apiErr *apiException
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == -2014 || apiErr.Code == -2015 || apiErr.Code == -1022:
			return cryptoerrors.NewExchangeError(cryptoerrors.ExchangeErrAuth, codeStr(apiErr.Code), apiErr.Msg, err)
		case apiErr.Code == -2010 || apiErr.Code == -2018 || apiErr.Code == -2019:
			return cryptoerrors.NewExchangeError(cryptoerrors.ExchangeErrInsufficient, codeStr(apiErr.Code), apiErr.Msg, err)
		case apiErr.Code == -1013 || apiErr.Code == -1111 || strings.Contains(strings.ToUpper(apiErr.Msg), "LOT_SIZE") || strings.Contains(strings.ToUpper(apiErr.Msg), "NOTIONAL"):
			return cryptoerrors.NewExchangeError(cryptoerrors.ExchangeErrSymbolFilter, codeStr(apiErr.Code), apiErr.Msg, err)
		case apiErr.Code == -1003:
			return cryptoerrors.NewExchangeError(cryptoerrors.ExchangeErrRateLimit, codeStr(apiErr.Code), apiErr.Msg, err)
		default:
			return cryptoerrors.NewExchangeError(cryptoerrors.ExchangeErrOther, codeStr(apiErr.Code), apiErr.Msg, err)
		}
	}

	return cryptoerrors.NewExchangeError(cryptoerrors.ExchangeErrOther, "UNKNOWN", err.Error(), err)
}

func codeStr(code int) string {
	if code == 0 {
		return "UNKNOWN"
	}
	return strconv.Itoa(code)
}
