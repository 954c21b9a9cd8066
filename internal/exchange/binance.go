package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"cryptotrader/internal/models"
	"cryptotrader/internal/security"
)

// BinanceConfig carries the per-model credential and endpoint selection,
// shaped after the config knobs a crypto-exchange wrapper typically
// exposes (base URL per testnet/mainnet, recv window).
type BinanceConfig struct {
	APIKey     string
	APISecret  string
	Env        models.ExchangeEnvironment
	RecvWindow int64
	Timeout    time.Duration
}

const (
	mainnetBaseURL = "https://api.binance.com"
	testnetBaseURL = "https://testnet.binance.vision"
)

// DefaultRecvWindow matches Binance's own documented default.
const DefaultRecvWindow = 5000

// DefaultTimeout is the exchange-call timeout from §5 (bounded to 30s).
const DefaultTimeout = 30 * time.Second

// BinanceClient is the live Client implementation: a thin, signed REST
// wrapper. It never retries (§4.2 "the live executor never retries orders
// itself").
type BinanceClient struct {
	cfg     BinanceConfig
	baseURL string
	http    *http.Client
	log     zerolog.Logger
	safeLog *security.SafeLogger
}

// NewBinanceClient builds a client for the given model's stored
// credentials. The caller is responsible for invalidating and rebuilding
// this client when credentials change (§5).
func NewBinanceClient(cfg BinanceConfig, log zerolog.Logger) *BinanceClient {
	base := mainnetBaseURL
	if cfg.Env == models.ExchangeTestnet {
		base = testnetBaseURL
	}
	if cfg.RecvWindow == 0 {
		cfg.RecvWindow = DefaultRecvWindow
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	scopedLog := log.With().Str("component", "exchange").Str("env", string(cfg.Env)).Logger()
	return &BinanceClient{
		cfg:     cfg,
		baseURL: base,
		http:    &http.Client{Timeout: timeout},
		log:     scopedLog,
		safeLog: security.NewSafeLogger(scopedLog),
	}
}

func (c *BinanceClient) sign(params url.Values) url.Values {
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", strconv.FormatInt(c.cfg.RecvWindow, 10))
	mac := hmac.New(sha256.New, []byte(c.cfg.APISecret))
	mac.Write([]byte(params.Encode()))
	params.Set("signature", hex.EncodeToString(mac.Sum(nil)))
	return params
}

func (c *BinanceClient) do(ctx context.Context, method, path string, params url.Values, signed bool) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}
	if signed {
		params = c.sign(params)
	}

	var req *http.Request
	var err error
	fullURL := c.baseURL + path
	if method == http.MethodGet || method == http.MethodDelete {
		if len(params) > 0 {
			fullURL += "?" + params.Encode()
		}
		req, err = http.NewRequestWithContext(ctx, method, fullURL, nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, fullURL, strings.NewReader(params.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-MBX-APIKEY", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		c.safeLog.Debug().Str("url", fullURL).Int("status", resp.StatusCode).Msg("exchange request failed")
		var ex apiException
		if jsonErr := json.Unmarshal(body, &ex); jsonErr == nil && ex.Msg != "" {
			return nil, &ex
		}
		return nil, &apiException{Code: resp.StatusCode, Msg: string(body)}
	}
	return body, nil
}

func (c *BinanceClient) Ping(ctx context.Context) (bool, error) {
	_, err := c.do(ctx, http.MethodGet, "/api/v3/ping", nil, false)
	if err != nil {
		return false, classify(err)
	}
	return true, nil
}

func (c *BinanceClient) GetBalance(ctx context.Context, asset string) (Balance, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/v3/account", nil, true)
	if err != nil {
		return Balance{}, classify(err)
	}
	var account struct {
		Balances []struct {
			Asset  string `json:"asset"`
			Free   string `json:"free"`
			Locked string `json:"locked"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(body, &account); err != nil {
		return Balance{}, classify(err)
	}
	for _, b := range account.Balances {
		if b.Asset == asset {
			free, _ := decimal.NewFromString(b.Free)
			locked, _ := decimal.NewFromString(b.Locked)
			return Balance{Asset: asset, Free: free, Locked: locked}, nil
		}
	}
	return Balance{Asset: asset}, nil
}

func (c *BinanceClient) GetTickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	params := url.Values{"symbol": {symbol}}
	body, err := c.do(ctx, http.MethodGet, "/api/v3/ticker/price", params, false)
	if err != nil {
		return decimal.Zero, classify(err)
	}
	var out struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return decimal.Zero, classify(err)
	}
	return decimal.NewFromString(out.Price)
}

func (c *BinanceClient) GetSymbolInfo(ctx context.Context, symbol string) (SymbolInfo, error) {
	params := url.Values{"symbol": {symbol}}
	body, err := c.do(ctx, http.MethodGet, "/api/v3/exchangeInfo", params, false)
	if err != nil {
		return SymbolInfo{}, classify(err)
	}
	var out struct {
		Symbols []struct {
			Symbol  string `json:"symbol"`
			Filters []struct {
				FilterType  string `json:"filterType"`
				StepSize    string `json:"stepSize"`
				TickSize    string `json:"tickSize"`
				MinNotional string `json:"minNotional"`
			} `json:"filters"`
		} `json:"symbols"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return SymbolInfo{}, classify(err)
	}
	if len(out.Symbols) == 0 {
		return SymbolInfo{}, &apiException{Code: -1121, Msg: fmt.Sprintf("invalid symbol %s", symbol)}
	}
	info := SymbolInfo{Symbol: symbol}
	for _, f := range out.Symbols[0].Filters {
		switch f.FilterType {
		case "LOT_SIZE":
			info.StepSize, _ = decimal.NewFromString(f.StepSize)
		case "PRICE_FILTER":
			info.TickSize, _ = decimal.NewFromString(f.TickSize)
		case "MIN_NOTIONAL", "NOTIONAL":
			info.MinNotional, _ = decimal.NewFromString(f.MinNotional)
		}
	}
	return info, nil
}

func (c *BinanceClient) placeOrder(ctx context.Context, symbol string, side OrderSide, orderType string, quantity, price decimal.Decimal, tif TimeInForce) (OrderResult, error) {
	params := url.Values{
		"symbol":   {symbol},
		"side":     {string(side)},
		"type":     {orderType},
		"quantity": {quantity.String()},
	}
	if orderType == "LIMIT" {
		params.Set("price", price.String())
		params.Set("timeInForce", string(tif))
	}
	body, err := c.do(ctx, http.MethodPost, "/api/v3/order", params, true)
	if err != nil {
		return OrderResult{}, classify(err)
	}
	var out struct {
		OrderID int64  `json:"orderId"`
		Status  string `json:"status"`
		Fills   []struct {
			Price    string `json:"price"`
			Qty      string `json:"qty"`
			Fee      string `json:"commission"`
		} `json:"fills"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return OrderResult{}, classify(err)
	}
	result := OrderResult{OrderID: strconv.FormatInt(out.OrderID, 10), Status: out.Status}
	for _, f := range out.Fills {
		price, _ := decimal.NewFromString(f.Price)
		qty, _ := decimal.NewFromString(f.Qty)
		fee, _ := decimal.NewFromString(f.Fee)
		result.Fills = append(result.Fills, Fill{Price: price, Quantity: qty, Fee: fee})
	}
	return result, nil
}

func (c *BinanceClient) PlaceMarketOrder(ctx context.Context, symbol string, side OrderSide, quantity decimal.Decimal) (OrderResult, error) {
	return c.placeOrder(ctx, symbol, side, "MARKET", quantity, decimal.Zero, "")
}

func (c *BinanceClient) PlaceLimitOrder(ctx context.Context, symbol string, side OrderSide, quantity, price decimal.Decimal, tif TimeInForce) (OrderResult, error) {
	return c.placeOrder(ctx, symbol, side, "LIMIT", quantity, price, tif)
}

func (c *BinanceClient) CancelOrder(ctx context.Context, symbol, orderID string) error {
	params := url.Values{"symbol": {symbol}, "orderId": {orderID}}
	_, err := c.do(ctx, http.MethodDelete, "/api/v3/order", params, true)
	if err != nil {
		return classify(err)
	}
	return nil
}

func (c *BinanceClient) CancelAllOrders(ctx context.Context, symbol string) error {
	params := url.Values{"symbol": {symbol}}
	_, err := c.do(ctx, http.MethodDelete, "/api/v3/openOrders", params, true)
	if err != nil {
		return classify(err)
	}
	return nil
}
