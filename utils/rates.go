package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultFiatRatesURL   = "https://open.er-api.com/v6/latest/USD"
	DefaultCryptoRatesURL = "https://api.kraken.com/0/public/Ticker?pair=XBTUSD,ETHUSD"
)

// krakenPairs maps the ticker keys Kraken answers with to asset codes.
var krakenPairs = map[string]string{
	"XXBTZUSD": "BTC",
	"XETHZUSD": "ETH",
}

type rateServiceError struct {
	StatusCode int
	Message    string
}

func (e *rateServiceError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Message)
}

type krakenResponse struct {
	Error  []string                `json:"error"`
	Result map[string]krakenTicker `json:"result"`
}

type krakenTicker struct {
	// c = last trade closed array(<price>, <lot volume>)
	LastTrade []string `json:"c"`
}

type exchangeRateResponse struct {
	Result         string                     `json:"result"`
	Rates          map[string]decimal.Decimal `json:"rates"`
	TimeNextUpdate int64                      `json:"time_next_update_unix"`
}

// RateService converts amounts for display. Rates are kept as units per USD
// and refreshed once the upstream's next-update time has passed.
type RateService struct {
	httpClient *http.Client
	fiatURL    string
	cryptoURL  string
	logger     *Logger
	now        func() time.Time

	mu             sync.Mutex
	perUSD         map[string]decimal.Decimal
	nextUpdateUnix int64
}

func NewRateService(fiatURL, cryptoURL string, logger *Logger) *RateService {
	if fiatURL == "" {
		fiatURL = DefaultFiatRatesURL
	}
	if cryptoURL == "" {
		cryptoURL = DefaultCryptoRatesURL
	}
	return &RateService{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		fiatURL:    fiatURL,
		cryptoURL:  cryptoURL,
		logger:     logger,
		now:        time.Now,
	}
}

// Convert returns amount expressed in another currency or asset.
func (s *RateService) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to {
		return amount, nil
	}

	rates, err := s.rates(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	fromRate, ok := rates[from]
	if !ok || fromRate.IsZero() {
		return decimal.Zero, fmt.Errorf("no rate for %s", from)
	}
	toRate, ok := rates[to]
	if !ok {
		return decimal.Zero, fmt.Errorf("no rate for %s", to)
	}
	return amount.Div(fromRate).Mul(toRate), nil
}

func (s *RateService) rates(ctx context.Context) (map[string]decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.perUSD != nil && s.now().Unix() < s.nextUpdateUnix {
		return s.perUSD, nil
	}

	s.logger.Debug("Rate table is stale or empty, fetching")

	type cryptoResult struct {
		prices map[string]decimal.Decimal
		err    error
	}
	cryptoChan := make(chan cryptoResult, 1)
	go func() {
		prices, err := s.fetchCryptoPrices(ctx)
		cryptoChan <- cryptoResult{prices: prices, err: err}
	}()

	fiat, next, err := s.fetchFiatRates(ctx)
	crypto := <-cryptoChan
	if err != nil {
		if s.perUSD != nil {
			s.logger.Warnf("Fiat rates refresh failed, keeping previous table: %v", err)
			return s.perUSD, nil
		}
		return nil, fmt.Errorf("failed to get fiat rates: %w", err)
	}

	table := make(map[string]decimal.Decimal, len(fiat)+len(crypto.prices)+1)
	for code, rate := range fiat {
		table[strings.ToUpper(code)] = rate
	}
	table["USD"] = decimal.NewFromInt(1)
	table["USDT"] = decimal.NewFromInt(1)
	if crypto.err != nil {
		s.logger.Warnf("Crypto prices unavailable: %v", crypto.err)
	}
	for asset, usdPrice := range crypto.prices {
		if usdPrice.IsPositive() {
			table[asset] = decimal.NewFromInt(1).Div(usdPrice)
		}
	}

	s.perUSD = table
	s.nextUpdateUnix = next
	s.logger.Infof("Rate table updated with %d entries, next update at %s", len(table), time.Unix(next, 0).UTC().Format(time.RFC3339))
	return s.perUSD, nil
}

func (s *RateService) fetchFiatRates(ctx context.Context) (map[string]decimal.Decimal, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.fiatURL, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request to exchange rate API failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, &rateServiceError{StatusCode: resp.StatusCode, Message: "bad response from exchange rate API"}
	}

	var data exchangeRateResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, 0, fmt.Errorf("failed to parse exchange rate response: %w", err)
	}
	if data.Result != "success" {
		return nil, 0, fmt.Errorf("exchange rate API returned an error status: %s", data.Result)
	}
	return data.Rates, data.TimeNextUpdate, nil
}

func (s *RateService) fetchCryptoPrices(ctx context.Context) (map[string]decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cryptoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to Kraken failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &rateServiceError{StatusCode: resp.StatusCode, Message: "bad response from Kraken"}
	}

	var data krakenResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to parse Kraken response: %w", err)
	}
	if len(data.Error) > 0 {
		return nil, fmt.Errorf("Kraken API error: %v", data.Error)
	}

	prices := make(map[string]decimal.Decimal, len(krakenPairs))
	for pair, asset := range krakenPairs {
		ticker, ok := data.Result[pair]
		if !ok || len(ticker.LastTrade) == 0 {
			continue
		}
		price, err := decimal.NewFromString(ticker.LastTrade[0])
		if err != nil {
			return nil, fmt.Errorf("invalid price format from Kraken: %w", err)
		}
		prices[asset] = price
	}
	return prices, nil
}
