package bybit

// apiResponse is the envelope every v5 endpoint returns.
type apiResponse struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Time    int64  `json:"time"`
}

// tickerEntry is one element of the GET /v5/market/tickers result list.
type tickerEntry struct {
	Symbol       string `json:"symbol"`
	LastPrice    string `json:"lastPrice"`
	MarkPrice    string `json:"markPrice"`
	Price24hPcnt string `json:"price24hPcnt"`
	HighPrice24h string `json:"highPrice24h"`
	LowPrice24h  string `json:"lowPrice24h"`
	Volume24h    string `json:"volume24h"`
	Turnover24h  string `json:"turnover24h"`
	FundingRate  string `json:"fundingRate"`
	OpenInterest string `json:"openInterest"`
}

type tickersResult struct {
	Category string        `json:"category"`
	List     []tickerEntry `json:"list"`
}

type tickersResponse struct {
	apiResponse
	Result tickersResult `json:"result"`
}

// OrderRequest is the payload for POST /v5/order/create.
type OrderRequest struct {
	Category    string `json:"category"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"` // "Buy" or "Sell"
	OrderType   string `json:"orderType"`
	Qty         string `json:"qty"`
	TimeInForce string `json:"timeInForce,omitempty"`
	ReduceOnly  bool   `json:"reduceOnly,omitempty"`
	StopLoss    string `json:"stopLoss,omitempty"`
	TakeProfit  string `json:"takeProfit,omitempty"`
	OrderLinkID string `json:"orderLinkId,omitempty"`
}

// OrderResult is the result block returned by order create.
type OrderResult struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
}

type orderResponse struct {
	apiResponse
	Result OrderResult `json:"result"`
}

// wsTickerMessage is a push frame from the public tickers stream. Snapshot
// frames carry every field; delta frames only the changed ones.
type wsTickerMessage struct {
	Topic string      `json:"topic"`
	Type  string      `json:"type"`
	Ts    int64       `json:"ts"`
	Data  tickerEntry `json:"data"`
}
