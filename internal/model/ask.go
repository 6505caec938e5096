package model

const MaxQueryLength = 1000

// QueryContext describes the page the widget is embedded in.
type QueryContext struct {
	Dapp string `json:"dapp,omitempty"`
	Lang string `json:"lang,omitempty"`
}

type AskRequest struct {
	Query     string        `json:"query"`
	PoolID    string        `json:"pool_id,omitempty"`
	Amount    *float64      `json:"amount,omitempty"`
	Currency  string        `json:"currency,omitempty"`
	Scope     string        `json:"scope,omitempty"`
	Context   *QueryContext `json:"context,omitempty"`
	SessionID string        `json:"session_id,omitempty"`
	ClientID  string        `json:"client_id,omitempty"`
}

type Source struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

type QueryAssumptions struct {
	Pool     string   `json:"pool,omitempty"`
	Amount   *float64 `json:"amount,omitempty"`
	Currency string   `json:"currency,omitempty"`
}

type AskResponse struct {
	Answer          string            `json:"answer"`
	QueryType       QueryType         `json:"query_type,omitempty"`
	Assumptions     *QueryAssumptions `json:"assumptions,omitempty"`
	Pool            *PoolSnapshot     `json:"pool,omitempty"`
	Confidence      *float64          `json:"confidence,omitempty"`
	Sources         []Source          `json:"sources,omitempty"`
	Followups       []string          `json:"followups,omitempty"`
	SessionID       string            `json:"session_id"`
	Scope           string            `json:"scope"`
	Cached          bool              `json:"_cached,omitempty"`
	CacheSimilarity float64           `json:"_cache_similarity,omitempty"`
}
