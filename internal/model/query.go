package model

type QueryType string

const (
	QueryTypeEarnings  QueryType = "earnings"
	QueryTypeRisk      QueryType = "risk"
	QueryTypeTechnical QueryType = "technical"
	QueryTypeGeneral   QueryType = "general"
)

type Classification struct {
	Type                  QueryType `json:"query_type"`
	PoolID                string    `json:"pool_id,omitempty"`
	Amount                *float64  `json:"amount,omitempty"`
	Currency              string    `json:"currency,omitempty"`
	Confidence            float64   `json:"confidence"`
	RequiresGroundingData bool      `json:"requires_grounding_data"`
}
