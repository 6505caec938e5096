package model

import "time"

// PoolSnapshot is the latest known rate data of a lending pool.
type PoolSnapshot struct {
	PoolID      string    `json:"pool_id"`
	PoolName    string    `json:"pool_name"`
	Address     string    `json:"address,omitempty"`
	APR         float64   `json:"apr"`
	APY         float64   `json:"apy,omitempty"`
	BorrowAPR   float64   `json:"borrow_apr,omitempty"`
	TVL         float64   `json:"tvl,omitempty"`
	Utilization float64   `json:"utilization,omitempty"`
	URL         string    `json:"url,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}
