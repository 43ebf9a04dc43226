package model

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// VerificationResult is the normalized per-address security record produced by
// exactly one source client per attempt. It is immutable once returned; the
// batch verifier owns it until merged into the output map.
type VerificationResult struct {
	IsVerified           bool            `json:"is_verified"`
	IsHoneypot           bool            `json:"is_honeypot"`
	BuyTaxPercent        decimal.Decimal `json:"buy_tax_percent"`
	SellTaxPercent       decimal.Decimal `json:"sell_tax_percent"`
	OwnerAddress         string          `json:"owner_address"`
	CanReclaimOwnership  bool            `json:"can_reclaim_ownership"`
	HasMintFunction      bool            `json:"has_mint_function"`
	HasBlacklistFunction bool            `json:"has_blacklist_function"`
	IsProxyContract      bool            `json:"is_proxy_contract"`
	SourceName           string          `json:"source_name"`
	ErrorMessage         string          `json:"error_message,omitempty"`
	RawPayload           json.RawMessage `json:"raw_payload,omitempty"`
}

// Unavailable reports whether no source produced usable data for the address.
func (r *VerificationResult) Unavailable() bool {
	return r.ErrorMessage != "" && !r.IsVerified && !r.IsHoneypot
}

// NotFound builds the default "no data" record the batch verifier uses when an
// address is absent from a source response. The output map of a batch always
// contains one entry per requested address, never an absent key.
func NotFound(source, reason string) *VerificationResult {
	return &VerificationResult{
		SourceName:   source,
		ErrorMessage: reason,
	}
}
