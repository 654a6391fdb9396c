package domain

import "unicode/utf8"

// Metadata length bounds, in bytes.
const (
	MaxDescriptionLength = 500
	MaxURLLength         = 200
	MaxHashLength        = 100
)

// Pool is a donation pool, tracked separately from campaigns.
// The deadline is derived as CreatedAt + Duration and never stored.
type Pool struct {
	ID           uint64 // sequential, starts at 1
	Name         string
	TargetAmount Amount
	IsPrivate    bool
	Duration     uint64 // seconds; 0 means the pool has no deadline
	CreatedAt    uint64 // unix seconds
}

// Deadline returns CreatedAt + Duration.
func (p *Pool) Deadline() uint64 {
	return p.CreatedAt + p.Duration
}

// HasDeadline reports whether refunds can ever become available.
func (p *Pool) HasDeadline() bool {
	return p.Duration > 0
}

// PoolConfig is the caller-supplied shape for CreatePool.
type PoolConfig struct {
	Name         string
	Description  string
	TargetAmount Amount
	IsPrivate    bool
	Duration     uint64
}

// PoolMetadata is descriptive data stored apart from accounting state.
type PoolMetadata struct {
	Description string
	ExternalURL string
	ImageHash   string
}

// WithinBounds reports whether every field respects its length limit.
func (m PoolMetadata) WithinBounds() bool {
	return len(m.Description) <= MaxDescriptionLength &&
		len(m.ExternalURL) <= MaxURLLength &&
		len(m.ImageHash) <= MaxHashLength &&
		utf8.ValidString(m.Description) &&
		utf8.ValidString(m.ExternalURL) &&
		utf8.ValidString(m.ImageHash)
}

// PoolMetrics aggregates contribution activity for one pool.
type PoolMetrics struct {
	TotalRaised      Amount
	ContributorCount uint32
	LastDonationAt   uint64
}

// PoolContribution is the cumulative amount one contributor put into one pool.
// A refund zeroes Amount instead of deleting the record.
type PoolContribution struct {
	PoolID      uint64
	Contributor Address
	Amount      Amount
	Asset       Address
}

// MultiSigConfig gates disbursements behind a signer threshold.
type MultiSigConfig struct {
	RequiredSignatures uint32
	Signers            []Address
}

// Valid reports 0 < RequiredSignatures <= len(Signers).
func (m *MultiSigConfig) Valid() bool {
	return len(m.Signers) > 0 &&
		m.RequiredSignatures > 0 &&
		int(m.RequiredSignatures) <= len(m.Signers)
}

// DisbursementRequest is a proposed payout from a pool awaiting approvals.
// Only the schema exists; no operation records approvals or executes one.
type DisbursementRequest struct {
	PoolID    uint64
	ID        uint64
	Amount    Amount
	Recipient Address
	Approvals []Address
	CreatedAt uint64
	Executed  bool
}
