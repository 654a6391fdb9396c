package api

import "crowdfund-ledger/internal/domain"

type settingsView struct {
	Admin       domain.Address `json:"admin,omitempty"`
	Initialized bool           `json:"initialized"`
	Token       domain.Address `json:"token,omitempty"`
	CreationFee domain.Amount  `json:"creation_fee"`
	Paused      bool           `json:"paused"`
	Vault       domain.Address `json:"vault"`
	Now         uint64         `json:"now"`
}

type emergencyView struct {
	Recipient   domain.Address `json:"recipient"`
	Token       domain.Address `json:"token"`
	Amount      domain.Amount  `json:"amount"`
	RequestedAt uint64         `json:"requested_at"`
	UnlocksAt   uint64         `json:"unlocks_at"`
	Executed    bool           `json:"executed"`
}

type campaignView struct {
	ID          domain.CampaignID `json:"id"`
	Title       string            `json:"title"`
	Creator     domain.Address    `json:"creator"`
	Goal        domain.Amount     `json:"goal"`
	Deadline    uint64            `json:"deadline"`
	Token       domain.Address    `json:"token"`
	TotalRaised domain.Amount     `json:"total_raised"`
	Completed   bool              `json:"completed"`
}

type metricsView struct {
	TotalRaised      domain.Amount `json:"total_raised"`
	ContributorCount uint32        `json:"contributor_count"`
	LastDonationAt   uint64        `json:"last_donation_at"`
}

type contributionView struct {
	Contributor domain.Address `json:"contributor"`
	Amount      domain.Amount  `json:"amount"`
	Asset       domain.Address `json:"asset,omitempty"`
}

type poolView struct {
	ID           uint64           `json:"id"`
	Name         string           `json:"name"`
	TargetAmount domain.Amount    `json:"target_amount"`
	IsPrivate    bool             `json:"is_private"`
	Duration     uint64           `json:"duration"`
	CreatedAt    uint64           `json:"created_at"`
	Deadline     uint64           `json:"deadline,omitempty"`
	State        domain.PoolState `json:"state"`
}

type metadataView struct {
	Description string `json:"description"`
	ExternalURL string `json:"external_url"`
	ImageHash   string `json:"image_hash"`
}

type multiSigView struct {
	RequiredSignatures uint32           `json:"required_signatures"`
	Signers            []domain.Address `json:"signers"`
}

func newMetricsView(total domain.Amount, count uint32, lastAt uint64) metricsView {
	return metricsView{TotalRaised: total, ContributorCount: count, LastDonationAt: lastAt}
}
