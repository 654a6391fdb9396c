package domain

// Campaign is a fixed-goal, fixed-deadline fundraising target tied to one asset.
// Corresponds to the campaigns table in PostgreSQL.
type Campaign struct {
	ID          CampaignID // PRIMARY KEY, caller supplied
	Title       string
	Creator     Address
	Goal        Amount  // strictly positive
	Deadline    uint64  // unix seconds, fixed at creation
	Token       Address // asset accepted by Donate
	TotalRaised Amount
}

// IsExpired reports whether donations are closed at now.
func (c *Campaign) IsExpired(now uint64) bool {
	return now >= c.Deadline
}

// IsFunded reports whether the goal has been reached.
func (c *Campaign) IsFunded() bool {
	return c.TotalRaised.GreaterThanOrEqual(c.Goal)
}

// CampaignMetrics aggregates donation activity for one campaign.
// Kept in step with Campaign.TotalRaised inside the same transaction.
type CampaignMetrics struct {
	TotalRaised      Amount
	ContributorCount uint32 // distinct donors
	LastDonationAt   uint64 // unix seconds, 0 when none
}

// Contribution is the cumulative amount one donor gave to one campaign.
type Contribution struct {
	CampaignID  CampaignID
	Contributor Address
	Amount      Amount
}
