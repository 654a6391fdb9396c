package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"crowdfund-ledger/internal/domain"
	"crowdfund-ledger/internal/storage"
)

type campaignStore struct {
	tx *tx
}

// Insert adds a new campaign. Returns ErrDuplicateKey if the id exists.
func (s *campaignStore) Insert(ctx context.Context, c *domain.Campaign) error {
	deadline, err := bigint(c.Deadline)
	if err != nil {
		return err
	}
	return s.tx.write(ctx, "insert_campaign", `
		INSERT INTO campaigns (id, title, creator, goal, deadline, token, total_raised)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7::numeric)
	`, c.ID[:], c.Title, string(c.Creator), c.Goal.String(), deadline, string(c.Token), c.TotalRaised.String())
}

// Get retrieves a campaign by id. Returns ErrNotFound if not exists.
func (s *campaignStore) Get(ctx context.Context, id domain.CampaignID) (*domain.Campaign, error) {
	row := s.tx.queryRow(ctx, "get_campaign", `
		SELECT id, title, creator, goal::text, deadline, token, total_raised::text
		FROM campaigns
		WHERE id = $1
	`, id[:])
	return scanCampaign(row)
}

// Update replaces an existing campaign. Returns ErrNotFound if not exists.
func (s *campaignStore) Update(ctx context.Context, c *domain.Campaign) error {
	if err := s.tx.writable(); err != nil {
		return err
	}
	deadline, err := bigint(c.Deadline)
	if err != nil {
		return err
	}
	tag, err := s.tx.exec(ctx, "update_campaign", `
		UPDATE campaigns
		SET title = $2, creator = $3, goal = $4::numeric, deadline = $5, token = $6, total_raised = $7::numeric
		WHERE id = $1
	`, c.ID[:], c.Title, string(c.Creator), c.Goal.String(), deadline, string(c.Token), c.TotalRaised.String())
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListIDs returns every campaign id in creation order.
func (s *campaignStore) ListIDs(ctx context.Context) ([]domain.CampaignID, error) {
	rows, err := s.tx.tx.Query(ctx, `SELECT id FROM campaigns ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var ids []domain.CampaignID
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan campaign id: %w", err)
		}
		id, err := campaignID(raw)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate campaigns: %w", err)
	}
	return ids, nil
}

// GetMetrics retrieves campaign metrics. Returns ErrNotFound if not exists.
func (s *campaignStore) GetMetrics(ctx context.Context, id domain.CampaignID) (*domain.CampaignMetrics, error) {
	var (
		total         string
		count, lastAt int64
	)
	err := s.tx.queryRow(ctx, "get_campaign_metrics", `
		SELECT total_raised::text, contributor_count, last_donation_at
		FROM campaign_metrics
		WHERE campaign_id = $1
	`, id[:]).Scan(&total, &count, &lastAt)
	if err != nil {
		return nil, scanErr("get campaign metrics", err)
	}
	return metrics(total, count, lastAt)
}

// PutMetrics inserts or replaces campaign metrics.
func (s *campaignStore) PutMetrics(ctx context.Context, id domain.CampaignID, m *domain.CampaignMetrics) error {
	lastAt, err := bigint(m.LastDonationAt)
	if err != nil {
		return err
	}
	return s.tx.write(ctx, "put_campaign_metrics", `
		INSERT INTO campaign_metrics (campaign_id, total_raised, contributor_count, last_donation_at)
		VALUES ($1, $2::numeric, $3, $4)
		ON CONFLICT (campaign_id) DO UPDATE SET
			total_raised = EXCLUDED.total_raised,
			contributor_count = EXCLUDED.contributor_count,
			last_donation_at = EXCLUDED.last_donation_at
	`, id[:], m.TotalRaised.String(), int64(m.ContributorCount), lastAt)
}

// GetContribution retrieves one donor's record. Returns ErrNotFound if absent.
func (s *campaignStore) GetContribution(ctx context.Context, id domain.CampaignID, contributor domain.Address) (*domain.Contribution, error) {
	var text string
	err := s.tx.queryRow(ctx, "get_contribution", `
		SELECT amount::text
		FROM campaign_contributions
		WHERE campaign_id = $1 AND contributor = $2
	`, id[:], string(contributor)).Scan(&text)
	if err != nil {
		return nil, scanErr("get contribution", err)
	}
	a, err := amount(text)
	if err != nil {
		return nil, err
	}
	return &domain.Contribution{CampaignID: id, Contributor: contributor, Amount: a}, nil
}

// PutContribution inserts or replaces a contribution record.
func (s *campaignStore) PutContribution(ctx context.Context, c *domain.Contribution) error {
	return s.tx.write(ctx, "put_contribution", `
		INSERT INTO campaign_contributions (campaign_id, contributor, amount)
		VALUES ($1, $2, $3::numeric)
		ON CONFLICT (campaign_id, contributor) DO UPDATE SET amount = EXCLUDED.amount
	`, c.CampaignID[:], string(c.Contributor), c.Amount.String())
}

func scanCampaign(row pgx.Row) (*domain.Campaign, error) {
	var (
		raw                              []byte
		title, creator, goal, tok, total string
		deadline                         int64
	)
	if err := row.Scan(&raw, &title, &creator, &goal, &deadline, &tok, &total); err != nil {
		return nil, scanErr("get campaign", err)
	}

	id, err := campaignID(raw)
	if err != nil {
		return nil, err
	}
	g, err := amount(goal)
	if err != nil {
		return nil, err
	}
	t, err := amount(total)
	if err != nil {
		return nil, err
	}
	d, err := unsigned(deadline)
	if err != nil {
		return nil, err
	}
	return &domain.Campaign{
		ID:          id,
		Title:       title,
		Creator:     domain.Address(creator),
		Goal:        g,
		Deadline:    d,
		Token:       domain.Address(tok),
		TotalRaised: t,
	}, nil
}

// metrics decodes the shared metrics columns of campaigns and pools.
func metrics(total string, count, lastAt int64) (*domain.CampaignMetrics, error) {
	t, err := amount(total)
	if err != nil {
		return nil, err
	}
	last, err := unsigned(lastAt)
	if err != nil {
		return nil, err
	}
	if count < 0 || count > int64(^uint32(0)) {
		return nil, fmt.Errorf("%w: contributor count %d", errCorruptRow, count)
	}
	return &domain.CampaignMetrics{TotalRaised: t, ContributorCount: uint32(count), LastDonationAt: last}, nil
}
