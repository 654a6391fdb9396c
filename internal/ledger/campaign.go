package ledger

import (
	"context"
	"errors"
	"fmt"

	"crowdfund-ledger/internal/auth"
	"crowdfund-ledger/internal/domain"
	"crowdfund-ledger/internal/events"
	"crowdfund-ledger/internal/storage"
)

// CampaignParams describes a campaign to create. The creator is the caller.
type CampaignParams struct {
	ID       domain.CampaignID
	Title    string
	Goal     domain.Amount
	Deadline uint64         // unix seconds, must be in the future
	Token    domain.Address // empty selects the configured crowdfunding token
}

// CreateCampaign registers a campaign, charging the creation fee when one is set.
func (e *Engine) CreateCampaign(ctx context.Context, caller auth.Caller, p CampaignParams) error {
	creator := caller.Address
	action := auth.NewAction("create_campaign",
		p.ID.String(), p.Title, p.Goal.String(), u64(p.Deadline), p.Token.String())

	return e.mutate(ctx, "create_campaign", func(ctx context.Context, tx storage.Tx, m *mutation) error {
		s, err := requireNotPaused(ctx, tx)
		if err != nil {
			return err
		}
		if err := e.authorize(ctx, caller, creator, action); err != nil {
			return err
		}

		if p.Title == "" {
			return ErrInvalidTitle
		}
		if !p.Goal.IsPositive() {
			return ErrInvalidGoal
		}
		if p.Deadline <= m.now {
			return ErrInvalidDeadline
		}

		if _, err := tx.Campaigns().Get(ctx, p.ID); err == nil {
			return ErrDuplicateCampaign
		} else if !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("get campaign: %w", err)
		}

		if s.Token.IsZero() {
			return ErrNotInitialized
		}
		campaignToken := p.Token
		if campaignToken.IsZero() {
			campaignToken = s.Token
		}

		if s.CreationFee.IsPositive() {
			balance, err := e.gateway.Balance(ctx, s.Token, creator)
			if err != nil {
				return fmt.Errorf("creator balance: %w", err)
			}
			if balance.LessThan(s.CreationFee) {
				return ErrInsufficientBalance
			}
			if err := m.transfer(ctx, s.Token, creator, e.vault, s.CreationFee); err != nil {
				return err
			}
			m.emit(events.TopicCreationFeePaid, map[string]string{
				"creator": creator.String(),
				"amount":  s.CreationFee.String(),
			})
		}

		c := &domain.Campaign{
			ID:          p.ID,
			Title:       p.Title,
			Creator:     creator,
			Goal:        p.Goal,
			Deadline:    p.Deadline,
			Token:       campaignToken,
			TotalRaised: domain.ZeroAmount(),
		}
		if err := tx.Campaigns().Insert(ctx, c); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				return ErrDuplicateCampaign
			}
			return fmt.Errorf("insert campaign: %w", err)
		}
		if err := tx.Campaigns().PutMetrics(ctx, c.ID, &domain.CampaignMetrics{}); err != nil {
			return fmt.Errorf("put campaign metrics: %w", err)
		}

		m.emit(events.TopicCampaignCreated, map[string]string{
			"id":       c.ID.String(),
			"title":    c.Title,
			"creator":  creator.String(),
			"goal":     c.Goal.String(),
			"deadline": u64(c.Deadline),
			"token":    c.Token.String(),
		})
		return nil
	})
}

// Donate moves amount of asset from the caller into the vault for a campaign.
func (e *Engine) Donate(ctx context.Context, caller auth.Caller, id domain.CampaignID, asset domain.Address, amount domain.Amount) error {
	donor := caller.Address
	action := auth.NewAction("donate", id.String(), asset.String(), amount.String())

	return e.mutate(ctx, "donate", func(ctx context.Context, tx storage.Tx, m *mutation) error {
		if _, err := requireNotPaused(ctx, tx); err != nil {
			return err
		}
		if err := e.authorize(ctx, caller, donor, action); err != nil {
			return err
		}
		if !amount.IsPositive() {
			return ErrInvalidDonationAmount
		}

		c, err := tx.Campaigns().Get(ctx, id)
		if err != nil {
			return notFound(err, ErrCampaignNotFound, "campaign")
		}
		if c.IsExpired(m.now) {
			return ErrCampaignExpired
		}
		if c.IsFunded() {
			return ErrCampaignAlreadyFunded
		}
		if asset != c.Token {
			return ErrTokenTransferFailed.wrap(fmt.Errorf("campaign accepts %s, got %s", c.Token, asset))
		}

		metrics, err := tx.Campaigns().GetMetrics(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			metrics = &domain.CampaignMetrics{}
		} else if err != nil {
			return fmt.Errorf("get campaign metrics: %w", err)
		}

		prior, err := tx.Campaigns().GetContribution(ctx, id, donor)
		firstDonation := errors.Is(err, storage.ErrNotFound)
		if firstDonation {
			prior = &domain.Contribution{CampaignID: id, Contributor: donor}
		} else if err != nil {
			return fmt.Errorf("get contribution: %w", err)
		}

		if c.TotalRaised, err = c.TotalRaised.Add(amount); err != nil {
			return arith(err)
		}
		if metrics.TotalRaised, err = metrics.TotalRaised.Add(amount); err != nil {
			return arith(err)
		}
		if prior.Amount, err = prior.Amount.Add(amount); err != nil {
			return arith(err)
		}
		if firstDonation {
			metrics.ContributorCount++
		}
		metrics.LastDonationAt = m.now

		if err := tx.Campaigns().Update(ctx, c); err != nil {
			return fmt.Errorf("update campaign: %w", err)
		}
		if err := tx.Campaigns().PutMetrics(ctx, id, metrics); err != nil {
			return fmt.Errorf("put campaign metrics: %w", err)
		}
		if err := tx.Campaigns().PutContribution(ctx, prior); err != nil {
			return fmt.Errorf("put contribution: %w", err)
		}

		if err := m.transfer(ctx, asset, donor, e.vault, amount); err != nil {
			return err
		}

		m.emit(events.TopicDonationMade, map[string]string{
			"campaign_id": id.String(),
			"donor":       donor.String(),
			"amount":      amount.String(),
		})
		return nil
	})
}

// GetCampaign returns a campaign. CampaignNotFound when absent.
func (e *Engine) GetCampaign(ctx context.Context, id domain.CampaignID) (*domain.Campaign, error) {
	var out *domain.Campaign
	err := e.view(ctx, func(ctx context.Context, tx storage.Tx) error {
		c, err := tx.Campaigns().Get(ctx, id)
		if err != nil {
			return notFound(err, ErrCampaignNotFound, "campaign")
		}
		out = c
		return nil
	})
	return out, err
}

// GetAllCampaigns returns every campaign id in creation order.
func (e *Engine) GetAllCampaigns(ctx context.Context) ([]domain.CampaignID, error) {
	var ids []domain.CampaignID
	err := e.view(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		ids, err = tx.Campaigns().ListIDs(ctx)
		if err != nil {
			return fmt.Errorf("list campaigns: %w", err)
		}
		return nil
	})
	return ids, err
}

// GetCampaignMetrics returns the aggregate metrics of a campaign.
func (e *Engine) GetCampaignMetrics(ctx context.Context, id domain.CampaignID) (*domain.CampaignMetrics, error) {
	var out *domain.CampaignMetrics
	err := e.view(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		out, err = campaignMetrics(ctx, tx, id)
		return err
	})
	return out, err
}

// GetTotalRaised returns the campaign's running total.
func (e *Engine) GetTotalRaised(ctx context.Context, id domain.CampaignID) (domain.Amount, error) {
	c, err := e.GetCampaign(ctx, id)
	if err != nil {
		return domain.Amount{}, err
	}
	return c.TotalRaised, nil
}

// GetCampaignGoal returns the campaign goal.
func (e *Engine) GetCampaignGoal(ctx context.Context, id domain.CampaignID) (domain.Amount, error) {
	c, err := e.GetCampaign(ctx, id)
	if err != nil {
		return domain.Amount{}, err
	}
	return c.Goal, nil
}

// GetDonorCount returns the number of distinct donors.
func (e *Engine) GetDonorCount(ctx context.Context, id domain.CampaignID) (uint32, error) {
	m, err := e.GetCampaignMetrics(ctx, id)
	if err != nil {
		return 0, err
	}
	return m.ContributorCount, nil
}

// GetCampaignBalance returns the total recorded in campaign metrics.
func (e *Engine) GetCampaignBalance(ctx context.Context, id domain.CampaignID) (domain.Amount, error) {
	m, err := e.GetCampaignMetrics(ctx, id)
	if err != nil {
		return domain.Amount{}, err
	}
	return m.TotalRaised, nil
}

// IsCampaignCompleted reports whether the balance has reached the goal.
func (e *Engine) IsCampaignCompleted(ctx context.Context, id domain.CampaignID) (bool, error) {
	var done bool
	err := e.view(ctx, func(ctx context.Context, tx storage.Tx) error {
		c, err := tx.Campaigns().Get(ctx, id)
		if err != nil {
			return notFound(err, ErrCampaignNotFound, "campaign")
		}
		m, err := campaignMetrics(ctx, tx, id)
		if err != nil {
			return err
		}
		done = m.TotalRaised.GreaterThanOrEqual(c.Goal)
		return nil
	})
	return done, err
}

// GetContribution returns one donor's cumulative amount, zero when the donor never gave.
func (e *Engine) GetContribution(ctx context.Context, id domain.CampaignID, contributor domain.Address) (domain.Amount, error) {
	var amount domain.Amount
	err := e.view(ctx, func(ctx context.Context, tx storage.Tx) error {
		if _, err := tx.Campaigns().Get(ctx, id); err != nil {
			return notFound(err, ErrCampaignNotFound, "campaign")
		}
		c, err := tx.Campaigns().GetContribution(ctx, id, contributor)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get contribution: %w", err)
		}
		amount = c.Amount
		return nil
	})
	return amount, err
}

// campaignMetrics checks the campaign exists and returns its metrics, zero when absent.
func campaignMetrics(ctx context.Context, tx storage.Tx, id domain.CampaignID) (*domain.CampaignMetrics, error) {
	if _, err := tx.Campaigns().Get(ctx, id); err != nil {
		return nil, notFound(err, ErrCampaignNotFound, "campaign")
	}
	m, err := tx.Campaigns().GetMetrics(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return &domain.CampaignMetrics{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign metrics: %w", err)
	}
	return m, nil
}
