package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"crowdfund-ledger/internal/domain"
	"crowdfund-ledger/internal/events"
	"crowdfund-ledger/internal/ledger"
)

// maxEventsLimit caps GET /v1/events.
const maxEventsLimit = 1000

// GET /health
func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GET /v1/settings
func (s *Server) getSettings(c *gin.Context) {
	st, err := s.ledger.GetSettings(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, settingsView{
		Admin:       st.Admin,
		Initialized: st.IsInitialized(),
		Token:       st.Token,
		CreationFee: st.CreationFee,
		Paused:      st.Paused,
		Vault:       s.ledger.Vault(),
		Now:         s.ledger.Now(),
	})
}

// GET /v1/emergency
func (s *Server) getEmergency(c *gin.Context) {
	w, err := s.ledger.GetEmergencyWithdrawal(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	if w == nil {
		s.fail(c, ledger.ErrEmergencyWithdrawalNotRequested)
		return
	}
	c.JSON(http.StatusOK, emergencyView{
		Recipient:   w.Recipient,
		Token:       w.Token,
		Amount:      w.Amount,
		RequestedAt: w.RequestedAt,
		UnlocksAt:   w.UnlocksAt(ledger.EmergencyWithdrawalDelay),
		Executed:    w.Executed,
	})
}

// GET /v1/campaigns
func (s *Server) listCampaigns(c *gin.Context) {
	ids, err := s.ledger.GetAllCampaigns(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	if ids == nil {
		ids = []domain.CampaignID{}
	}
	c.JSON(http.StatusOK, gin.H{"campaigns": ids})
}

// GET /v1/campaigns/:id
func (s *Server) getCampaign(c *gin.Context) {
	id, ok := campaignParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	camp, err := s.ledger.GetCampaign(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	completed, err := s.ledger.IsCampaignCompleted(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, campaignView{
		ID:          camp.ID,
		Title:       camp.Title,
		Creator:     camp.Creator,
		Goal:        camp.Goal,
		Deadline:    camp.Deadline,
		Token:       camp.Token,
		TotalRaised: camp.TotalRaised,
		Completed:   completed,
	})
}

// GET /v1/campaigns/:id/metrics
func (s *Server) getCampaignMetrics(c *gin.Context) {
	id, ok := campaignParam(c)
	if !ok {
		return
	}
	m, err := s.ledger.GetCampaignMetrics(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newMetricsView(m.TotalRaised, m.ContributorCount, m.LastDonationAt))
}

// GET /v1/campaigns/:id/contributions/:address
func (s *Server) getContribution(c *gin.Context) {
	id, ok := campaignParam(c)
	if !ok {
		return
	}
	contributor, ok := addressParam(c)
	if !ok {
		return
	}
	amount, err := s.ledger.GetContribution(c.Request.Context(), id, contributor)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, contributionView{Contributor: contributor, Amount: amount})
}

// GET /v1/pools/:id
func (s *Server) getPool(c *gin.Context) {
	poolID, ok := poolParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	p, err := s.ledger.GetPool(ctx, poolID)
	if err != nil {
		s.fail(c, err)
		return
	}
	state, err := s.ledger.GetPoolState(ctx, poolID)
	if err != nil {
		s.fail(c, err)
		return
	}

	view := poolView{
		ID:           p.ID,
		Name:         p.Name,
		TargetAmount: p.TargetAmount,
		IsPrivate:    p.IsPrivate,
		Duration:     p.Duration,
		CreatedAt:    p.CreatedAt,
		State:        state,
	}
	if p.HasDeadline() {
		view.Deadline = p.Deadline()
	}
	c.JSON(http.StatusOK, view)
}

// GET /v1/pools/:id/metadata
func (s *Server) getPoolMetadata(c *gin.Context) {
	poolID, ok := poolParam(c)
	if !ok {
		return
	}
	md, err := s.ledger.GetPoolMetadata(c.Request.Context(), poolID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, metadataView{
		Description: md.Description,
		ExternalURL: md.ExternalURL,
		ImageHash:   md.ImageHash,
	})
}

// GET /v1/pools/:id/metrics
func (s *Server) getPoolMetrics(c *gin.Context) {
	poolID, ok := poolParam(c)
	if !ok {
		return
	}
	m, err := s.ledger.GetPoolMetrics(c.Request.Context(), poolID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newMetricsView(m.TotalRaised, m.ContributorCount, m.LastDonationAt))
}

// GET /v1/pools/:id/multisig
func (s *Server) getMultiSig(c *gin.Context) {
	poolID, ok := poolParam(c)
	if !ok {
		return
	}
	cfg, err := s.ledger.GetMultiSigConfig(c.Request.Context(), poolID)
	if err != nil {
		s.fail(c, err)
		return
	}
	if cfg == nil {
		notFound(c, "pool has no multisig config")
		return
	}
	c.JSON(http.StatusOK, multiSigView{RequiredSignatures: cfg.RequiredSignatures, Signers: cfg.Signers})
}

// GET /v1/pools/:id/contributions/:address
func (s *Server) getPoolContribution(c *gin.Context) {
	poolID, ok := poolParam(c)
	if !ok {
		return
	}
	contributor, ok := addressParam(c)
	if !ok {
		return
	}
	rec, err := s.ledger.GetPoolContribution(c.Request.Context(), poolID, contributor)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, contributionView{Contributor: contributor, Amount: rec.Amount, Asset: rec.Asset})
}

// GET /v1/events?topic=&since=&limit=
func (s *Server) listEvents(c *gin.Context) {
	f := events.Filter{Topic: c.Query("topic"), Limit: 100}

	if v := c.Query("since"); v != "" {
		since, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			badRequest(c, "since must be unix seconds")
			return
		}
		f.Since = since
	}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 || limit > maxEventsLimit {
			badRequest(c, "limit must be between 1 and "+strconv.Itoa(maxEventsLimit))
			return
		}
		f.Limit = limit
	}

	list, err := s.events.List(c.Request.Context(), f)
	if err != nil {
		s.fail(c, err)
		return
	}
	if list == nil {
		list = []events.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"events": list})
}

func campaignParam(c *gin.Context) (domain.CampaignID, bool) {
	id, err := domain.ParseCampaignID(c.Param("id"))
	if err != nil {
		badRequest(c, err.Error())
		return id, false
	}
	return id, true
}

func poolParam(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, "pool id must be a positive integer")
		return 0, false
	}
	return id, true
}

func addressParam(c *gin.Context) (domain.Address, bool) {
	addr := domain.Address(c.Param("address"))
	if addr.IsZero() {
		badRequest(c, "address is required")
		return "", false
	}
	return addr, true
}
