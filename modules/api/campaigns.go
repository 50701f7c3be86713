package api

import (
	"net/http"
	"strconv"

	"github.com/kathanp/emailbot/handler"
	"github.com/kathanp/emailbot/pkg/logger"
	"github.com/kathanp/emailbot/svc/campaign"
	"github.com/kathanp/emailbot/svc/store"
)

const (
	defaultCampaignPage = 50
	maxCampaignPage     = 200
)

// startCampaign answers 202 while the campaign is still sending in the
// background and 201 once it has already finished.
func (a *API) startCampaign(ctx handler.Context, req campaign.StartRequest) handler.Response {
	c, err := a.deps.Campaigns.Start(ctx, userID(ctx), req)
	if err != nil {
		if c != nil {
			a.log.WarnContext(ctx, "campaign recorded as failed", logger.CampaignID(c.ID.Hex()))
		}
		return handler.Error(err)
	}
	status := http.StatusCreated
	if c.Status == store.CampaignSending {
		status = http.StatusAccepted
	}
	return handler.JSON(newCampaignView(c), handler.WithJSONStatus(status))
}

func (a *API) listCampaigns(ctx handler.Context, _ struct{}) handler.Response {
	limit := int64(defaultCampaignPage)
	if raw := ctx.Request().URL.Query().Get("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 1 || n > maxCampaignPage {
			return handler.Error(handler.ValidationError{"limit": {"must be between 1 and " + strconv.Itoa(maxCampaignPage)}})
		}
		limit = n
	}
	list, err := a.deps.Campaigns.List(ctx, userID(ctx), limit)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(
		viewAll(list, func(c *store.Campaign) campaignView { return newCampaignView(c) }),
		handler.WithJSONMeta(map[string]any{"limit": limit, "count": len(list)}),
	)
}

func (a *API) getCampaign(ctx handler.Context, req idRequest) handler.Response {
	c, err := a.deps.Campaigns.Get(ctx, userID(ctx), req.ID)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(newCampaignView(c))
}

func (a *API) campaignLogs(ctx handler.Context, req idRequest) handler.Response {
	logs, err := a.deps.Campaigns.Logs(ctx, userID(ctx), req.ID)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(viewAll(logs, func(l *store.EmailLog) emailLogView { return newEmailLogView(l) }))
}
