package api

import (
	"github.com/kathanp/emailbot/handler"
	"github.com/kathanp/emailbot/svc/store"
	"github.com/kathanp/emailbot/svc/templates"
)

type validateTemplateRequest struct {
	ID     string `json:"-" path:"id" validate:"required"`
	FileID string `json:"file_id" validate:"required"`
}

func (a *API) createTemplate(ctx handler.Context, req templates.CreateRequest) handler.Response {
	t, err := a.deps.Templates.Create(ctx, userID(ctx), req)
	if err != nil {
		return handler.Error(err)
	}
	return handler.Created(newTemplateView(t))
}

func (a *API) listTemplates(ctx handler.Context, _ struct{}) handler.Response {
	list, err := a.deps.Templates.List(ctx, userID(ctx))
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(viewAll(list, func(t *store.Template) templateView { return newTemplateView(t) }))
}

func (a *API) getTemplate(ctx handler.Context, req idRequest) handler.Response {
	t, err := a.deps.Templates.Get(ctx, userID(ctx), req.ID)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(newTemplateView(t))
}

func (a *API) deleteTemplate(ctx handler.Context, req idRequest) handler.Response {
	if err := a.deps.Templates.Deactivate(ctx, userID(ctx), req.ID); err != nil {
		return handler.Error(err)
	}
	return handler.Empty()
}

// validateTemplate reports whether a contact file can fill every placeholder.
// A mismatch is a normal 200 result here; only Start treats it as an error.
func (a *API) validateTemplate(ctx handler.Context, req validateTemplateRequest) handler.Response {
	res, err := a.deps.Templates.ValidateAgainstFile(ctx, userID(ctx), req.ID, req.FileID)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(res)
}
