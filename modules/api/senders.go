package api

import (
	"github.com/kathanp/emailbot/handler"
	"github.com/kathanp/emailbot/svc/senders"
	"github.com/kathanp/emailbot/svc/store"
)

func (a *API) addSender(ctx handler.Context, req senders.AddRequest) handler.Response {
	s, err := a.deps.Senders.Add(ctx, userID(ctx), req)
	if err != nil {
		return handler.Error(err)
	}
	return handler.Created(newSenderView(s))
}

func (a *API) listSenders(ctx handler.Context, _ struct{}) handler.Response {
	list, err := a.deps.Senders.List(ctx, userID(ctx))
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(viewAll(list, func(s *store.Sender) senderView { return newSenderView(s) }))
}

func (a *API) senderProviders(ctx handler.Context, _ struct{}) handler.Response {
	kinds := a.deps.Senders.Kinds()
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return handler.JSON(out)
}

func (a *API) refreshSender(ctx handler.Context, req idRequest) handler.Response {
	s, err := a.deps.Senders.Refresh(ctx, userID(ctx), req.ID)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(newSenderView(s))
}

func (a *API) deleteSender(ctx handler.Context, req idRequest) handler.Response {
	if err := a.deps.Senders.Delete(ctx, userID(ctx), req.ID); err != nil {
		return handler.Error(err)
	}
	return handler.Empty()
}
