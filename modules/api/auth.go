package api

import (
	"github.com/kathanp/emailbot/handler"
	"github.com/kathanp/emailbot/svc/account"
)

func (a *API) register(ctx handler.Context, req account.RegisterRequest) handler.Response {
	s, err := a.deps.Accounts.Register(ctx, req)
	if err != nil {
		return handler.Error(err)
	}
	return handler.Created(newSessionView(s))
}

func (a *API) login(ctx handler.Context, req account.LoginRequest) handler.Response {
	s, err := a.deps.Accounts.Login(ctx, req)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(newSessionView(s))
}

func (a *API) googleAuthURL(ctx handler.Context, _ struct{}) handler.Response {
	url, err := a.deps.Accounts.GoogleAuthURL(ctx)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(map[string]string{"auth_url": url})
}

// googleCallback completes the redirect from Google's consent screen.
func (a *API) googleCallback(ctx handler.Context, _ struct{}) handler.Response {
	q := ctx.Request().URL.Query()
	if reason := q.Get("error"); reason != "" {
		return handler.Error(account.ErrInvalidCode)
	}
	s, err := a.deps.Accounts.GoogleCallback(ctx, q.Get("code"), q.Get("state"))
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(newSessionView(s))
}

func (a *API) me(ctx handler.Context, _ struct{}) handler.Response {
	u, err := a.deps.Accounts.User(ctx, userID(ctx))
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(newUserView(u))
}
