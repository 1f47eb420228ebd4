package tableau

import (
	"context"
	"log/slog"
	"net/http"

	"git.home.luguber.info/inful/tabbackup/internal/foundation/errors"
	"git.home.luguber.info/inful/tabbackup/internal/logfields"
)

// ServerInfo queries /serverinfo on the discovery version. No session is required.
func (c *Client) ServerInfo(ctx context.Context) (ServerInfo, error) {
	var resp serverInfoResponse
	err := c.do(ctx, func() (*http.Request, error) {
		return c.newRequest(ctx, http.MethodGet, discoveryVersion, "serverinfo", nil)
	}, &resp)
	if err != nil {
		return ServerInfo{}, err
	}
	return ServerInfo{
		ProductVersion: resp.ServerInfo.ProductVersion.Value,
		Build:          resp.ServerInfo.ProductVersion.Build,
		RESTAPIVersion: resp.ServerInfo.RESTAPIVersion,
	}, nil
}

// ResolveVersion returns the configured API version, discovering and caching the
// server's own version when none was configured.
func (c *Client) ResolveVersion(ctx context.Context) (string, error) {
	if c.apiVersion != "" {
		return c.apiVersion, nil
	}
	info, err := c.ServerInfo(ctx)
	if err != nil {
		return "", err
	}
	if info.RESTAPIVersion == "" {
		return "", errors.NewError(errors.CategoryServer, "server did not report a REST API version").
			WithContext("url", c.serverURL).
			Build()
	}
	c.apiVersion = info.RESTAPIVersion
	slog.Info("Discovered server API version",
		slog.String("api_version", info.RESTAPIVersion),
		slog.String("product_version", info.ProductVersion))
	return c.apiVersion, nil
}

// SignIn authenticates user against the site with the given content URL (empty for
// the default site) and makes the resulting session current. The password is sent
// in the request body only; it never appears in errors or logs.
func (c *Client) SignIn(ctx context.Context, user, password, contentURL string) (Session, error) {
	version, err := c.ResolveVersion(ctx)
	if err != nil {
		return Session{}, err
	}

	body := signInRequest{Credentials: signInCredentials{
		Name:     user,
		Password: password,
		Site:     siteObject{ContentURL: contentURL},
	}}
	var resp signInResponse
	err = c.do(ctx, func() (*http.Request, error) {
		req, err := c.newRequest(ctx, http.MethodPost, version, "auth/signin", body)
		if err != nil {
			return nil, err
		}
		req.Header.Del(authHeader)
		return req, nil
	}, &resp)
	if err != nil {
		if ce, ok := errors.AsClassified(err); ok && ce.Category() == errors.CategoryAuth {
			return Session{}, errors.AuthError("sign-in rejected").
				WithCause(err).
				WithContext("user", user).
				WithContext("site", contentURL).
				Build()
		}
		return Session{}, err
	}
	if resp.Credentials.Token == "" {
		return Session{}, errors.AuthError("sign-in returned no session token").
			WithContext("user", user).
			WithContext("site", contentURL).
			Build()
	}

	s := Session{
		Token:      resp.Credentials.Token,
		SiteID:     resp.Credentials.Site.ID,
		ContentURL: resp.Credentials.Site.ContentURL,
		UserID:     resp.Credentials.User.ID,
	}
	c.setSession(s)
	slog.Debug("Signed in", logfields.User(user), logfields.SiteURL(contentURL))
	return s, nil
}

// SignOut ends the current session. Without a session it is a no-op. The local
// session is cleared even when the server call fails.
func (c *Client) SignOut(ctx context.Context) error {
	if c.Session().Token == "" {
		return nil
	}
	defer c.setSession(Session{})

	version, err := c.ResolveVersion(ctx)
	if err != nil {
		return err
	}
	return c.do(ctx, func() (*http.Request, error) {
		return c.newRequest(ctx, http.MethodPost, version, "auth/signout", nil)
	}, nil)
}

func (c *Client) requireSession() (Session, error) {
	s := c.Session()
	if s.Token == "" {
		return Session{}, errors.AuthError("not signed in").Build()
	}
	return s, nil
}
