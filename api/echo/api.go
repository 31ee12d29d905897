// Package echoapi exposes the authorization core over HTTP. It owns only
// translation: query and form parameters in, service calls, wire errors out.
package echoapi

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/fhirhub/smartauth/domain"
	"github.com/fhirhub/smartauth/errors"
	"github.com/fhirhub/smartauth/keys"
	"github.com/fhirhub/smartauth/services"
)

// Server bundles the service layer behind the OAuth2 endpoints.
type Server struct {
	clients  *services.ClientService
	codes    *services.AuthCodeService
	tokens   *services.TokenService
	consents *services.ConsentService
	users    *services.UserService
	keyMgr   *keys.Manager
}

func NewServer(
	clients *services.ClientService,
	codes *services.AuthCodeService,
	tokens *services.TokenService,
	consents *services.ConsentService,
	users *services.UserService,
	keyMgr *keys.Manager,
) *Server {
	return &Server{
		clients:  clients,
		codes:    codes,
		tokens:   tokens,
		consents: consents,
		users:    users,
		keyMgr:   keyMgr,
	}
}

// Register mounts every route on the echo instance.
func (s *Server) Register(e *echo.Echo) {
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	e.GET("/authorize", s.authorize)
	e.POST("/token", s.token)
	e.POST("/register", s.registerClient)
	e.POST("/revoke", s.revoke)
	e.GET("/.well-known/jwks.json", s.jwks)

	e.GET("/healthz", s.health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	admin := e.Group("/admin")
	admin.POST("/users", s.createUser)
	admin.DELETE("/consents", s.revokeConsent)
	admin.POST("/keys/rotate", s.rotateKeys)
}

// writeError maps an internal error to its RFC 6749 wire form and status.
func writeError(c echo.Context, err error) error {
	var oerr *errors.OAuth2Error
	if !errors.As(err, &oerr) {
		oerr = errors.ToOAuth2Error(err)
	}
	status := http.StatusBadRequest
	switch oerr.Code {
	case errors.CodeInvalidClient:
		status = http.StatusUnauthorized
	case errors.CodeServerError:
		log.Error().Err(err).Msg("request failed")
		status = http.StatusInternalServerError
	}
	return c.JSON(status, oerr)
}

// authorize runs the authorization leg. Upstream middleware (out of scope
// here) authenticates the user and sets the subject header; this handler
// binds the grant and redirects back with a code.
func (s *Server) authorize(c echo.Context) error {
	subject := c.Request().Header.Get("X-Authenticated-Subject")
	if subject == "" {
		return writeError(c, errors.NewInvalidRequest("no authenticated subject"))
	}
	if rt := c.QueryParam("response_type"); rt != "code" {
		return writeError(c, errors.NewInvalidRequest("response_type must be code"))
	}
	clientID := c.QueryParam("client_id")
	redirectURI := c.QueryParam("redirect_uri")
	state := c.QueryParam("state")

	var scopes []string
	if raw := c.QueryParam("scope"); raw != "" {
		scopes = strings.Fields(raw)
	}

	code, err := s.codes.Issue(c.Request().Context(), clientID, subject, redirectURI,
		scopes, c.QueryParam("code_challenge"), c.QueryParam("code_challenge_method"))
	if err != nil {
		// Client or redirect problems never redirect: the URI is not trusted.
		if errors.Is(err, errors.ErrClientInvalid) {
			return writeError(c, err)
		}
		oerr := errors.ToOAuth2Error(err)
		var wire *errors.OAuth2Error
		if errors.As(err, &wire) {
			oerr = wire
		}
		loc, _ := url.Parse(redirectURI)
		q := loc.Query()
		q.Set("error", oerr.Code)
		if state != "" {
			q.Set("state", state)
		}
		loc.RawQuery = q.Encode()
		return c.Redirect(http.StatusFound, loc.String())
	}

	loc, _ := url.Parse(redirectURI)
	q := loc.Query()
	q.Set("code", code)
	if state != "" {
		q.Set("state", state)
	}
	loc.RawQuery = q.Encode()
	return c.Redirect(http.StatusFound, loc.String())
}

// clientCredentials pulls client authentication from HTTP Basic or the form
// body, in that order.
func clientCredentials(c echo.Context) (id, secret string) {
	if user, pass, ok := c.Request().BasicAuth(); ok {
		id, _ = url.QueryUnescape(user)
		secret, _ = url.QueryUnescape(pass)
		return id, secret
	}
	return c.FormValue("client_id"), c.FormValue("client_secret")
}

func (s *Server) token(c echo.Context) error {
	ctx := c.Request().Context()
	clientID, clientSecret := clientCredentials(c)

	var (
		resp *services.TokenResponse
		err  error
	)
	switch c.FormValue("grant_type") {
	case "authorization_code":
		resp, err = s.tokens.ExchangeCode(ctx,
			c.FormValue("code"),
			c.FormValue("code_verifier"),
			c.FormValue("redirect_uri"),
			clientID, clientSecret)
	case "refresh_token":
		resp, err = s.tokens.Refresh(ctx, c.FormValue("refresh_token"), clientID, clientSecret)
	default:
		return writeError(c, &errors.OAuth2Error{Code: "unsupported_grant_type"})
	}
	if err != nil {
		return writeError(c, err)
	}

	c.Response().Header().Set("Cache-Control", "no-store")
	c.Response().Header().Set("Pragma", "no-cache")
	return c.JSON(http.StatusOK, tokenJSON(resp))
}

// tokenJSON flattens the scope list into the space-delimited wire form.
func tokenJSON(resp *services.TokenResponse) map[string]any {
	out := map[string]any{
		"access_token": resp.AccessToken,
		"token_type":   resp.TokenType,
		"expires_in":   resp.ExpiresIn,
	}
	if resp.RefreshToken != "" {
		out["refresh_token"] = resp.RefreshToken
	}
	if len(resp.Scopes) > 0 {
		out["scope"] = strings.Join(resp.Scopes, " ")
	}
	return out
}

type registerRequest struct {
	Name         string   `json:"client_name"`
	PublisherURL string   `json:"publisher_url"`
	Type         string   `json:"client_type"`
	AuthType     string   `json:"authentication_type"`
	LaunchType   string   `json:"launch_type"`
	RedirectURIs []string `json:"redirect_uris"`
	Scopes       []string `json:"scopes"`
	PKCEMethod   string   `json:"pkce_method"`
	DisablePKCE  bool     `json:"disable_pkce"`
}

func (s *Server) registerClient(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, errors.NewInvalidRequest("malformed registration body"))
	}
	reg, err := s.clients.Register(c.Request().Context(), services.ClientRegistration{
		Name:         req.Name,
		PublisherURL: req.PublisherURL,
		Type:         domain.ClientType(req.Type),
		AuthType:     domain.AuthenticationType(req.AuthType),
		LaunchType:   domain.LaunchType(req.LaunchType),
		RedirectURIs: req.RedirectURIs,
		Scopes:       req.Scopes,
		PKCEMethod:   req.PKCEMethod,
		DisablePKCE:  req.DisablePKCE,
	})
	if err != nil {
		return writeError(c, err)
	}

	body := map[string]any{"client": reg.Client}
	if reg.Secret != "" {
		// The only moment the plaintext secret exists outside the client.
		body["client_secret"] = reg.Secret
	}
	return c.JSON(http.StatusCreated, body)
}

// revoke implements RFC 7009: unknown tokens return 200, only client
// authentication failures surface.
func (s *Server) revoke(c echo.Context) error {
	clientID, clientSecret := clientCredentials(c)
	token := c.FormValue("token")
	if token == "" {
		return writeError(c, errors.NewInvalidRequest("token is required"))
	}
	if err := s.tokens.RevokeValue(c.Request().Context(), token, clientID, clientSecret); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusOK)
}

func (s *Server) jwks(c echo.Context) error {
	set, err := s.keyMgr.PublicKeySet(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	c.Response().Header().Set("Cache-Control", "public, max-age=300")
	return c.JSON(http.StatusOK, set)
}

func (s *Server) health(c echo.Context) error {
	if _, err := s.keyMgr.Active(); err != nil {
		// No signing key is a service fault, not a request error.
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "no active signing key"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type createUserRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (s *Server) createUser(c echo.Context) error {
	var req createUserRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, errors.NewInvalidRequest("malformed user body"))
	}
	user, err := s.users.Create(c.Request().Context(), req.Email, req.Role)
	if err != nil {
		if errors.Is(err, errors.ErrDuplicate) {
			return c.JSON(http.StatusConflict, errors.NewInvalidRequest("email already registered"))
		}
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, user)
}

func (s *Server) revokeConsent(c echo.Context) error {
	subject := c.QueryParam("subject")
	clientID := c.QueryParam("client_id")
	if subject == "" || clientID == "" {
		return writeError(c, errors.NewInvalidRequest("subject and client_id are required"))
	}
	if err := s.consents.RevokeGrant(c.Request().Context(), subject, clientID); err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return c.JSON(http.StatusNotFound, errors.NewInvalidRequest("no active grant for pair"))
		}
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) rotateKeys(c echo.Context) error {
	if err := s.keyMgr.Rotate(c.Request().Context()); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
