/*
Package boxauth implements credential lifecycle management for the Box API:
token acquisition, caching, refresh, downscoping, and revocation.

# Overview

The package is organized around two layers:

  - TokenManager: Stateless grant and revoke calls against the OAuth2 token
    endpoint, plus response validation and the JWT assertion retry policy.
  - Sessions: Stateful token caches (PersistentSession, AppAuthSession) that
    serve valid access tokens on demand, refreshing behind a single-flight
    lock when needed.

Create a TokenManager from your application credentials:

	manager, err := boxauth.NewTokenManager(boxauth.Config{
		APIRootURL:   "https://api.box.com",
		ClientID:     clientID,
		ClientSecret: clientSecret,
	})

# Grants

The TokenManager exposes each OAuth2 grant directly:

	// Exchange an authorization code for a token pair
	info, err := manager.TokensAuthorizationCodeGrant(ctx, code, nil)

	// Mint a new pair from a refresh token
	info, err := manager.TokensRefreshGrant(ctx, refreshToken, nil)

	// Obtain a service-account token for the client itself
	info, err := manager.TokensClientCredentialsGrant(ctx, nil)

	// Obtain tokens for an app user or enterprise via a signed assertion
	info, err := manager.TokensJWTGrant(ctx, jwtx.SubTypeEnterprise, enterpriseID, nil)

The JWT grant requires AppAuth configuration with a signer:

	signer, err := jwtx.NewSignerRS256(keyID, privateKeyPEM)
	manager, err := boxauth.NewTokenManager(boxauth.Config{
		APIRootURL:   "https://api.box.com",
		ClientID:     clientID,
		ClientSecret: clientSecret,
		AppAuth:      &boxauth.AppAuthConfig{Signer: signer},
	})

# Sessions

Sessions cache a token pair and transparently keep it fresh. All session
methods are safe for concurrent use; concurrent refreshes collapse into a
single request whose outcome every waiting caller observes.

PersistentSession manages a user credential obtained elsewhere (for example
via the authorization code flow):

	session, err := manager.NewPersistentSession(info, store)
	token, err := session.AccessToken(ctx, nil)

AppAuthSession manages a server-authentication identity and mints tokens on
demand with the JWT grant:

	session, err := manager.NewAppAuthSession(jwtx.SubTypeUser, appUserID, store)
	token, err := session.AccessToken(ctx, nil)

The TokenStore argument is optional. When present, token state is mirrored
through it so horizontally-scaled instances sharing one credential coordinate
refreshes instead of racing each other; see the tokenstore package for
implementations.

# Token Exchange

Both the TokenManager and sessions can downscope an access token:

	downscoped, err := session.ExchangeToken(ctx,
		[]string{"item_preview"}, "https://api.box.com/2.0/folders/0", nil)

ExchangeOptions optionally attaches a shared link or an actor assertion for
external-user impersonation.

# Error Handling

Failures surface as typed errors:

  - AuthError: The credential was rejected (invalid_grant). The credential
    is dead; re-authorization is required.
  - UnexpectedResponseError: Any other endpoint failure, carrying the status
    code and, when present, the server's error body, Date header, and
    Retry-After hint.

Both types expose MaxRetriesExceeded, set when the JWT grant retry budget
was spent on the failure.

# JWT Grant Retries

TokensJWTGrant retries failures caused by clock skew between client and
authorization server, and rate-limit or server-side errors. Each retry
re-mints the assertion with a fresh jti and an exp anchored to the server's
reported time. The policy is tunable via Config.Retry, including a caller
RetryStrategy that takes full control of retry delays.
*/
package boxauth
