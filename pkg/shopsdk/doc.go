/*
Package shopsdk keeps a shop's access token valid and issues signed calls
against the TikTok Shop Open API.

# TokenManager vs Client

The package is organized around two main types:

  - TokenManager: owns the shop's TokenState and refreshes it ahead of expiry
  - Client: signs each call, attaches the access token and retries once after a refresh

Construct one TokenManager per shop and share it:

	store := file.New("token_state.json", nil)
	tokens, err := shopsdk.NewTokenManager(ctx,
		shopsdk.Credentials{AppKey: appKey, AppSecret: appSecret},
		store,
		shopsdk.WithBootstrap(os.Getenv("TTS_ACCESS_TOKEN"), os.Getenv("TTS_REFRESH_TOKEN")),
	)

	client, err := shopsdk.NewClient(shopsdk.ClientConfig{
		AppKey:     appKey,
		AppSecret:  appSecret,
		ShopCipher: shopCipher,
	}, tokens)

	resp, err := client.Post(ctx, "/order/202309/orders/search", body, signx.Params{"page_size": "50"})

# Token Refresh

GetValidToken returns the cached token without network traffic until the
current time reaches expires_at minus 600 seconds. From then on, or when no
access token is held, it exchanges the refresh token at the token endpoint.
The new expiry is the completion time of the refresh plus the declared
lifetime (3600 seconds when none is declared). A refresh token is only
replaced when the endpoint returns a new one.

The new state is saved to the TokenStore before it is used. If saving fails
the refresh is reported as failed and the previous state stays in effect.

# Expiry During a Call

When a call is answered with HTTP 401, platform code 105002, or a 400 whose
message mentions "expired", the Client refreshes and retries the same signed
URL exactly once. If several calls are rejected at the same moment, only the
first refreshes; the others reuse its result. Set Request.NoRetry to report
such a rejection instead.

# Error Handling

Errors are typed and inspected with errors.As:

  - MissingCredentialsError: app credentials, shop, or both tokens absent
  - MissingRefreshTokenError: a refresh is needed but no refresh token is held
  - RefreshHTTPError: the token endpoint returned a non-2xx status
  - RefreshPayloadError: the token endpoint returned no access token
  - RequestFailedError: a business call failed, including signature mismatches

# Thread Safety

TokenManager and Client are safe for concurrent use. Only the refresh
decision and the refresh itself are serialised.
*/
package shopsdk
