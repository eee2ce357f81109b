package bilibili

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
	"net/url"
	"regexp"
	"time"
)

// Cookie refresh handshake. The upstream rotates SESSDATA periodically; when
// cookie/info reports refresh=true the client walks a five-step protocol and
// only commits the new credential after the final confirm succeeds.

// Fixed platform key for deriving the correspond path, published as a JWK
// with e=AQAB.
const correspondModulus = "y4HdjgJHBlbaBN04VERG4qNBIFHP6a3GozCl75AihQloSWCXC5HDNgyinEnhaQ_4-gaMud_GF50elYXLlCToR9se9Z8z433U3KjM-3Yx7ptKkmQNAMggQwAVKgq3zYAoidNEWuxpkY_mAitTSRLnsJW-NCTa0bqBFF6Wm1MxgfE"

var correspondNameRe = regexp.MustCompile(`<div id="1-name">(.+?)</div>`)

func correspondKey() (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(correspondModulus)
	if err != nil {
		return nil, fmt.Errorf("correspond key: %w", err)
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: 65537}, nil
}

// CorrespondPath encrypts "refresh_<ms>" with RSA-OAEP-SHA256 under the
// platform key and returns the lowercase hex ciphertext.
func CorrespondPath(msEpoch int64) (string, error) {
	key, err := correspondKey()
	if err != nil {
		return "", err
	}
	plain := fmt.Sprintf("refresh_%d", msEpoch)
	cipher, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, key, []byte(plain), nil)
	if err != nil {
		return "", fmt.Errorf("correspond path: %w", err)
	}
	return hex.EncodeToString(cipher), nil
}

// TryRefreshCredential runs the refresh handshake if the upstream asks for
// it. It returns the committed credential and whether it changed; any step
// failing leaves the old credential in place.
func (c *Client) TryRefreshCredential(ctx context.Context) (*Credential, bool, error) {
	old := c.cred.Load()
	if old.Empty() {
		return old, false, ErrUnauthenticated
	}

	// step 1: does the upstream want a refresh at all
	var info struct {
		Refresh   bool  `json:"refresh"`
		Timestamp int64 `json:"timestamp"`
	}
	q := url.Values{"csrf": {old.BiliJct}}
	if err := c.GetJSON(ctx, c.passport("/x/passport-login/web/cookie/info"), q, &info); err != nil {
		return old, false, fmt.Errorf("cookie info: %w", err)
	}
	if !info.Refresh {
		return old, false, nil
	}

	// step 2: correspond path from the current ms epoch
	path, err := CorrespondPath(time.Now().UnixMilli())
	if err != nil {
		return old, false, err
	}

	// step 3: scrape the refresh csrf out of the correspond page
	page, err := c.GetBytes(ctx, c.www("/correspond/1/"+path), nil)
	if err != nil {
		return old, false, fmt.Errorf("correspond page: %w", err)
	}
	m := correspondNameRe.FindSubmatch(page)
	if m == nil {
		return old, false, fmt.Errorf("correspond page: refresh csrf not found")
	}
	refreshCsrf := string(m[1])

	// step 4: the refresh itself; new cookies arrive via Set-Cookie and the
	// new refresh token in the body
	form := url.Values{
		"csrf":          {old.BiliJct},
		"refresh_csrf":  {refreshCsrf},
		"source":        {"main_web"},
		"refresh_token": {old.AcTimeValue},
	}
	var refreshed struct {
		RefreshToken string `json:"refresh_token"`
	}
	resp, err := c.PostForm(ctx, c.passport("/x/passport-login/web/cookie/refresh"), form, &refreshed)
	if err != nil {
		return old, false, fmt.Errorf("cookie refresh: %w", err)
	}

	next := &Credential{Buvid3: old.Buvid3, AcTimeValue: refreshed.RefreshToken}
	for _, ck := range resp.Cookies() {
		switch ck.Name {
		case "SESSDATA":
			next.SessData = ck.Value
		case "bili_jct":
			next.BiliJct = ck.Value
		case "DedeUserID":
			next.DedeUserID = ck.Value
		}
	}
	if next.SessData == "" || next.BiliJct == "" {
		return old, false, fmt.Errorf("cookie refresh: incomplete Set-Cookie response")
	}

	// step 5: confirm with the new csrf, retiring the old token. The confirm
	// must be issued under the new cookies.
	c.cred.Store(next)
	confirm := url.Values{
		"csrf":          {next.BiliJct},
		"refresh_token": {old.AcTimeValue},
	}
	if _, err := c.PostForm(ctx, c.passport("/x/passport-login/web/confirm/refresh"), confirm, nil); err != nil {
		c.cred.Store(old)
		return old, false, fmt.Errorf("confirm refresh: %w", err)
	}
	return next, true, nil
}
