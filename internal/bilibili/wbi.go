package bilibili

import (
	"context"
	"crypto/md5"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"
)

// WBI request signing. A subset of endpoints require the query string to be
// signed with a "mixin key" derived from two rotating image URLs exposed on
// the nav endpoint.

var wbiMixinTable = [64]int{
	46, 47, 18, 2, 53, 8, 23, 32, 15, 50, 10, 31, 58, 3, 45, 35,
	27, 43, 5, 49, 33, 9, 42, 19, 29, 28, 14, 39, 12, 38, 41, 13,
	37, 48, 7, 16, 24, 55, 40, 61, 26, 17, 0, 1, 60, 51, 30, 4,
	22, 25, 54, 21, 56, 59, 6, 63, 57, 62, 11, 36, 20, 34, 44, 52,
}

const wbiFilteredChars = "!'()*"

// mixinKey permutes the concatenated img+sub key bytes through the fixed
// index table and keeps the first 32 bytes.
func mixinKey(imgKey, subKey string) string {
	raw := imgKey + subKey
	var b strings.Builder
	b.Grow(32)
	for _, idx := range wbiMixinTable {
		if idx < len(raw) {
			b.WriteByte(raw[idx])
		}
	}
	s := b.String()
	if len(s) > 32 {
		s = s[:32]
	}
	return s
}

// keyBasename strips the directory and extension from a wbi image URL,
// leaving the hex key.
func keyBasename(rawURL string) string {
	base := path.Base(rawURL)
	if i := strings.LastIndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	return base
}

// SignWBI signs params in place: values are stripped of the filtered
// characters, wts is appended, keys are sorted ascending, and w_rid is the
// md5 of the encoded query concatenated with the mixin key. The returned
// string is the final encoded query (spaces as %20).
func SignWBI(params url.Values, mixin string, unix int64) string {
	for k, vs := range params {
		for i, v := range vs {
			vs[i] = stripFiltered(v)
		}
		params[k] = vs
	}
	params.Set("wts", fmt.Sprintf("%d", unix))

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(queryEscape(k))
		b.WriteByte('=')
		b.WriteString(queryEscape(params.Get(k)))
	}
	query := b.String()

	sum := md5.Sum([]byte(query + mixin))
	rid := fmt.Sprintf("%x", sum)
	params.Set("w_rid", rid)
	return query + "&w_rid=" + rid
}

func stripFiltered(v string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(wbiFilteredChars, r) {
			return -1
		}
		return r
	}, v)
}

// queryEscape is url.QueryEscape with %20 for spaces, as the upstream's
// signer expects.
func queryEscape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// RefreshMixinKey fetches the nav endpoint and swaps in a fresh mixin key.
// Called once per cycle by the scheduler.
func (c *Client) RefreshMixinKey(ctx context.Context) error {
	var data struct {
		WbiImg struct {
			ImgURL string `json:"img_url"`
			SubURL string `json:"sub_url"`
		} `json:"wbi_img"`
	}
	if err := c.GetJSON(ctx, c.endpoint("/x/web-interface/nav"), nil, &data); err != nil {
		return fmt.Errorf("wbi key fetch: %w", err)
	}
	key := mixinKey(keyBasename(data.WbiImg.ImgURL), keyBasename(data.WbiImg.SubURL))
	c.mixin.Store(&key)
	return nil
}

// MixinKey returns the current mixin key snapshot, or "" before the first
// refresh.
func (c *Client) MixinKey() string {
	if p := c.mixin.Load(); p != nil {
		return *p
	}
	return ""
}
