package bilibili

import (
	"fmt"
	"strings"
)

// bvid <-> aid conversion. The platform's string id is a base-58 encoding of
// the numeric id under a fixed XOR mask, with two character positions swapped.

const (
	avXorCode  = 23442827791579
	avMaskCode = 2251799813685247
	avMaxAid   = int64(1) << 51

	avAlphabet = "FcwAPNKTMug3GV5Lj7EJnHpWsx4tb8haYeviqBz6rkCy12mUSDQX9RdoZf"
)

// BvidToAid decodes a "BV…" identifier into its numeric aid.
func BvidToAid(bvid string) (int64, error) {
	if len(bvid) != 12 || !strings.HasPrefix(bvid, "BV1") {
		return 0, fmt.Errorf("bilibili: malformed bvid %q", bvid)
	}
	b := []byte(bvid)
	b[3], b[9] = b[9], b[3]
	b[4], b[7] = b[7], b[4]

	var tmp int64
	for _, c := range b[3:] {
		idx := strings.IndexByte(avAlphabet, c)
		if idx < 0 {
			return 0, fmt.Errorf("bilibili: bvid %q has invalid character %q", bvid, c)
		}
		tmp = tmp*58 + int64(idx)
	}
	return (tmp & avMaskCode) ^ avXorCode, nil
}

// AidToBvid encodes a numeric aid into its "BV…" form.
func AidToBvid(aid int64) string {
	b := []byte("BV1000000000")
	tmp := (avMaxAid | aid) ^ avXorCode
	for i := len(b) - 1; tmp > 0 && i >= 3; i-- {
		b[i] = avAlphabet[tmp%58]
		tmp /= 58
	}
	b[3], b[9] = b[9], b[3]
	b[4], b[7] = b[7], b[4]
	return string(b)
}
