package bilibili

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBvidToAid(t *testing.T) {
	cases := map[string]int64{
		"BV1Tr421n746": 1401752220,
		"BV1sH4y1s7fe": 1051892992,
	}
	for bvid, want := range cases {
		got, err := BvidToAid(bvid)
		require.NoError(t, err, bvid)
		assert.Equal(t, want, got, bvid)
	}
}

func TestAvidRoundTrip(t *testing.T) {
	for _, bvid := range []string{"BV1Tr421n746", "BV1sH4y1s7fe", "BV1nWcSeeEkV"} {
		aid, err := BvidToAid(bvid)
		require.NoError(t, err)
		assert.Equal(t, bvid, AidToBvid(aid))
	}
}

func TestBvidToAidRejectsMalformed(t *testing.T) {
	for _, bad := range []string{"", "BV123", "AV1Tr421n746", "BV1Tr421n74!"} {
		_, err := BvidToAid(bad)
		assert.Error(t, err, bad)
	}
}
