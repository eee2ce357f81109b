package nfo

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleVideo() Video {
	return Video{
		Bvid:      "BV1nWcSeeEkV",
		Name:      "name",
		Intro:     "intro",
		UpperID:   1,
		UpperName: "upper_name",
		FavTime:   time.Date(2022, 2, 2, 2, 2, 2, 0, time.UTC),
		PubTime:   time.Date(2033, 3, 3, 3, 3, 3, 0, time.UTC),
		Tags:      []string{"tag1", "tag2"},
	}
}

func TestTVShowGolden(t *testing.T) {
	got, err := TVShow(sampleVideo(), TimeFav)
	require.NoError(t, err)

	want := `<?xml version="1.0" encoding="utf-8" standalone="yes"?>
<tvshow>
  <plot><![CDATA[原始视频：<a href="https://www.bilibili.com/video/BV1nWcSeeEkV/">BV1nWcSeeEkV</a><br/><br/>intro]]></plot>
  <outline></outline>
  <title>name</title>
  <actor>
    <name>upper_name</name>
    <role></role>
  </actor>
  <year>2022</year>
  <genre>tag1</genre>
  <genre>tag2</genre>
  <uniqueid type="bilibili">BV1nWcSeeEkV</uniqueid>
  <aired>2022-02-02</aired>
</tvshow>
`
	if diff := cmp.Diff(want, string(got)); diff != "" {
		t.Fatalf("tvshow nfo mismatch (-want +got):\n%s", diff)
	}
}

func TestMovieUsesPubTime(t *testing.T) {
	got, err := Movie(sampleVideo(), TimePub)
	require.NoError(t, err)
	s := string(got)
	assert.Contains(t, s, "<movie>")
	assert.Contains(t, s, "<year>2033</year>")
	assert.Contains(t, s, "<aired>2033-03-03</aired>")
}

func TestDeterministic(t *testing.T) {
	a, err := TVShow(sampleVideo(), TimeFav)
	require.NoError(t, err)
	b, err := TVShow(sampleVideo(), TimeFav)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEpisode(t *testing.T) {
	got, err := Episode("part 3", 3)
	require.NoError(t, err)
	s := string(got)
	assert.Contains(t, s, "<episodedetails>")
	assert.Contains(t, s, "<title>part 3</title>")
	assert.Contains(t, s, "<season>1</season>")
	assert.Contains(t, s, "<episode>3</episode>")
}

func TestPerson(t *testing.T) {
	got, err := Person(12345, time.Date(2022, 2, 2, 2, 2, 2, 0, time.UTC))
	require.NoError(t, err)
	s := string(got)
	assert.Contains(t, s, "<person>")
	assert.Contains(t, s, "<lockdata>false</lockdata>")
	assert.Contains(t, s, "<dateadded>2022-02-02 02:02:02</dateadded>")
	assert.Contains(t, s, "<title>12345</title>")
	assert.Contains(t, s, "<sorttitle>12345</sorttitle>")
}
