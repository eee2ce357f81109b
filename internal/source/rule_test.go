package source

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func input() RuleInput {
	return RuleInput{
		Title:     "【熟肉】第3话 标题",
		Tags:      []string{"动画", "MAD"},
		FavTime:   time.Unix(1700000000, 0),
		PubTime:   time.Unix(1600000000, 0),
		PageCount: 3,
	}
}

func TestEmptyRuleAcceptsEverything(t *testing.T) {
	assert.True(t, CompileRule("").Eval(input()))
	assert.True(t, CompileRule("  ").Eval(input()))
}

func TestMalformedRuleNeverMatches(t *testing.T) {
	assert.False(t, CompileRule("{not json").Eval(input()))
}

func TestBadRegexNeverMatches(t *testing.T) {
	rule := `{"any":[{"all":[{"field":"title","op":"matches_regex","value":"["}]}]}`
	assert.False(t, CompileRule(rule).Eval(input()))
}

func TestStringOps(t *testing.T) {
	cases := []struct {
		rule string
		want bool
	}{
		{`{"any":[{"all":[{"field":"title","op":"contains","value":"熟肉"}]}]}`, true},
		{`{"any":[{"all":[{"field":"title","op":"contains","value":"生肉"}]}]}`, false},
		{`{"any":[{"all":[{"field":"title","op":"prefix","value":"【熟肉】"}]}]}`, true},
		{`{"any":[{"all":[{"field":"title","op":"suffix","value":"标题"}]}]}`, true},
		{`{"any":[{"all":[{"field":"title","op":"icontains","value":"mad"}]}]}`, false},
		{`{"any":[{"all":[{"field":"title","op":"matches_regex","value":"第\\d+话"}]}]}`, true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CompileRule(tc.rule).Eval(input()), tc.rule)
	}
}

func TestTagsAnyMatch(t *testing.T) {
	rule := `{"any":[{"all":[{"field":"tags","op":"icontains","value":"mad"}]}]}`
	assert.True(t, CompileRule(rule).Eval(input()))
	rule = `{"any":[{"all":[{"field":"tags","op":"equals","value":"漫画"}]}]}`
	assert.False(t, CompileRule(rule).Eval(input()))
}

func TestNumericOps(t *testing.T) {
	cases := []struct {
		rule string
		want bool
	}{
		{`{"any":[{"all":[{"field":"page_count","op":"greater_than","number":2}]}]}`, true},
		{`{"any":[{"all":[{"field":"page_count","op":"less_than","number":3}]}]}`, false},
		{`{"any":[{"all":[{"field":"page_count","op":"between","between":[1,5]}]}]}`, true},
		{`{"any":[{"all":[{"field":"fav_time","op":"greater_than","number":1650000000}]}]}`, true},
		{`{"any":[{"all":[{"field":"pub_time","op":"greater_than","number":1650000000}]}]}`, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CompileRule(tc.rule).Eval(input()), tc.rule)
	}
}

func TestNotWrapsOnce(t *testing.T) {
	rule := `{"any":[{"all":[{"field":"title","op":"contains","value":"生肉","not":true}]}]}`
	assert.True(t, CompileRule(rule).Eval(input()))
}

func TestDNFSemantics(t *testing.T) {
	// (title contains 生肉 AND pages > 1) OR (tags contains 动画)
	rule := `{"any":[
		{"all":[
			{"field":"title","op":"contains","value":"生肉"},
			{"field":"page_count","op":"greater_than","number":1}
		]},
		{"all":[{"field":"tags","op":"contains","value":"动画"}]}
	]}`
	assert.True(t, CompileRule(rule).Eval(input()))

	// both groups failing
	rule = `{"any":[
		{"all":[{"field":"title","op":"contains","value":"生肉"}]},
		{"all":[{"field":"tags","op":"equals","value":"漫画"}]}
	]}`
	assert.False(t, CompileRule(rule).Eval(input()))
}
