package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"1.0":              "1.0.0",
		"1.0.0.0":          "1.0.0",
		"1.2.3.4":          "1.2.3.4",
		"01.02.03":         "1.2.3",
		"2.0.0-beta1":      "2.0.0-beta1",
		"1.0.0-rc.1+build": "1.0.0-rc.1",
	}
	for in, want := range cases {
		got, err := Normalize(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestParseRejects(t *testing.T) {
	for _, in := range []string{"", "abc", "1.2.3.4.5", "v1.0.0"} {
		_, err := Parse(in)
		assert.Error(t, err, in)
	}
}

func TestPrereleaseAndSemVer2(t *testing.T) {
	p, err := Parse("1.0.0-beta")
	require.NoError(t, err)
	assert.True(t, p.IsPrerelease())
	assert.False(t, p.IsSemVer2())

	p, err = Parse("1.0.0-beta.2")
	require.NoError(t, err)
	assert.True(t, p.IsSemVer2())

	p, err = Parse("1.0.0")
	require.NoError(t, err)
	assert.False(t, p.IsPrerelease())
}

func TestCompare(t *testing.T) {
	assert.Equal(t, -1, Compare("1.0.0-beta", "1.0.0"))
	assert.Equal(t, 1, Compare("2.0.0", "1.9.9"))
	assert.Equal(t, 0, Compare("1.0", "1.0.0"))
	assert.Equal(t, -1, Compare("garbage", "0.0.1"))
	assert.Equal(t, "1.0.0-beta", Key("1.0.0-BETA"))
	assert.Equal(t, "1.0.0", Key("1.0"))
}
