package frameworks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseShortNames(t *testing.T) {
	cases := map[string]string{
		"net45":                      "net45",
		"NET451":                     "net451",
		"net40-client":               "net4-client",
		"netstandard2.0":             "netstandard2.0",
		"netstandard1.3":             "netstandard1.3",
		"netcoreapp3.1":              "netcoreapp3.1",
		"net6.0":                     "net6.0",
		"net8.0-windows":             "net8.0-windows",
		"uap10.0":                    "uap10.0",
		"wp81":                       "wp81",
		"wpa81":                      "wpa81",
		"monoandroid10":              "monoandroid1",
		"native":                     "native",
		"portable-net45+win8":        "portable-net45+win8",
		".NETFramework,Version=v4.5": "net45",
		".NETStandard,Version=v2.0":  "netstandard2.0",
		".NETCoreApp,Version=v5.0":   "netcoreapp5.0",
		".NETFramework,Version=v6.0": "net6.0",
	}
	for in, want := range cases {
		f, err := Parse(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, f.ShortName(), in)
	}
}

func TestParseUnknown(t *testing.T) {
	for _, in := range []string{"", "foo45", "netstandardx", "portable-net45+bogus", ".Unknown,Version=v1.0"} {
		_, err := Parse(in)
		assert.ErrorIs(t, err, ErrUnknownFramework, in)
	}
}

func TestClassifySkipsUnknown(t *testing.T) {
	known, unknown := Classify("net45|bogus|netstandard2.0|net45")
	assert.Equal(t, []string{"net45", "netstandard2.0"}, known)
	assert.Equal(t, []string{"bogus"}, unknown)

	known, unknown = Classify("")
	assert.Nil(t, known)
	assert.Nil(t, unknown)
}
