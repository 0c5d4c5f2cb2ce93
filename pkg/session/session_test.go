package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "igmonitor/pkg/errors"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestValidateHardFailures(t *testing.T) {
	tests := []struct {
		name    string
		content string
		missing bool
		want    Reason
	}{
		{name: "missing file", missing: true, want: ReasonMissingFile},
		{name: "not json", content: "sessionid=abc", want: ReasonMalformedJSON},
		{name: "array", content: `["username"]`, want: ReasonMalformedJSON},
		{name: "null", content: `null`, want: ReasonMalformedJSON},
		{name: "empty object", content: `{}`, want: ReasonMissingField},
		{name: "blank username", content: `{"username":"  "}`, want: ReasonMissingField},
		{name: "non-string username", content: `{"username":42}`, want: ReasonMissingField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "absent.json")
			if !tt.missing {
				path = writeFile(t, tt.content)
			}

			cred, warnings, err := Validate(path)
			require.Error(t, err)
			assert.Nil(t, cred)
			assert.Nil(t, warnings)
			assert.Equal(t, tt.want, ReasonOf(err))
			assert.True(t, errs.Is(err, errs.ErrorTypeSessionInvalid))
		})
	}
}

func TestMissingFieldNamesUsername(t *testing.T) {
	_, _, err := Validate(writeFile(t, `{}`))
	var v *ValidationError
	require.ErrorAs(t, err, &v)
	assert.Equal(t, "username", v.Field)
	assert.Contains(t, err.Error(), `"username"`)
}

func TestValidateFreshCredential(t *testing.T) {
	path := writeFile(t, `{"username":"alice","sessionid":"sid","csrftoken":"tok","user_id":12345,"extra":true}`)

	cred, warnings, err := Validate(path)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, "alice", cred.Username)
	assert.Equal(t, "sid", cred.SessionID)
	assert.Equal(t, "tok", cred.CSRFToken)
	assert.Equal(t, "12345", cred.UserID)
	assert.True(t, cred.HasSession())
	assert.Equal(t, "csrftoken=tok; ds_user_id=12345; sessionid=sid", cred.CookieHeader())
}

func TestValidateStaleIsWarningOnly(t *testing.T) {
	path := writeFile(t, `{"username":"alice"}`)
	old := time.Now().Add(-10 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	cred, warnings, err := Validate(path)
	require.NoError(t, err)
	require.NotNil(t, cred)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Message, "10 days old")
	assert.Greater(t, warnings[0].Age, DefaultMaxAge)
	assert.False(t, cred.HasSession())
}

func TestGateClock(t *testing.T) {
	path := writeFile(t, `{"username":"alice"}`)
	gate := &Gate{MaxAge: time.Hour, Now: func() time.Time { return time.Now().Add(2 * time.Hour) }}

	_, warnings, err := gate.Validate(path)
	require.NoError(t, err)
	assert.Len(t, warnings, 1)
}

func TestCookieFormats(t *testing.T) {
	t.Run("object", func(t *testing.T) {
		cred, _, err := Validate(writeFile(t, `{"username":"a","cookies":{"sessionid":"s1","mid":"m"}}`))
		require.NoError(t, err)
		assert.True(t, cred.HasSession())
		assert.Equal(t, "mid=m; sessionid=s1", cred.CookieHeader())
	})

	t.Run("browser export", func(t *testing.T) {
		cred, _, err := Validate(writeFile(t, `{"username":"a","cookies":[{"name":"sessionid","value":"s2"},{"name":"","value":"x"},"junk"]}`))
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"sessionid": "s2"}, cred.Cookies)
	})

	t.Run("explicit field wins", func(t *testing.T) {
		cred, _, err := Validate(writeFile(t, `{"username":"a","session_id":"top","cookies":{"sessionid":"nested"}}`))
		require.NoError(t, err)
		assert.Equal(t, "sessionid=top", cred.CookieHeader())
	})
}
