package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

type sample struct {
	Name  string `json:"name" validate:"required,max=5"`
	Count int    `json:"count" validate:"gte=0"`
}

func TestDecodeJSONBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"abc","count":2}`))
	var dest sample
	require.NoError(t, DecodeJSONBody(req, &dest))
	assert.Equal(t, "abc", dest.Name)
	assert.Equal(t, 2, dest.Count)
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"abc","extra":true}`))
	var dest sample
	err := DecodeJSONBody(req, &dest)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestDecodeJSONBodyReportsFieldsByJSONName(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"","count":-1}`))
	var dest sample
	err := DecodeJSONBody(req, &dest)
	require.Error(t, err)

	details, ok := pkgerrors.As(err).Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "is required", details["name"])
	assert.Contains(t, details, "count")
}

func TestDecodeJSONBodyRequiresBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	var dest sample
	err := DecodeJSONBody(req, &dest)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=10&bad=x&big=500", nil)

	v, err := ParseQueryInt(req, "limit", 20, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 10, v)

	v, err = ParseQueryInt(req, "missing", 20, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 20, v)

	_, err = ParseQueryInt(req, "bad", 20, 1, 100)
	assert.Error(t, err)
	_, err = ParseQueryInt(req, "big", 20, 1, 100)
	assert.Error(t, err)
}

func TestParseURLParamUUID(t *testing.T) {
	id := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rc := chi.NewRouteContext()
	rc.URLParams.Add("id", id.String())
	rc.URLParams.Add("other", "nope")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))

	got, err := ParseURLParamUUID(req, "id")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = ParseURLParamUUID(req, "other")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "abc", SanitizeString("  abcdef ", 3))
	assert.Equal(t, "abc", SanitizeString("abc", 0))
	assert.Equal(t, "çañ", SanitizeString("çañón", 3))
	assert.Equal(t, "ab", SanitizeString("a\x00b\n", 10))
}

type account struct {
	IBAN string `json:"iban" validate:"required,iban"`
}

func TestIBANValidation(t *testing.T) {
	cases := map[string]bool{
		"TR33 0006 1005 1978 6457 8413 26": true,
		"gb82west12345698765432":           true,
		"GB82WEST12345698765431":           false,
		"TR33":                             false,
		"TR33-0006-1005-1978-6457-8413-26": false,
	}
	for iban, ok := range cases {
		err := ValidateStruct(account{IBAN: iban})
		if ok {
			assert.NoError(t, err, iban)
			continue
		}
		require.Error(t, err, iban)
		details := pkgerrors.As(err).Details().(map[string]string)
		assert.Equal(t, "must be a valid IBAN", details["iban"])
	}
}

func TestDecodeJSONBodyRejectsTrailingData(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"abc"}{"name":"def"}`))
	var dest sample
	err := DecodeJSONBody(req, &dest)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
