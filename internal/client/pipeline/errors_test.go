package pipeline

import (
	"errors"
	"net/http"
	"testing"

	"github.com/dmitrijs2005/marketkeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
		fields map[string][]string
		msg    string
	}{
		{name: "ok", status: 200},
		{name: "no content", status: 204},
		{name: "unauthorized", status: 401, body: `{"detail":"expired"}`, want: common.ErrAuth},
		{name: "detail string", status: 400, body: `{"detail":"listing is sold"}`, want: common.ErrValidation, msg: "listing is sold"},
		{
			name: "detail list", status: 422,
			body:   `{"detail":[{"loc":["body","price_cents"],"msg":"must be positive"},{"loc":["body","title"],"msg":"required"}]}`,
			want:   common.ErrValidation,
			fields: map[string][]string{"price_cents": {"must be positive"}, "title": {"required"}},
		},
		{
			name: "errors map", status: 400,
			body:   `{"message":"invalid","errors":{"rating":["out of range"]}}`,
			want:   common.ErrValidation,
			fields: map[string][]string{"rating": {"out of range"}},
			msg:    "invalid",
		},
		{name: "not found", status: 404, body: `not here`, want: common.ErrNotFound, msg: "not here"},
		{name: "server", status: 503, want: common.ErrServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Classify(&Response{Status: tt.status, Body: []byte(tt.body)})
			if tt.want == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.want)

			var ve *common.ValidationError
			if errors.As(err, &ve) {
				assert.Equal(t, tt.status, ve.Status)
				assert.Equal(t, tt.fields, ve.Fields)
				assert.Equal(t, tt.msg, ve.Message)
			}
		})
	}
}

func TestClassify_ServerMessage(t *testing.T) {
	err := Classify(&Response{Status: http.StatusInternalServerError})
	require.ErrorIs(t, err, common.ErrServer)
	assert.Contains(t, err.Error(), "Internal Server Error")
}

func TestRequest_CacheKeyAndClone(t *testing.T) {
	r := &Request{Method: "get", Path: "/listings", Query: map[string][]string{"q": {"lamp"}, "category": {"home"}}}
	assert.Equal(t, "GET /listings?category=home&q=lamp", r.CacheKey())

	c := r.Clone()
	c.Query.Set("q", "chair")
	c.Header.Set("X", "1")
	assert.Equal(t, "lamp", r.Query.Get("q"))
	assert.Nil(t, r.Header)
}

func TestResponse_Decode(t *testing.T) {
	var v struct{ N int }
	require.NoError(t, (&Response{Body: []byte(`{"N":3}`)}).Decode(&v))
	assert.Equal(t, 3, v.N)
	require.NoError(t, (&Response{}).Decode(&v))
	require.Error(t, (&Response{Body: []byte(`{`), Request: &Request{Path: "/x"}}).Decode(&v))
}
