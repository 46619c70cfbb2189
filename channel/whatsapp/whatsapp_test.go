package whatsapp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	path     string
	user     string
	pass     string
	form     url.Values
	hasBasic bool
}

func fakeTwilio(t *testing.T, status int, reply string) (*httptest.Server, *capturedRequest) {
	t.Helper()

	got := &capturedRequest{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.path = r.URL.Path
		got.user, got.pass, got.hasBasic = r.BasicAuth()
		assert.NoError(t, r.ParseForm())
		got.form = r.PostForm

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)

	return srv, got
}

func newTestChannel(t *testing.T, baseURL string) *Channel {
	t.Helper()

	c, err := New("AC123", "secret", "+14155238886", func(o *Options) { o.BaseURL = baseURL })
	require.NoError(t, err)

	return c
}

func TestNew_RequiresCredentials(t *testing.T) {
	_, err := New("", "secret", "+1")
	assert.Error(t, err)

	_, err = New("AC1", "", "+1")
	assert.Error(t, err)

	_, err = New("AC1", "secret", "")
	assert.Error(t, err)

	c, err := New("AC1", "secret", "whatsapp:+1")
	require.NoError(t, err)
	assert.Equal(t, "whatsapp:+1", c.From())
}

func TestSend(t *testing.T) {
	srv, got := fakeTwilio(t, http.StatusCreated, `{"sid":"SM42","status":"queued"}`)
	c := newTestChannel(t, srv.URL)

	sid, err := c.Send(context.Background(), "+15550001", "Hello there")
	require.NoError(t, err)
	assert.Equal(t, "SM42", sid)

	assert.Equal(t, "/2010-04-01/Accounts/AC123/Messages.json", got.path)
	assert.True(t, got.hasBasic)
	assert.Equal(t, "AC123", got.user)
	assert.Equal(t, "secret", got.pass)
	assert.Equal(t, "whatsapp:+15550001", got.form.Get("To"))
	assert.Equal(t, "whatsapp:+14155238886", got.form.Get("From"))
	assert.Equal(t, "Hello there", got.form.Get("Body"))
}

func TestSend_KeepsPrefixedRecipient(t *testing.T) {
	srv, got := fakeTwilio(t, http.StatusCreated, `{"sid":"SM1"}`)
	c := newTestChannel(t, srv.URL)

	_, err := c.Send(context.Background(), "whatsapp:+15550001", "x")
	require.NoError(t, err)
	assert.Equal(t, "whatsapp:+15550001", got.form.Get("To"))
}

func TestSend_APIError(t *testing.T) {
	srv, _ := fakeTwilio(t, http.StatusBadRequest, `{"code":21211,"message":"Invalid 'To' Phone Number","status":400}`)
	c := newTestChannel(t, srv.URL)

	_, err := c.Send(context.Background(), "+1", "x")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, 21211, apiErr.Code)
	assert.Equal(t, "Invalid 'To' Phone Number", apiErr.Message)
	assert.Contains(t, apiErr.Error(), "code 21211")
}

func TestSend_NonJSONError(t *testing.T) {
	srv, _ := fakeTwilio(t, http.StatusBadGateway, "upstream down")
	c := newTestChannel(t, srv.URL)

	_, err := c.Send(context.Background(), "+1", "x")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "upstream down", apiErr.Message)
	assert.Equal(t, "twilio api error (HTTP 502): upstream down", apiErr.Error())
}

func TestSend_ContextCanceled(t *testing.T) {
	srv, _ := fakeTwilio(t, http.StatusCreated, `{"sid":"SM1"}`)
	c := newTestChannel(t, srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Send(ctx, "+1", "x")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+15550001", "whatsapp:+15550001"},
		{"whatsapp:+15550001", "whatsapp:+15550001"},
		{"  +1 ", "whatsapp:+1"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), tt.in)
	}
}

func TestParseInbound(t *testing.T) {
	form := url.Values{
		"From":        {"whatsapp:+15550001"},
		"Body":        {"Book a meeting"},
		"MessageSid":  {"SM9"},
		"ProfileName": {"Sam"},
	}

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	in, err := ParseInbound(req)
	require.NoError(t, err)
	assert.Equal(t, "whatsapp:+15550001", in.From)
	assert.Equal(t, "Book a meeting", in.Body)
	assert.Equal(t, "SM9", in.MessageSID)
	assert.Equal(t, "Sam", in.ProfileName)
	assert.True(t, in.Valid())
}

func TestParseInbound_MissingFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("Body=hi"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	in, err := ParseInbound(req)
	require.NoError(t, err)
	assert.False(t, in.Valid())
}

func TestVerify(t *testing.T) {
	c, err := New("AC1", "secret", "+1")
	require.NoError(t, err)

	form := url.Values{"From": {"whatsapp:+2"}, "Body": {"hi"}}
	hookURL := "https://example.com/webhook"

	newReq := func(sig string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if sig != "" {
			req.Header.Set(SignatureHeader, sig)
		}
		return req
	}

	assert.NoError(t, c.Verify(newReq(Sign("secret", hookURL, form)), hookURL))
	assert.ErrorIs(t, c.Verify(newReq(Sign("other", hookURL, form)), hookURL), ErrInvalidSignature)
	assert.ErrorIs(t, c.Verify(newReq(""), hookURL), ErrInvalidSignature)
}

func TestSign_Deterministic(t *testing.T) {
	a := Sign("tok", "https://x/y", url.Values{"B": {"2"}, "A": {"1"}})
	b := Sign("tok", "https://x/y", url.Values{"A": {"1"}, "B": {"2"}})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, Sign("tok", "https://x/z", url.Values{"A": {"1"}, "B": {"2"}}))
}
