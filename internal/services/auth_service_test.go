package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitableTimesheet/internal/bitable"
	"bitableTimesheet/internal/bitable/bitabletest"
	"bitableTimesheet/internal/session"
)

var employeeTable = bitable.TableRef{AppToken: "bascnTest", TableID: "tblEmployee"}

const authSecret = "0123456789abcdef0123456789abcdef"

type recordingSender struct {
	to, message string
	err         error
}

func (s *recordingSender) Send(_ context.Context, to, message string) error {
	s.to, s.message = to, message
	return s.err
}

type authFixture struct {
	svc    *AuthService
	clock  *clock
	sender *recordingSender
	issuer *session.Issuer
}

func setupAuth(t *testing.T, cfg AuthConfig) *authFixture {
	t.Helper()
	srv := bitabletest.NewServer(t)
	srv.AddTable(employeeTable, []string{"Name", "Phone"},
		bitabletest.Row{"Name": "Alice", "Phone": "138-0013-8000"},
		bitabletest.Row{"Name": "Bob", "Phone": "+86 139 0013 9000"},
		bitabletest.Row{"Name": "", "Phone": "13700137000"},
	)
	client := srv.NewClient(srv.NewTokenCache(), 0)

	clk := &clock{t: time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC)}
	codes := session.NewCodeStore(session.CodeStoreConfig{}).
		WithClock(clk.Now).
		WithGenerator(func() (string, error) { return "246810", nil })
	issuer := session.NewIssuer([]byte(authSecret), "", 0).WithClock(clk.Now)
	sender := &recordingSender{}
	if cfg.CountryCode == "" {
		cfg.CountryCode = "86"
	}

	directory := NewPhoneDirectory(client, employeeTable, "Phone", "Name", cfg.CountryCode)
	return &authFixture{
		svc:    NewAuthService(directory, codes, issuer, sender, cfg, nil),
		clock:  clk,
		sender: sender,
		issuer: issuer,
	}
}

func TestRequestCodeDebugMode(t *testing.T) {
	f := setupAuth(t, AuthConfig{DebugMode: true})

	issued, err := f.svc.RequestCode(context.Background(), "13800138000")
	require.NoError(t, err)
	assert.Equal(t, "246810", issued.DebugCode)
	assert.Empty(t, f.sender.to, "debug mode does not send")
}

func TestRequestCodeSendsSMS(t *testing.T) {
	f := setupAuth(t, AuthConfig{})

	issued, err := f.svc.RequestCode(context.Background(), "+86 139-0013-9000")
	require.NoError(t, err)
	assert.Empty(t, issued.DebugCode)
	assert.Equal(t, "+8613900139000", f.sender.to)
	assert.Contains(t, f.sender.message, "246810")
}

func TestRequestCodeSMSFailure(t *testing.T) {
	f := setupAuth(t, AuthConfig{})
	f.sender.err = errors.New("gateway down")

	_, err := f.svc.RequestCode(context.Background(), "13800138000")
	assert.True(t, IsKind(err, KindInternal))
}

func TestRequestCodeUnknownPhone(t *testing.T) {
	f := setupAuth(t, AuthConfig{DebugMode: true})

	_, err := f.svc.RequestCode(context.Background(), "13600136000")
	assert.True(t, IsKind(err, KindValidation))

	_, err = f.svc.RequestCode(context.Background(), "13700137000")
	assert.True(t, IsKind(err, KindValidation), "rows without a name do not match")

	_, err = f.svc.RequestCode(context.Background(), "")
	assert.True(t, IsKind(err, KindValidation))

	_, err = f.svc.RequestCode(context.Background(), "12")
	assert.True(t, IsKind(err, KindValidation))
}

func TestRequestCodeCooldown(t *testing.T) {
	f := setupAuth(t, AuthConfig{DebugMode: true})

	_, err := f.svc.RequestCode(context.Background(), "13800138000")
	require.NoError(t, err)

	f.clock.t = f.clock.t.Add(15 * time.Second)
	_, err = f.svc.RequestCode(context.Background(), "13800138000")
	require.True(t, IsKind(err, KindRateLimited))

	var svcErr *Error
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, 45*time.Second, svcErr.RetryAfter)
	assert.Contains(t, svcErr.Message, "45 seconds")
}

func TestVerifyCodeIsSingleUse(t *testing.T) {
	f := setupAuth(t, AuthConfig{DebugMode: true})
	ctx := context.Background()

	_, err := f.svc.RequestCode(ctx, "13800138000")
	require.NoError(t, err)

	verified, err := f.svc.VerifyCode(ctx, "138 0013 8000", "246810")
	require.NoError(t, err)
	assert.Equal(t, "Alice", verified.PersonName)
	assert.Equal(t, f.clock.t.Add(4*time.Hour), verified.ExpiresAt)

	sess, err := f.issuer.Verify(verified.Token)
	require.NoError(t, err)
	assert.Equal(t, "Alice", sess.PersonName)

	_, err = f.svc.VerifyCode(ctx, "13800138000", "246810")
	require.True(t, IsKind(err, KindValidation))
	assert.Contains(t, err.Error(), "invalid or expired")
}

func TestVerifyCodeFailuresLookAlike(t *testing.T) {
	f := setupAuth(t, AuthConfig{DebugMode: true})
	ctx := context.Background()

	_, err := f.svc.RequestCode(ctx, "13800138000")
	require.NoError(t, err)

	_, wrong := f.svc.VerifyCode(ctx, "13800138000", "111111")
	_, missing := f.svc.VerifyCode(ctx, "13900139000", "246810")

	f.clock.t = f.clock.t.Add(6 * time.Minute)
	_, expired := f.svc.VerifyCode(ctx, "13800138000", "246810")

	for _, err := range []error{wrong, missing, expired} {
		require.True(t, IsKind(err, KindValidation))
		assert.Equal(t, "invalid or expired code", err.Error())
	}
}

func TestVerifyCodeValidatesInput(t *testing.T) {
	f := setupAuth(t, AuthConfig{DebugMode: true})

	_, err := f.svc.VerifyCode(context.Background(), "13800138000", "12ab")
	assert.True(t, IsKind(err, KindValidation))

	_, err = f.svc.VerifyCode(context.Background(), "", "")
	assert.True(t, IsKind(err, KindValidation))
}

func TestResolveSession(t *testing.T) {
	f := setupAuth(t, AuthConfig{})

	token, _, err := f.issuer.Issue("Alice")
	require.NoError(t, err)

	sess := f.svc.ResolveSession(token)
	require.NotNil(t, sess)
	assert.Equal(t, "Alice", sess.PersonName)

	assert.Nil(t, f.svc.ResolveSession(""))
	assert.Nil(t, f.svc.ResolveSession("garbage"))

	f.clock.t = f.clock.t.Add(4 * time.Hour)
	assert.Nil(t, f.svc.ResolveSession(token))
}

func TestPhoneDirectoryCountryCode(t *testing.T) {
	f := setupAuth(t, AuthConfig{DebugMode: true})

	_, err := f.svc.RequestCode(context.Background(), "8613900139000")
	assert.NoError(t, err)
}
