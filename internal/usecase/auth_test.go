package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/barnqueue/barn/internal/domain"
	"github.com/barnqueue/barn/internal/store/storetest"
	"github.com/barnqueue/barn/internal/usecase"
	"github.com/golang-jwt/jwt/v5"
)

type fakeEmailSender struct {
	send func(ctx context.Context, to, subject, body string) error
}

func (s *fakeEmailSender) Send(ctx context.Context, to, subject, body string) error {
	if s.send == nil {
		return nil
	}
	return s.send(ctx, to, subject, body)
}

const (
	testJWTKey        = "test-jwt-secret-at-least-32-chars!!"
	testMagicLinkBase = "http://localhost:8080"
)

func newUsecase(users *storetest.Fake, sender *fakeEmailSender) *usecase.AuthUsecase {
	return usecase.NewAuthUsecase(users.Users, sender, []byte(testJWTKey), testMagicLinkBase)
}

func TestRequestMagicLink_StoresHashOfEmailedToken(t *testing.T) {
	var capturedBody string
	fake := storetest.New()
	sender := &fakeEmailSender{
		send: func(_ context.Context, _, _, body string) error {
			capturedBody = body
			return nil
		},
	}

	if err := newUsecase(fake, sender).RequestMagicLink(context.Background(), "test@example.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	idx := strings.Index(capturedBody, "?token=")
	if idx == -1 {
		t.Fatal("email body does not contain ?token=")
	}
	rawToken := strings.SplitN(capturedBody[idx+len("?token="):], `"`, 2)[0]

	signed, err := newUsecase(fake, sender).VerifyMagicLink(context.Background(), rawToken)
	if err != nil {
		t.Fatalf("verify the emailed token: %v", err)
	}
	if signed == "" {
		t.Fatal("expected a non-empty signed JWT")
	}
}

func TestRequestMagicLink_EmailError_Propagates(t *testing.T) {
	sendErr := errors.New("smtp unavailable")
	fake := storetest.New()
	sender := &fakeEmailSender{
		send: func(_ context.Context, _, _, _ string) error { return sendErr },
	}

	err := newUsecase(fake, sender).RequestMagicLink(context.Background(), "test@example.com")
	if !errors.Is(err, sendErr) {
		t.Errorf("want wrapped sendErr, got %v", err)
	}
}

func TestVerifyMagicLink_ReturnsSignedJWT(t *testing.T) {
	fake := storetest.New()
	sender := &fakeEmailSender{}
	uc := newUsecase(fake, sender)

	var capturedBody string
	sender.send = func(_ context.Context, _, _, body string) error {
		capturedBody = body
		return nil
	}
	if err := uc.RequestMagicLink(context.Background(), "test@example.com"); err != nil {
		t.Fatalf("request magic link: %v", err)
	}
	idx := strings.Index(capturedBody, "?token=")
	rawToken := strings.SplitN(capturedBody[idx+len("?token="):], `"`, 2)[0]

	signed, err := uc.VerifyMagicLink(context.Background(), rawToken)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	token, parseErr := jwt.Parse(signed, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected method")
		}
		return []byte(testJWTKey), nil
	})
	if parseErr != nil || !token.Valid {
		t.Fatalf("returned JWT is invalid: %v", parseErr)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		t.Fatal("could not cast claims")
	}
	if claims["email"] != "test@example.com" {
		t.Errorf("email = %v, want test@example.com", claims["email"])
	}
}

func TestVerifyMagicLink_UnknownToken_ReturnsErrTokenInvalid(t *testing.T) {
	fake := storetest.New()
	sender := &fakeEmailSender{}

	_, err := newUsecase(fake, sender).VerifyMagicLink(context.Background(), "never-issued")
	if !errors.Is(err, domain.ErrTokenInvalid) {
		t.Errorf("want ErrTokenInvalid, got %v", err)
	}
}

func TestVerifyMagicLink_TokenCannotBeClaimedTwice(t *testing.T) {
	fake := storetest.New()
	sender := &fakeEmailSender{}
	uc := newUsecase(fake, sender)

	var capturedBody string
	sender.send = func(_ context.Context, _, _, body string) error {
		capturedBody = body
		return nil
	}
	_ = uc.RequestMagicLink(context.Background(), "test@example.com")
	idx := strings.Index(capturedBody, "?token=")
	rawToken := strings.SplitN(capturedBody[idx+len("?token="):], `"`, 2)[0]

	if _, err := uc.VerifyMagicLink(context.Background(), rawToken); err != nil {
		t.Fatalf("first verify: %v", err)
	}
	if _, err := uc.VerifyMagicLink(context.Background(), rawToken); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Errorf("second verify of the same token = %v, want ErrTokenInvalid", err)
	}
}
