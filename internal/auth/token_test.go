package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestNewTokenManager_RejectsShortSecret(t *testing.T) {
	if _, err := NewTokenManager("short", time.Hour); err == nil {
		t.Fatal("expected error for short secret")
	}
	m, err := NewTokenManager(testSecret, 0)
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}
	if m.TTL() != DefaultTTL {
		t.Fatalf("TTL = %v, want %v", m.TTL(), DefaultTTL)
	}
}

func TestTokenManager_IssueValidate(t *testing.T) {
	m, _ := NewTokenManager(testSecret, time.Hour)

	token, expires, err := m.Issue("user-1", "a@example.com", "admin")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if time.Until(expires) > time.Hour || time.Until(expires) < 59*time.Minute {
		t.Fatalf("unexpected expiry %v", expires)
	}

	claims, err := m.Validate(token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.UserID() != "user-1" || claims.Email != "a@example.com" || claims.Role != "admin" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestTokenManager_RejectsExpiredAndForeign(t *testing.T) {
	m, _ := NewTokenManager(testSecret, time.Hour)
	m.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _, err := m.Issue("user-1", "a@example.com", "customer")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	m.now = time.Now
	if _, err := m.Validate(expired); err == nil {
		t.Fatal("expected expired token to fail")
	}

	other, _ := NewTokenManager(strings.Repeat("z", 32), time.Hour)
	foreign, _, _ := other.Issue("user-1", "a@example.com", "admin")
	if _, err := m.Validate(foreign); err == nil {
		t.Fatal("expected token signed with another secret to fail")
	}

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{Role: "admin"})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := m.Validate(unsigned); err == nil {
		t.Fatal("expected alg=none token to fail")
	}
}

func TestTokenFromRequest(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		cookie  string
		want    string
		wantErr bool
	}{
		{name: "bearer", header: "Bearer abc", want: "abc"},
		{name: "cookie", cookie: "def", want: "def"},
		{name: "header wins", header: "Bearer abc", cookie: "def", want: "abc"},
		{name: "bad scheme", header: "Basic abc", wantErr: true},
		{name: "missing", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			if tc.cookie != "" {
				req.AddCookie(&http.Cookie{Name: CookieName, Value: tc.cookie})
			}
			got, err := TokenFromRequest(req)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if got != tc.want {
				t.Fatalf("token = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestCookies(t *testing.T) {
	rr := httptest.NewRecorder()
	SetCookie(rr, "tok", time.Now().Add(time.Hour), true)
	ClearCookie(rr, true)

	cookies := rr.Result().Cookies()
	if len(cookies) != 2 {
		t.Fatalf("cookies = %d, want 2", len(cookies))
	}
	if !cookies[0].HttpOnly || !cookies[0].Secure || cookies[0].Value != "tok" {
		t.Fatalf("unexpected session cookie %+v", cookies[0])
	}
	if cookies[1].MaxAge >= 0 {
		t.Fatalf("clear cookie MaxAge = %d, want negative", cookies[1].MaxAge)
	}
}
