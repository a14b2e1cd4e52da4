package translate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestBaidu(t *testing.T, handler http.HandlerFunc) *Baidu {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	b := NewBaidu(BaiduOptions{
		AppID:    "2015063000000001",
		AppKey:   "12345678",
		Endpoint: srv.URL,
	})
	b.salt = func() int { return 1435660288 }
	return b
}

func TestSign(t *testing.T) {
	// Baidu のドキュメントに載っている署名例
	got := Sign("2015063000000001", "apple", "1435660288", "12345678")
	if got != "f89f9594663708c1605f3d736d01d2d4" {
		t.Fatalf("unexpected sign: %s", got)
	}
}

func TestBaiduTranslateSendsSignedQuery(t *testing.T) {
	b := newTestBaidu(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		if r.URL.Path != "/api/trans/vip/translate" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("unexpected content-type: %s", ct)
		}
		q := r.URL.Query()
		want := map[string]string{
			"appid": "2015063000000001",
			"q":     "apple",
			"from":  "en",
			"to":    "zh",
			"salt":  "1435660288",
			"sign":  "f89f9594663708c1605f3d736d01d2d4",
		}
		for k, v := range want {
			if q.Get(k) != v {
				t.Errorf("param %s = %q, want %q", k, q.Get(k), v)
			}
		}
		w.Write([]byte(`{"from":"en","to":"zh","trans_result":[{"src":"apple","dst":"苹果"}]}`))
	})

	got, err := b.Translate(context.Background(), "apple", "en", "zh")
	if err != nil {
		t.Fatalf("Translate returned error: %v", err)
	}
	if got != "苹果" {
		t.Fatalf("unexpected translation: %q", got)
	}
}

func TestBaiduTranslateJoinsLines(t *testing.T) {
	b := newTestBaidu(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"trans_result":[{"src":"a","dst":"一"},{"src":"b","dst":"二"}]}`))
	})
	got, err := b.Translate(context.Background(), "a\nb", "auto", "zh")
	if err != nil {
		t.Fatalf("Translate returned error: %v", err)
	}
	if got != "一\n二" {
		t.Fatalf("unexpected translation: %q", got)
	}
}

func TestBaiduTranslateAPIError(t *testing.T) {
	for _, body := range []string{
		`{"error_code":"54001","error_msg":"Invalid Sign"}`,
		`{"error_code":54001,"error_msg":"Invalid Sign"}`,
	} {
		b := newTestBaidu(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		})
		_, err := b.Translate(context.Background(), "apple", "auto", "zh")
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected APIError for %s, got %v", body, err)
		}
		if apiErr.Code != "54001" || apiErr.Message != "Invalid Sign" {
			t.Fatalf("unexpected APIError: %#v", apiErr)
		}
	}
}

func TestBaiduTranslateSuccessCodeIsNotError(t *testing.T) {
	b := newTestBaidu(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error_code":"52000","trans_result":[{"src":"a","dst":"b"}]}`))
	})
	got, err := b.Translate(context.Background(), "a", "auto", "en")
	if err != nil || got != "b" {
		t.Fatalf("Translate = %q, %v", got, err)
	}
}

func TestBaiduTranslateNoResult(t *testing.T) {
	b := newTestBaidu(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"from":"en","to":"zh"}`))
	})
	if _, err := b.Translate(context.Background(), "apple", "en", "zh"); !errors.Is(err, ErrNoResult) {
		t.Fatalf("expected ErrNoResult, got %v", err)
	}
}

func TestBaiduTranslateHTTPFailure(t *testing.T) {
	b := newTestBaidu(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})
	_, err := b.Translate(context.Background(), "apple", "en", "zh")
	if err == nil {
		t.Fatal("expected error")
	}
	if isAPIError(err) {
		t.Fatalf("transport failure classified as API error: %v", err)
	}
}

func TestBaiduNotConfigured(t *testing.T) {
	b := NewBaidu(BaiduOptions{})
	if _, err := b.Translate(context.Background(), "apple", "en", "zh"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestDefaultSaltRange(t *testing.T) {
	b := NewBaidu(BaiduOptions{})
	for i := 0; i < 1000; i++ {
		s := b.salt()
		if s < saltMin || s > saltMax {
			t.Fatalf("salt out of range: %d", s)
		}
	}
}
