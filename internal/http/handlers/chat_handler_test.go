package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/tbourn/go-genai-backend/internal/services"
)

func TestChat_MissingMessages(t *testing.T) {
	r := newTestRouter(&fakeGenSvc{}, &fakeChatSvc{}, &fakeCourseSvc{})

	w := doJSON(t, r, http.MethodPost, "/chat", `{}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestChat_BlankContentRejected(t *testing.T) {
	r := newTestRouter(&fakeGenSvc{}, &fakeChatSvc{}, &fakeCourseSvc{})

	w := doJSON(t, r, http.MethodPost, "/chat",
		`{"messages":[{"role":"user","content":"   "}]}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank content, got %d", w.Code)
	}
}

func TestChat_OK(t *testing.T) {
	chat := &fakeChatSvc{reply: "F. Pinto teaches IIC2233.", codes: []string{"IIC2233"}}
	r := newTestRouter(&fakeGenSvc{}, chat, &fakeCourseSvc{})

	w := doJSON(t, r, http.MethodPost, "/chat",
		`{"messages":[{"role":"assistant","content":"Hi!"},{"role":"user","content":"Who teaches IIC2233?"}]}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp ChatResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if resp.Response != chat.reply || len(resp.Courses) != 1 || resp.Courses[0] != "IIC2233" {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
	if len(chat.gotMsg) != 2 || chat.gotMsg[1].Role != "user" {
		t.Fatalf("conversation not forwarded: %+v", chat.gotMsg)
	}
}

func TestChat_ErrorTaxonomy(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"no messages", services.ErrNoMessages, http.StatusBadRequest},
		{"last not user", services.ErrLastNotUser, http.StatusBadRequest},
		{"provider rejected", services.ErrProviderRejected, http.StatusUnprocessableEntity},
		{"provider unavailable", services.ErrProviderUnavailable, http.StatusBadGateway},
		{"storage unavailable", services.ErrStorageUnavailable, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestRouter(&fakeGenSvc{}, &fakeChatSvc{err: tc.err}, &fakeCourseSvc{})
			w := doJSON(t, r, http.MethodPost, "/chat",
				`{"messages":[{"role":"user","content":"hello"}]}`, nil)
			if w.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, w.Code)
			}
		})
	}
}
