package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"gorm.io/gorm"

	"github.com/tbourn/go-genai-backend/internal/domain"
	"github.com/tbourn/go-genai-backend/internal/provider/gemini"
	"github.com/tbourn/go-genai-backend/internal/repo"
)

func seedCatalog(t *testing.T, db *gorm.DB) {
	t.Helper()
	ctx := context.Background()
	rating := 4.5
	for _, c := range []domain.Course{
		{Code: "IIC2233", Name: "Programacion Avanzada", NRC: "10233", Professor: "F. Pinto", ProfessorRating: &rating, Workload: "high", Campus: "San Joaquin"},
		{Code: "MAT1620", Name: "Calculo 2", NRC: "20233", Professor: "M. Perez"},
	} {
		cc := c
		if err := repo.UpsertCourse(ctx, db, &cc); err != nil {
			t.Fatalf("seed course: %v", err)
		}
	}
}

func userTurn(content string) ChatMessage {
	return ChatMessage{Role: "user", Content: content}
}

func TestAnswer_ValidatesConversation(t *testing.T) {
	db := newSvcDB(t)
	fp := &fakeProvider{}
	svc := &ChatService{DB: db, Provider: fp}
	ctx := context.Background()

	if _, _, err := svc.Answer(ctx, nil); !errors.Is(err, ErrNoMessages) {
		t.Errorf("empty conversation: %v", err)
	}

	msgs := []ChatMessage{userTurn("hi"), {Role: "assistant", Content: "hello"}}
	if _, _, err := svc.Answer(ctx, msgs); !errors.Is(err, ErrLastNotUser) {
		t.Errorf("assistant last: %v", err)
	}
	if fp.calls != 0 {
		t.Errorf("provider called %d times during validation failures", fp.calls)
	}
}

func TestAnswer_EmptyCatalogFallsBack(t *testing.T) {
	db := newSvcDB(t)
	fp := &fakeProvider{}
	svc := &ChatService{DB: db, Provider: fp}

	reply, codes, err := svc.Answer(context.Background(), []ChatMessage{userTurn("what about IIC2233?")})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if reply != fallbackNoContext {
		t.Errorf("reply = %q", reply)
	}
	if len(codes) != 0 {
		t.Errorf("codes = %v", codes)
	}
	if fp.calls != 0 {
		t.Errorf("provider called %d times with empty catalog", fp.calls)
	}
}

func TestAnswer_GroundedFlow(t *testing.T) {
	db := newSvcDB(t)
	seedCatalog(t, db)

	fp := &fakeProvider{
		texts: []string{"IIC2233", "IIC2233 is taught by F. Pinto, rated 4.5."},
		errs:  []error{nil, nil},
	}
	svc := &ChatService{DB: db, Provider: fp}

	reply, codes, err := svc.Answer(context.Background(), []ChatMessage{
		userTurn("who teaches Programacion Avanzada?"),
	})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if fp.calls != 2 {
		t.Fatalf("provider calls = %d; want 2 (classify + answer)", fp.calls)
	}
	if !strings.Contains(fp.prompts[0], "AVAILABLE COURSES") || !strings.Contains(fp.prompts[0], "IIC2233") {
		t.Errorf("classification prompt missing catalog:\n%s", fp.prompts[0])
	}
	if !strings.Contains(fp.prompts[1], "F. Pinto") || !strings.Contains(fp.prompts[1], "Rating: 4.5") {
		t.Errorf("grounded prompt missing course context:\n%s", fp.prompts[1])
	}
	if reply != "IIC2233 is taught by F. Pinto, rated 4.5." {
		t.Errorf("reply = %q", reply)
	}
	if len(codes) != 1 || codes[0] != "IIC2233" {
		t.Errorf("codes = %v", codes)
	}
}

func TestAnswer_NoRelevantCoursesFallsBack(t *testing.T) {
	db := newSvcDB(t)
	seedCatalog(t, db)

	// Model names a course that is not in the catalog.
	fp := &fakeProvider{texts: []string{"QIM100"}, errs: []error{nil}}
	svc := &ChatService{DB: db, Provider: fp}

	reply, codes, err := svc.Answer(context.Background(), []ChatMessage{userTurn("tell me about chemistry")})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if reply != fallbackNoContext {
		t.Errorf("reply = %q", reply)
	}
	if len(codes) != 0 {
		t.Errorf("codes = %v", codes)
	}
	if fp.calls != 1 {
		t.Errorf("provider calls = %d; want 1 (no grounded call without context)", fp.calls)
	}
}

func TestAnswer_TransientProviderFailure(t *testing.T) {
	db := newSvcDB(t)
	seedCatalog(t, db)

	fp := &fakeProvider{texts: []string{""}, errs: []error{fmt.Errorf("%w: 503", gemini.ErrTransient)}}
	svc := &ChatService{DB: db, Provider: fp}

	_, _, err := svc.Answer(context.Background(), []ChatMessage{userTurn("hi IIC2233")})
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("err = %v; want ErrProviderUnavailable", err)
	}
}

func TestExtractCodes(t *testing.T) {
	catalog := []repo.CatalogEntry{
		{Code: "IIC2233", Name: "Programacion Avanzada"},
		{Code: "MAT1620", Name: "Calculo 2"},
		{Code: "ICS1113", Name: "Optimizacion"},
	}

	tests := []struct {
		name  string
		reply string
		want  []string
	}{
		{"comma separated", "IIC2233,MAT1620", []string{"IIC2233", "MAT1620"}},
		{"comma with noise", " iic2233 , mat1620. ", []string{"IIC2233", "MAT1620"}},
		{"free-form text", "The relevant course is IIC2233 here.", []string{"IIC2233"}},
		{"unknown codes dropped", "XXX1234,IIC2233", []string{"IIC2233"}},
		{"duplicates removed", "IIC2233,IIC2233", []string{"IIC2233"}},
		{"empty", "   ", nil},
		{"no match", "nothing relevant", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractCodes(tt.reply, catalog)
			if len(got) != len(tt.want) {
				t.Fatalf("extractCodes(%q) = %v; want %v", tt.reply, got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("extractCodes(%q)[%d] = %q; want %q", tt.reply, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestFormatConversation(t *testing.T) {
	got := formatConversation([]ChatMessage{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
		{Role: "", Content: "again"},
	})
	want := "USER: hi\nASSISTANT: hello\nUSER: again"
	if got != want {
		t.Errorf("formatConversation = %q; want %q", got, want)
	}
}
