// Package services – ChatService
//
// This file implements ChatService, the retrieval-augmented chat flow over
// the course catalog. Answering a conversation happens in three steps:
//
//  1. Ask the model which catalog courses the conversation is about
//     (classification, constrained to codes that exist in the catalog).
//  2. Load the best-rated sections of those courses from the database.
//  3. Ask the model to answer the last user message using only that context.
//
// When classification yields no known course, the service answers with a
// fixed fallback instead of letting the model improvise.
package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-genai-backend/internal/domain"
	"github.com/tbourn/go-genai-backend/internal/provider/gemini"
	"github.com/tbourn/go-genai-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	roleUser      = "user"
	roleAssistant = "assistant"

	// Answer given when the conversation matches no catalog course.
	fallbackNoContext = "I don't have specific information about those courses."

	// Sections fetched per relevant course code.
	sectionsPerCode = 5
)

// ChatMessage is one turn of a conversation.
type ChatMessage struct {
	Role    string
	Content string
}

// ChatService answers conversations grounded on the course catalog.
type ChatService struct {
	// DB is the GORM handle used for catalog lookups.
	DB *gorm.DB
	// Provider is the single-shot text generator.
	Provider TextGenerator
}

// Answer validates the conversation, classifies relevant courses, loads their
// catalog context, and generates a grounded reply. It returns the reply text
// and the course codes the answer was grounded on.
func (s *ChatService) Answer(ctx context.Context, msgs []ChatMessage) (string, []string, error) {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "Answer",
		trace.WithAttributes(attribute.Int("conversation.len", len(msgs))),
	)
	defer span.End()

	if len(msgs) == 0 {
		return "", nil, ErrNoMessages
	}
	last := msgs[len(msgs)-1]
	if !strings.EqualFold(strings.TrimSpace(last.Role), roleUser) {
		return "", nil, ErrLastNotUser
	}

	catalog, err := repo.ListCourseCatalog(ctx, s.DB)
	if err != nil {
		return "", nil, ErrStorageUnavailable
	}
	if len(catalog) == 0 {
		return fallbackNoContext, nil, nil
	}

	codes, err := s.classifyCourses(ctx, msgs, catalog)
	if err != nil {
		return "", nil, mapProviderErr(err)
	}
	span.SetAttributes(attribute.StringSlice("chat.codes", codes))

	var courses []domain.Course
	for _, code := range codes {
		sections, lerr := repo.ListCoursesByCode(ctx, s.DB, code, sectionsPerCode)
		if lerr != nil {
			log.Warn().Err(lerr).Str("code", code).Msg("course lookup failed")
			continue
		}
		courses = append(courses, sections...)
	}
	if len(courses) == 0 {
		return fallbackNoContext, codes, nil
	}

	reply, err := s.generateGrounded(ctx, msgs, courses)
	if err != nil {
		return "", nil, mapProviderErr(err)
	}
	return reply, codes, nil
}

// classifyCourses asks the model which catalog courses the conversation
// refers to and filters the answer down to codes that actually exist.
func (s *ChatService) classifyCourses(ctx context.Context, msgs []ChatMessage, catalog []repo.CatalogEntry) ([]string, error) {
	var sb strings.Builder
	sb.WriteString("Analyze this conversation and identify which courses are relevant to answer the user.\n\n")
	sb.WriteString("CONVERSATION:\n")
	sb.WriteString(formatConversation(msgs))
	sb.WriteString("\n\nAVAILABLE COURSES:\n")
	for _, c := range catalog {
		fmt.Fprintf(&sb, "- %s (%s)\n", c.Name, c.Code)
	}
	sb.WriteString("\nINSTRUCTIONS:\n")
	sb.WriteString("- Identify courses mentioned explicitly or related to the topic of the conversation\n")
	sb.WriteString("- Answer ONLY with course codes separated by commas, without spaces\n")
	sb.WriteString("- If no course is relevant, answer with an empty string\n")
	sb.WriteString("- Do NOT include explanations, punctuation, or extra text\n\n")
	sb.WriteString("Correct format example: ICS1113,IIC2233,FIS1533\n\nCODES:")

	// Deterministic classification
	temp := 0.0
	raw, err := s.Provider.Generate(ctx, sb.String(), gemini.Params{Temperature: &temp})
	if err != nil {
		// An empty classification comes back as an unusable response; treat
		// it as "no relevant courses" rather than a failure.
		if errors.Is(err, gemini.ErrPermanent) && !errors.Is(err, gemini.ErrInvalidParameters) {
			return nil, nil
		}
		return nil, err
	}
	return extractCodes(raw, catalog), nil
}

// generateGrounded asks the model to answer the last user message using only
// the supplied catalog context.
func (s *ChatService) generateGrounded(ctx context.Context, msgs []ChatMessage, courses []domain.Course) (string, error) {
	lastUser := ""
	for i := len(msgs) - 1; i >= 0; i-- {
		if strings.EqualFold(strings.TrimSpace(msgs[i].Role), roleUser) {
			lastUser = msgs[i].Content
			break
		}
	}

	var sb strings.Builder
	sb.WriteString("You are an academic assistant that answers questions about university courses using ONLY the information provided.\n\n")
	sb.WriteString("AVAILABLE COURSE INFORMATION:\n")
	sb.WriteString(formatCourseContext(courses))
	sb.WriteString("\n\nLAST USER QUESTION:\n")
	sb.WriteString(lastUser)
	sb.WriteString("\n\nCRITICAL INSTRUCTIONS:\n")
	sb.WriteString("- Answer ONLY using the course information provided above\n")
	sb.WriteString("- If the information is not in the context, say you do not have it\n")
	sb.WriteString("- Be BRIEF: at most 3-4 sentences\n")
	sb.WriteString("- Answer the question directly, without long introductions\n")
	sb.WriteString("- Use concrete data from the context (names, codes, ratings)\n")
	sb.WriteString("- Answer in the same language as the user\n\n")
	sb.WriteString("BRIEF ANSWER:")

	reply, err := s.Provider.Generate(ctx, sb.String(), gemini.Params{})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}

// mapProviderErr translates adapter failures onto the service taxonomy.
func mapProviderErr(err error) error {
	if errors.Is(err, gemini.ErrPermanent) {
		return ErrProviderRejected
	}
	return ErrProviderUnavailable
}

// formatConversation renders the conversation for a prompt, one turn per line.
func formatConversation(msgs []ChatMessage) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		role := strings.ToUpper(strings.TrimSpace(m.Role))
		if role == "" {
			role = strings.ToUpper(roleUser)
		}
		lines = append(lines, role+": "+m.Content)
	}
	return strings.Join(lines, "\n")
}

// formatCourseContext renders catalog rows as compact context lines.
func formatCourseContext(courses []domain.Course) string {
	blocks := make([]string, 0, len(courses))
	for _, c := range courses {
		var b strings.Builder
		fmt.Fprintf(&b, "%s (%s) - Professor: %s", c.Name, c.Code, orNA(c.Professor))
		if c.ProfessorRating != nil {
			fmt.Fprintf(&b, " - Rating: %.1f", *c.ProfessorRating)
		}
		if c.Workload != "" {
			fmt.Fprintf(&b, " - Workload: %s", c.Workload)
		}
		if c.Campus != "" {
			fmt.Fprintf(&b, " - Campus: %s", c.Campus)
		}
		if c.Summary != "" {
			fmt.Fprintf(&b, "\n  Summary: %s", c.Summary)
		}
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, "\n\n")
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

// codeCleanRE strips periods and whitespace from a candidate code token.
var codeCleanRE = regexp.MustCompile(`[.\s]+`)

// extractCodes parses the classification reply down to known catalog codes,
// preserving first-seen order and dropping duplicates. Comma-separated output
// is the expected format; as a fallback it scans for known codes appearing
// anywhere in the text.
func extractCodes(reply string, catalog []repo.CatalogEntry) []string {
	known := make(map[string]struct{}, len(catalog))
	for _, c := range catalog {
		known[strings.ToUpper(c.Code)] = struct{}{}
	}

	upper := strings.ToUpper(strings.TrimSpace(reply))
	if upper == "" {
		return nil
	}

	seen := make(map[string]struct{})
	var out []string
	add := func(code string) {
		if _, ok := known[code]; !ok {
			return
		}
		if _, dup := seen[code]; dup {
			return
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}

	if strings.Contains(upper, ",") {
		for _, part := range strings.Split(upper, ",") {
			add(codeCleanRE.ReplaceAllString(part, ""))
		}
	}
	if len(out) == 0 {
		// Free-form reply: look for known codes as whole words, in catalog order.
		for _, c := range catalog {
			code := strings.ToUpper(c.Code)
			re := regexp.MustCompile(`\b` + regexp.QuoteMeta(code) + `\b`)
			if re.MatchString(upper) {
				add(code)
			}
		}
	}
	return out
}
