package builder

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/mohammad-safakhou/webbuilder/internal/generator"
	"github.com/mohammad-safakhou/webbuilder/internal/helpers"
	"github.com/mohammad-safakhou/webbuilder/internal/pages"
	"github.com/mohammad-safakhou/webbuilder/internal/plan"
	"github.com/mohammad-safakhou/webbuilder/internal/store"
)

// FrameworkHTML is the only output format produced today.
const FrameworkHTML = "html"

// Fixed chat replies.
const (
	EmptyMessageReply = "Please send a message."
	ErrorReplyPrefix  = "Error processing your message: "
)

type PromptRequest struct {
	Prompt string   `json:"prompt"`
	Images []string `json:"images,omitempty"`
	Docs   []string `json:"docs,omitempty"`
}

type GeneratedPage struct {
	HTML      string    `json:"html"`
	Framework string    `json:"framework"`
	Plan      plan.Plan `json:"-"`
}

type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

type ChatResponse struct {
	Response  string `json:"response"`
	PageID    string `json:"page_id,omitempty"`
	HTMLFile  string `json:"html_file,omitempty"`
	JSONFile  string `json:"json_file,omitempty"`
	SessionID string `json:"session_id"`
}

type PageStore interface {
	Save(ctx context.Context, html, prompt, siteType, sessionID string) (pages.Metadata, error)
}

// ConversationRecord keeps users, their messages and the pages produced for
// them. *store.Store implements it.
type ConversationRecord interface {
	EnsureUser(ctx context.Context, sessionID string) (string, error)
	AppendMessage(ctx context.Context, userID, role, content string) (store.Message, error)
	RecordPage(ctx context.Context, userID string, p store.PageRecord) error
}

// Builder runs the prompt → plan → page flow. Record may be nil, in which
// case chat turns are not persisted to the database.
type Builder struct {
	Generator generator.Generator
	Pages     PageStore
	Record    ConversationRecord
	Logger    *log.Logger
}

func (b *Builder) logger() *log.Logger {
	if b.Logger == nil {
		return log.Default()
	}
	return b.Logger
}

// Run classifies the prompt as given and asks the generator for a page. An
// empty prompt gets the default plan. Nothing is persisted.
func (b *Builder) Run(ctx context.Context, req PromptRequest) (GeneratedPage, error) {
	p := plan.Classify(req.Prompt, req.Images, req.Docs)
	html, err := b.Generator.Generate(ctx, p)
	if err != nil {
		return GeneratedPage{}, err
	}
	return GeneratedPage{HTML: html, Framework: FrameworkHTML, Plan: p}, nil
}

// Chat handles one chat turn. It never fails: problems are reported inside
// the reply text. A missing session id is replaced with a new one, which is
// echoed back so the client can continue the conversation.
func (b *Builder) Chat(ctx context.Context, req ChatRequest) ChatResponse {
	resp := ChatResponse{SessionID: req.SessionID}
	if resp.SessionID == "" {
		resp.SessionID = uuid.NewString()
	}
	if strings.TrimSpace(req.Message) == "" {
		resp.Response = EmptyMessageReply
		return resp
	}
	// stored copies are plain text; classification sees the message as sent
	message := storedText(req.Message)

	var userID string
	if b.Record != nil {
		var err error
		if userID, err = b.Record.EnsureUser(ctx, resp.SessionID); err != nil {
			return b.fail(resp, err)
		}
		if _, err := b.Record.AppendMessage(ctx, userID, store.RoleUser, message); err != nil {
			return b.fail(resp, err)
		}
	}

	page, err := b.Run(ctx, PromptRequest{Prompt: req.Message})
	if err != nil {
		b.recordReply(ctx, userID, ErrorReplyPrefix+err.Error())
		return b.fail(resp, err)
	}
	meta, err := b.Pages.Save(ctx, page.HTML, message, page.Plan.SiteType, resp.SessionID)
	if err != nil {
		b.recordReply(ctx, userID, ErrorReplyPrefix+err.Error())
		return b.fail(resp, err)
	}
	if b.Record != nil {
		if err := b.Record.RecordPage(ctx, userID, store.PageRecord{
			PageID:   meta.PageID,
			SiteType: meta.SiteType,
			Prompt:   meta.Prompt,
			HTMLFile: meta.HTMLFile,
			JSONFile: meta.JSONFile,
		}); err != nil {
			// the page is on disk and indexed; only the database row is missing
			b.logger().Printf("warn: record page %s: %v", meta.PageID, err)
		}
	}
	b.recordReply(ctx, userID, page.HTML)

	resp.Response = page.HTML
	resp.PageID = meta.PageID
	resp.HTMLFile = meta.HTMLFile
	resp.JSONFile = meta.JSONFile
	return resp
}

func (b *Builder) recordReply(ctx context.Context, userID, content string) {
	if b.Record == nil || userID == "" {
		return
	}
	if _, err := b.Record.AppendMessage(ctx, userID, store.RoleAgent, content); err != nil {
		b.logger().Printf("warn: store agent reply: %v", err)
	}
}

func storedText(raw string) string {
	if text := helpers.PromptText(raw); text != "" {
		return text
	}
	return strings.TrimSpace(raw)
}

func (b *Builder) fail(resp ChatResponse, err error) ChatResponse {
	b.logger().Printf("chat %s: %v", resp.SessionID, err)
	resp.Response = fmt.Sprintf("%s%v", ErrorReplyPrefix, err)
	return resp
}
