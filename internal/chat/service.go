package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aichat-platform/aichat/internal/history"
	"github.com/aichat-platform/aichat/internal/ledger"
	"github.com/aichat-platform/aichat/internal/llm"
	"github.com/aichat-platform/aichat/internal/metrics"
)

var ErrBurstLimited = errors.New("too many chat requests per minute")

// History is the read side of the transcript.
type History interface {
	Recent(ctx context.Context, accountID string) ([]history.Message, error)
	List(ctx context.Context, accountID string, page, pageSize int) ([]history.Message, int64, error)
}

type Config struct {
	SystemPrompt   string
	BurstPerMinute int
}

type Service struct {
	ledger    *ledger.Ledger
	history   History
	completer llm.Completer
	limiter   *BurstLimiter
	cfg       Config
}

// NewService wires the chat flow. limiter may be nil.
func NewService(l *ledger.Ledger, h History, completer llm.Completer, limiter *BurstLimiter, cfg Config) *Service {
	return &Service{ledger: l, history: h, completer: completer, limiter: limiter, cfg: cfg}
}

// Reply is a served chat turn with the balances left after it.
type Reply struct {
	Message string       `json:"message"`
	Usage   ledger.Usage `json:"usage"`
}

// Send admits one message against the account's quota, asks the provider for
// a reply and records both turns. A failed provider call gives the unit back.
func (s *Service) Send(ctx context.Context, ref ledger.AccountRef, message string) (*Reply, error) {
	if s.limiter != nil && s.cfg.BurstPerMinute > 0 {
		allowed, err := s.limiter.Allow(ctx, ref.Key(), s.cfg.BurstPerMinute)
		if err != nil {
			slog.Warn("chat: burst limiter unavailable, allowing request", "error", err, "account", ref.Key())
		} else if !allowed {
			return nil, ErrBurstLimited
		}
	}

	d, err := s.ledger.EvaluateAndReserve(ctx, ref)
	if err != nil {
		return nil, err
	}

	past, err := s.history.Recent(ctx, ref.Key())
	if err != nil {
		slog.Warn("chat: loading context", "error", err, "account", ref.Key())
		past = nil
	}

	start := time.Now()
	resp, err := s.completer.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: s.cfg.SystemPrompt,
		History:      toLLM(past),
		Message:      message,
	})
	metrics.CompletionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.CompletionsTotal.WithLabelValues("error").Inc()
		if relErr := s.ledger.Release(context.WithoutCancel(ctx), d); relErr != nil {
			slog.Error("chat: releasing reservation", "error", relErr, "account", ref.Key())
		}
		return nil, fmt.Errorf("completing chat for %s: %w", ref, err)
	}
	metrics.CompletionsTotal.WithLabelValues("ok").Inc()

	for _, turn := range []struct{ role, text string }{
		{history.RoleUser, message},
		{history.RoleAssistant, resp.Content},
	} {
		if err := s.ledger.RecordUsage(ctx, ref, turn.role, turn.text); err != nil {
			slog.Error("chat: recording message", "error", err, "account", ref.Key(), "role", turn.role)
		}
	}

	slog.Debug("chat: reply served",
		"account", ref.Key(),
		"consequence", d.Consequence,
		"model", resp.Model,
		"total_tokens", resp.Usage.TotalTokens,
	)
	return &Reply{Message: resp.Content, Usage: s.ledger.Usage(d)}, nil
}

func (s *Service) History(ctx context.Context, ref ledger.AccountRef, page, pageSize int) ([]history.Message, int64, error) {
	return s.history.List(ctx, ref.Key(), page, pageSize)
}

func (s *Service) Quota(ctx context.Context, ref ledger.AccountRef) (ledger.Usage, error) {
	return s.ledger.Balance(ctx, ref)
}

func toLLM(msgs []history.Message) []llm.Message {
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, llm.Message{Role: m.Role, Content: m.Content})
	}
	return out
}
