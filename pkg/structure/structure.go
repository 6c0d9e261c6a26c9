// Package structure splits free-form submissions into a question stem and
// an ordered option list.
package structure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"relaybot/pkg/logger"
)

// Result is the output contract shared by every structurer.
type Result struct {
	Stem    string
	Options []string
	// NotQuestion is set when a model judged the text not to be a question.
	NotQuestion bool
	// Source names the structurer that produced the result.
	Source string
}

// HasStructure reports whether the result carries options.
func (r Result) HasStructure() bool { return len(r.Options) > 0 && !r.NotQuestion }

type Structurer interface {
	Structure(ctx context.Context, raw string) Result
}

// ModelOutput is the JSON object returned by a language model.
type ModelOutput struct {
	QuestionText *string  `json:"question_text"`
	Options      []string `json:"options"`
}

// ModelParser is a fallible model-backed parser.
type ModelParser interface {
	Name() string
	Parse(ctx context.Context, raw string) (ModelOutput, error)
}

var (
	ErrEmptyResponse = errors.New("empty model response")
	ErrNoCredential  = errors.New("model credential missing")
)

const prompt = `Extract the question and its answer options from the user text below.
Reply with one JSON object only, no prose and no code fences, exactly:
{"question_text": "<question>", "options": ["<option>", "..."]}
Rules:
- Ignore metadata lines such as "Name:", "Username:", "ID:", "Time:", "New question".
- Remove conversational lead-ins such as "I got a question" or "جاني سؤال".
- Strip enumerators like "A)", "1.", "أ-" from options.
- If there are no clear options, return an empty "options" list.
- If the text is not a question after cleaning, set "question_text" to null.
Keep the original language.
---
%s
---`

func buildPrompt(raw string) string {
	return fmt.Sprintf(prompt, raw)
}

// decodeModelOutput tolerates markdown fences around the JSON body.
func decodeModelOutput(text string) (ModelOutput, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if text == "" {
		return ModelOutput{}, ErrEmptyResponse
	}
	var out ModelOutput
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return ModelOutput{}, fmt.Errorf("decode model output: %w", err)
	}
	return out, nil
}

// WithFallback runs a model parser and degrades to the rule-based result
// on any failure.
type WithFallback struct {
	Model    ModelParser
	Fallback Rules
	Timeout  time.Duration
}

func (w WithFallback) Structure(ctx context.Context, raw string) Result {
	if strings.TrimSpace(raw) == "" || w.Model == nil {
		return w.Fallback.Structure(ctx, raw)
	}
	timeout := w.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	mctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := w.Model.Parse(mctx, raw)
	if err != nil {
		logger.Warn("structurer_model_failed", "model", w.Model.Name(), "error", err)
		return w.Fallback.Structure(ctx, raw)
	}
	if out.QuestionText == nil {
		return Result{Stem: raw, Options: []string{}, NotQuestion: true, Source: w.Model.Name()}
	}
	stem := strings.TrimSpace(*out.QuestionText)
	if stem == "" {
		logger.Warn("structurer_model_empty_stem", "model", w.Model.Name())
		return w.Fallback.Structure(ctx, raw)
	}
	opts := make([]string, 0, len(out.Options))
	for _, o := range out.Options {
		if o = strings.TrimSpace(o); o != "" {
			opts = append(opts, o)
		}
	}
	return Result{Stem: stem, Options: opts, Source: w.Model.Name()}
}

// Options selects and configures a structurer.
type Options struct {
	Mode    string // rules | gemini | openai
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
	Fillers []string
}

// New builds the configured structurer. A model mode without a credential
// logs and degrades to rules.
func New(ctx context.Context, o Options) (Structurer, error) {
	rules := NewRules(o.Fillers...)
	var (
		model ModelParser
		err   error
	)
	switch strings.ToLower(strings.TrimSpace(o.Mode)) {
	case "", "rules":
		return rules, nil
	case "gemini":
		model, err = NewGemini(ctx, o.APIKey, o.Model)
	case "openai":
		model, err = NewOpenAI(o.APIKey, o.Model, o.BaseURL)
	default:
		return nil, fmt.Errorf("unknown structurer mode %q", o.Mode)
	}
	if errors.Is(err, ErrNoCredential) {
		logger.Warn("structurer_model_disabled", "mode", o.Mode, "reason", err.Error())
		return rules, nil
	}
	if err != nil {
		return nil, err
	}
	return WithFallback{Model: model, Fallback: rules, Timeout: o.Timeout}, nil
}
