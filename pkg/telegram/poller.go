package telegram

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"relaybot/pkg/logger"
)

const (
	minBackoff = 2 * time.Second
	maxBackoff = 15 * time.Second
)

// Handler processes one update. Updates are delivered one at a time.
type Handler func(ctx context.Context, u Update)

type Poller struct {
	Client *Client
	// OffsetFile persists the next update id across restarts. Empty
	// disables persistence.
	OffsetFile string
	Timeout    int
}

// Run long-polls until ctx ends. Transport errors back off from 2s to
// 15s; a panicking handler is logged and the update is skipped.
func (p *Poller) Run(ctx context.Context, handle Handler) error {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 30
	}
	offset, err := LoadOffset(p.OffsetFile)
	if err != nil {
		return err
	}
	logger.Info("telegram_poll_started", "poll_timeout", timeout, "offset", offset)

	backoff := minBackoff
	for {
		if ctx.Err() != nil {
			logger.Info("telegram_poll_stopped")
			return nil
		}
		updates, err := p.Client.GetUpdates(ctx, offset, timeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			logger.Warn("telegram_get_updates_failed", "error", CompactError(logger.RedactToken(err.Error(), p.Client.token)), "backoff", backoff.String())
			if !sleepCtx(ctx, backoff) {
				continue
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = minBackoff

		for _, u := range updates {
			dispatch(ctx, handle, u)
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
				if err := SaveOffset(p.OffsetFile, offset); err != nil {
					logger.Warn("telegram_offset_save_failed", "error", err)
				}
			}
		}
	}
}

func dispatch(ctx context.Context, handle Handler, u Update) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("update_handler_panic", "update_id", u.UpdateID, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
	}()
	handle(ctx, u)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func LoadOffset(path string) (int64, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return 0, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read telegram offset file: %w", err)
	}
	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return 0, nil
	}
	offset, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse telegram offset: %w", err)
	}
	if offset < 0 {
		return 0, nil
	}
	return offset, nil
}

func SaveOffset(path string, offset int64) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create telegram offset dir: %w", err)
	}
	return os.WriteFile(path, []byte(strconv.FormatInt(offset, 10)+"\n"), 0o644)
}

// SplitMessage breaks text into chunks of at most maxRunes, preferring
// newline boundaries in the second half of each chunk.
func SplitMessage(text string, maxRunes int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if maxRunes <= 0 {
		maxRunes = 3500
	}
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return []string{text}
	}
	var out []string
	for start := 0; start < len(runes); {
		end := start + maxRunes
		if end >= len(runes) {
			out = append(out, strings.TrimSpace(string(runes[start:])))
			break
		}
		split := end
		for i := end; i > start+maxRunes/2; i-- {
			if runes[i-1] == '\n' {
				split = i
				break
			}
		}
		if chunk := strings.TrimSpace(string(runes[start:split])); chunk != "" {
			out = append(out, chunk)
		}
		start = split
	}
	return out
}
