package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"

	"github.com/dustin/go-humanize"

	"relaybot/pkg/digest"
	"relaybot/pkg/logger"
	"relaybot/pkg/metrics"
	"relaybot/pkg/models"
	"relaybot/pkg/store"
	"relaybot/pkg/telegram"
)

// ErrInvalidImport marks an uploaded table that was refused.
var ErrInvalidImport = errors.New("invalid import")

func (b *Bot) exportTables(ctx context.Context, msg *telegram.Message) {
	tables, err := store.Dump(b.st)
	if err != nil {
		logger.Error("export_failed", "error", err)
		b.reply(ctx, msg, fmt.Sprintf(textExportFailed, html.EscapeString(err.Error())), nil)
		return
	}
	now := b.clock()
	var total int
	for _, t := range store.Tables {
		data := tables[t]
		caption := fmt.Sprintf("%s · %s", t, humanize.Bytes(uint64(len(data))))
		opts := telegram.SendOptions{ReplyTo: msg.MessageID}
		if _, err := b.api.SendDocumentBytes(ctx, msg.Chat.ID, store.ExportName(t, now), data, caption, opts); err != nil {
			logger.Error("export_send_failed", "table", t, "error", err)
			b.reply(ctx, msg, fmt.Sprintf(textExportFailed, html.EscapeString(telegram.CompactError(err.Error()))), nil)
			return
		}
		total += len(data)
	}
	logger.AuditEvent("tables_exported", "admin", msg.From.ID, "tables", len(tables), "bytes", total)
}

// importDocument finds the file an /import command refers to: the
// message's own attachment or the one it replies to.
func importDocument(msg *telegram.Message) *telegram.Document {
	if msg.Document != nil {
		return msg.Document
	}
	if r := msg.ReplyToMessage; r != nil {
		return r.Document
	}
	return nil
}

func (b *Bot) importTable(ctx context.Context, msg *telegram.Message) {
	doc := importDocument(msg)
	if doc == nil {
		b.reply(ctx, msg, textImportUsage, nil)
		return
	}
	limit := b.cfg.MaxImportSize
	if limit > 0 && doc.FileSize > limit {
		b.reply(ctx, msg, fmt.Sprintf(textImportTooBig, humanize.IBytes(uint64(doc.FileSize)), humanize.IBytes(uint64(limit))), nil)
		return
	}

	table, rows, size, err := b.importFile(ctx, doc)
	if err != nil {
		logger.Warn("import_failed", "file", doc.FileName, "error", err)
		b.reply(ctx, msg, fmt.Sprintf(textImportFailed, html.EscapeString(telegram.CompactError(err.Error()))), nil)
		return
	}
	logger.AuditEvent("table_imported", "admin", msg.From.ID, "table", table, "rows", rows, "bytes", size)
	b.reply(ctx, msg, fmt.Sprintf(textImportDone, table, rows, humanize.IBytes(uint64(size))), nil)
}

func (b *Bot) importFile(ctx context.Context, doc *telegram.Document) (string, int, int, error) {
	table, ok := store.InferTable(doc.FileName)
	if !ok {
		return "", 0, 0, fmt.Errorf("%w: cannot tell the table from %q", ErrInvalidImport, doc.FileName)
	}
	data, err := b.api.DownloadFile(ctx, doc.FileID)
	if err != nil {
		return "", 0, 0, fmt.Errorf("download %s: %w", doc.FileName, err)
	}
	if limit := b.cfg.MaxImportSize; limit > 0 && int64(len(data)) > limit {
		return "", 0, 0, fmt.Errorf("%w: file is larger than %s", ErrInvalidImport, humanize.IBytes(uint64(limit)))
	}
	var rows map[string]json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return "", 0, 0, fmt.Errorf("%w: %s is not a JSON object", ErrInvalidImport, doc.FileName)
	}
	if err := b.st.ReplaceRaw(table, data); err != nil {
		return "", 0, 0, fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}
	if err := b.Reload(); err != nil {
		return "", 0, 0, fmt.Errorf("reload after import: %w", err)
	}
	return table, len(rows), len(data), nil
}

// Reload rereads every cache from the store.
func (b *Bot) Reload() error {
	err := errors.Join(
		b.archive.Load(),
		b.engine.Load(),
		b.users.Load(),
		b.bans.Load(),
	)
	metrics.SetTableRows(store.TableSubmissions, b.archive.Count())
	metrics.SetTableRows(store.TableThreads, b.engine.Count())
	metrics.SetTableRows(store.TableUsers, b.users.Count())
	metrics.SetTableRows(store.TableBans, b.bans.Count())
	return err
}

// SendDigest renders subs to a PDF and sends it to chatID.
func (b *Bot) SendDigest(ctx context.Context, chatID int64, subs []*models.Submission) error {
	now := b.clock()
	data, err := digest.Bytes(subs, digest.Options{
		Title:       b.cfg.DigestTitle,
		FontFile:    b.cfg.DigestFontFile,
		GeneratedAt: now,
	})
	if err != nil {
		return fmt.Errorf("render digest: %w", err)
	}
	caption := fmt.Sprintf("%d submissions · %s", len(subs), humanize.Bytes(uint64(len(data))))
	if _, err := b.api.SendDocumentBytes(ctx, chatID, digest.FileName(now), data, caption, telegram.SendOptions{}); err != nil {
		return fmt.Errorf("send digest: %w", err)
	}
	logger.Info("digest_sent", "chat", chatID, "submissions", len(subs), "bytes", len(data))
	return nil
}
