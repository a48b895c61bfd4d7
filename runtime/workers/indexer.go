package workers

import (
	"context"
	"log/slog"

	"github.com/Zvbcbcv/chat/search"
)

// IndexerWorker drains the indexing queue into the search index. Message
// persistence never waits on indexing; a full queue drops the entry and
// the message simply stays unsearchable.
type IndexerWorker struct {
	index   *search.Index
	entries chan search.Entry
	log     *slog.Logger
}

func NewIndexerWorker(index *search.Index, entries chan search.Entry, log *slog.Logger) *IndexerWorker {
	return &IndexerWorker{index: index, entries: entries, log: log}
}

func (w *IndexerWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping worker")
			return ctx.Err()
		case entry, ok := <-w.entries:
			if !ok {
				return nil
			}
			if err := w.index.Add(entry); err != nil {
				w.log.Error("Indexing failed", "message_id", entry.MessageID, "error", err)
			}
		}
	}
}
