// Package search maintains a full-text index over stored messages and
// answers per-viewer queries against it.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/blugelabs/bluge"
)

// Entry is one message to index. The room key scopes search results to
// conversations the viewer actually participates in.
type Entry struct {
	MessageID uint64
	RoomKey   string
	Sender    string
	Body      string
	At        time.Time
}

// Hit is one search result, rebuilt from stored fields.
type Hit struct {
	MessageID uint64
	RoomKey   string
	Sender    string
	Body      string
	At        time.Time
}

type Index struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewIndex(writer *bluge.Writer, log *slog.Logger) *Index {
	return &Index{writer: writer, log: log}
}

// Add indexes or re-indexes one message.
func (i *Index) Add(entry Entry) error {
	doc := bluge.NewDocument(strconv.FormatUint(entry.MessageID, 10)).
		AddField(bluge.NewTextField("body", entry.Body).StoreValue()).
		AddField(bluge.NewKeywordField("room", entry.RoomKey).StoreValue()).
		AddField(bluge.NewKeywordField("sender", entry.Sender).StoreValue()).
		AddField(bluge.NewKeywordField("at", entry.At.UTC().Format(time.RFC3339Nano)).StoreValue())
	if err := i.writer.Update(doc.ID(), doc); err != nil {
		return fmt.Errorf("index message %d: %w", entry.MessageID, err)
	}
	return nil
}

// Find matches terms against message bodies, restricted to the given
// rooms. An empty query or an empty room list yields no hits.
func (i *Index) Find(ctx context.Context, rooms []string, terms string, limit int) ([]Hit, error) {
	if len(rooms) == 0 || strings.TrimSpace(terms) == "" {
		return nil, nil
	}

	reader, err := i.writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("open index reader: %w", err)
	}
	defer func() {
		if err := reader.Close(); err != nil {
			i.log.Warn("Closing index reader failed", "error", err)
		}
	}()

	roomFilter := bluge.NewBooleanQuery()
	for _, room := range rooms {
		roomFilter.AddShould(bluge.NewTermQuery(room).SetField("room"))
	}
	query := bluge.NewBooleanQuery().
		AddMust(bluge.NewMatchQuery(terms).SetField("body")).
		AddMust(roomFilter)

	iterator, err := reader.Search(ctx, bluge.NewTopNSearch(limit, query))
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	var hits []Hit
	for {
		match, err := iterator.Next()
		if err != nil {
			return nil, fmt.Errorf("iterate search results: %w", err)
		}
		if match == nil {
			break
		}
		var hit Hit
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "_id":
				hit.MessageID, _ = strconv.ParseUint(string(value), 10, 64)
			case "body":
				hit.Body = string(value)
			case "room":
				hit.RoomKey = string(value)
			case "sender":
				hit.Sender = string(value)
			case "at":
				if at, err := time.Parse(time.RFC3339Nano, string(value)); err == nil {
					hit.At = at
				}
			}
			return true
		})
		if err != nil {
			return nil, err
		}
		hits = append(hits, hit)
	}
	return hits, nil
}
