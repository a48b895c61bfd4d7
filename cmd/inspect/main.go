// Command inspect dumps the chat database for debugging. It opens the
// store read-only so it can run next to a live server.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

type diskMessage struct {
	ID       uint64 `cbor:"id"`
	Sender   int64  `cbor:"sender"`
	Receiver int64  `cbor:"receiver"`
	Body     string `cbor:"body"`
	At       int64  `cbor:"at"`
	Read     bool   `cbor:"read"`
}

func main() {
	dbPath := flag.String("db", "/tmp/chat/badger", "Path to badger DB")
	prefix := flag.String("prefix", "msg:", "Prefix to scan (msg:, user:, peer:, friend:)")
	flag.Parse()

	opts := badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)

	db, err := badger.Open(opts)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	fmt.Println(color.New(color.BgBlack, color.FgGreen).Render(
		fmt.Sprintf(" %s @ %s ", *prefix, *dbPath)))

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Type", "Detail"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			key := string(item.Key())

			err := item.Value(func(value []byte) error {
				rowType, detail := describe(key, value)
				table.Append([]string{key, rowType, detail})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	table.Render()
}

func describe(key string, value []byte) (string, string) {
	switch {
	case strings.HasPrefix(key, "msg:"):
		var dm diskMessage
		if err := cbor.Unmarshal(value, &dm); err != nil {
			return "MESSAGE", "Error: unmarshal failed"
		}
		status := "unread"
		if dm.Read {
			status = "read"
		}
		return "MESSAGE", fmt.Sprintf("#%d %d->%d %s [%s] %s",
			dm.ID, dm.Sender, dm.Receiver,
			time.Unix(0, dm.At).UTC().Format("15:04:05"), status, dm.Body)
	case strings.HasPrefix(key, "user:name:"):
		return "USER", "id=" + string(value)
	case strings.HasPrefix(key, "user:id:"):
		var du struct {
			Username  string `cbor:"username"`
			CreatedAt int64  `cbor:"created_at"`
		}
		if err := cbor.Unmarshal(value, &du); err != nil {
			return "USER", "Error: unmarshal failed"
		}
		return "USER", fmt.Sprintf("%s (created %s)", du.Username,
			time.Unix(0, du.CreatedAt).UTC().Format("2006-01-02"))
	case strings.HasPrefix(key, "peer:"):
		return "PEER", ""
	case strings.HasPrefix(key, "friend:"):
		return "FRIEND", ""
	default:
		return "RAW", fmt.Sprintf("%d bytes", len(value))
	}
}
