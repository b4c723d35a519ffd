// Command inspect dumps the gateway's BadgerDB content as a table, one
// row per key, decoding the JSON value of each known key family.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

func main() {
	dbPath := flag.String("db", "/tmp/chat-gateway", "Path to badger DB")
	prefix := flag.String("prefix", "", "Prefix to scan (msg:, chat:, user:, member:, uid:)")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	color.Cyan.Printf("Scanning %s (prefix=%q)\n", *dbPath, *prefix)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Kind", "Detail"})
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

			err := item.Value(func(v []byte) error {
				kind, detail := describe(key, v)
				table.Append([]string{key, kind, detail})
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

// describe decodes the value according to its key family. Unparseable
// rows are reported inline instead of stopping the whole scan.
func describe(key string, value []byte) (string, string) {
	switch {
	case strings.HasPrefix(key, "msg:"):
		var m struct {
			SenderID string `json:"senderId"`
			Content  string `json:"content"`
			At       int64  `json:"at"`
		}
		if err := json.Unmarshal(value, &m); err != nil {
			return "MESSAGE", fmt.Sprintf("unmarshal error: %v", err)
		}
		return "MESSAGE", fmt.Sprintf("%s @ %s: %s",
			shorten(m.SenderID),
			time.Unix(0, m.At).UTC().Format("15:04:05"),
			m.Content)

	case strings.HasPrefix(key, "chat:"):
		var c struct {
			CreatedBy    string   `json:"createdBy"`
			Participants []string `json:"participants"`
		}
		if err := json.Unmarshal(value, &c); err != nil {
			return "CHAT", fmt.Sprintf("unmarshal error: %v", err)
		}
		return "CHAT", fmt.Sprintf("by %s, %d participants",
			shorten(c.CreatedBy), len(c.Participants))

	case strings.HasPrefix(key, "user:"):
		var u struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		}
		if err := json.Unmarshal(value, &u); err != nil {
			return "USER", fmt.Sprintf("unmarshal error: %v", err)
		}
		return "USER", fmt.Sprintf("%s (%s)", u.Username, shorten(u.ID))

	case strings.HasPrefix(key, "member:"):
		return "MEMBER", ""

	case strings.HasPrefix(key, "uid:"):
		return "UID", string(value)

	default:
		return "?", fmt.Sprintf("%d bytes", len(value))
	}
}

// shorten keeps the first 8 characters of an id for readability.
func shorten(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true).
		WithValueLogFileSize(10 * 1024 * 1024)

	db, err := badger.Open(opts)
	if err != nil {
		if strings.Contains(err.Error(), "Log truncate required") {
			// Open in write mode once so Badger can truncate, then reopen read-only.
			repairOpts := badger.DefaultOptions(path).
				WithLogger(nil).WithBypassLockGuard(true)

			db, err = badger.Open(repairOpts)
			if err != nil {
				return nil, fmt.Errorf("repair failed: %w", err)
			}
			db.Close()
			return badger.Open(opts)
		}
		return nil, err
	}
	return db, nil
}
