package internal

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"reviewroom/domain"
)

//go:embed inspect.html
var templatesFS embed.FS

type InspectRow struct {
	Key       string
	Kind      string
	Timestamp string
	Detail    string
}

type StatsProvider func() map[string]any

// DebugMux builds the side-port mux: a store inspector scanning badger
// by key prefix and whatever extra handlers the caller mounts (the
// prometheus scrape endpoint in practice).
func DebugMux(db *badger.DB, statsProvider StatsProvider) *http.ServeMux {
	mux := http.NewServeMux()
	tmpl := template.Must(template.ParseFS(templatesFS, "inspect.html"))

	mux.HandleFunc("/inspect", func(w http.ResponseWriter, r *http.Request) {
		prefix := r.URL.Query().Get("prefix")
		if prefix == "" {
			prefix = "msg:"
		}

		data := struct {
			Prefix string
			Items  []InspectRow
			Stats  map[string]any
		}{Prefix: prefix, Stats: make(map[string]any)}

		if statsProvider != nil {
			data.Stats = statsProvider()
		}

		_ = db.View(func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()
			for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
				item := it.Item()
				_ = item.Value(func(val []byte) error {
					data.Items = append(data.Items, MapRow(string(item.Key()), val))
					return nil
				})
			}
			return nil
		})

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = tmpl.Execute(w, data)
	})

	return mux
}

// MapRow renders one store entry for the inspector, decoding the JSON
// value according to the key namespace.
func MapRow(key string, val []byte) InspectRow {
	row := InspectRow{
		Key:       key,
		Kind:      "RAW",
		Timestamp: "--:--:--",
		Detail:    fmt.Sprintf("Size: %d bytes", len(val)),
	}

	switch {
	case strings.HasPrefix(key, "msg:"):
		var msg domain.Message
		if err := json.Unmarshal(val, &msg); err == nil {
			row.Kind = "MESSAGE"
			row.Timestamp = msg.At.Format(time.TimeOnly)
			row.Detail = fmt.Sprintf("%s: %s", msg.Author, truncate(msg.Body, 80))
		}
	case strings.HasPrefix(key, "rcpt:"):
		var receipt domain.ReadReceipt
		if err := json.Unmarshal(val, &receipt); err == nil {
			row.Kind = "RECEIPT"
			row.Timestamp = receipt.ReadAt.Format(time.TimeOnly)
			row.Detail = fmt.Sprintf("%s read %s", receipt.UserID, receipt.MessageID)
		}
	case strings.HasPrefix(key, "part:"):
		var participant domain.Participant
		if err := json.Unmarshal(val, &participant); err == nil {
			row.Kind = "PARTICIPANT"
			row.Timestamp = participant.AddedAt.Format(time.TimeOnly)
			row.Detail = participant.UserID
		}
	}
	return row
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
