package fetch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// DefaultItemsField is the collection field read when none is configured.
const DefaultItemsField = "items"

// UntitledItem is the title shown for items without one.
const UntitledItem = "Untitled Bill"

// Item is one element of the decoded collection.
type Item map[string]any

// Text returns the trimmed string value of key, or "".
func (it Item) Text(key string) string {
	s, _ := it[key].(string)
	return strings.TrimSpace(s)
}

// DisplayTitle returns the item title, or UntitledItem.
func (it Item) DisplayTitle() string {
	if t := it.Text("title"); t != "" {
		return t
	}
	return UntitledItem
}

// decodeDocument parses body as a single JSON object and extracts the collection under
// field. Non-object elements of the collection are skipped.
func decodeDocument(body []byte, field string) (map[string]any, []Item, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if doc == nil {
		return nil, nil, fmt.Errorf("%w: body is not a JSON object", ErrDecode)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("%w: trailing data after object", ErrDecode)
	}

	items := []Item{}
	raw, _ := doc[field].([]any)
	for _, el := range raw {
		if obj, ok := el.(map[string]any); ok {
			items = append(items, Item(obj))
		}
	}
	return doc, items, nil
}
