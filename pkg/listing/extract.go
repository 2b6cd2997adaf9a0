package listing

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	dataBlockSelector = "script#__NEXT_DATA__"
	feedQueryKey      = "feed"
)

// Extract parses one search result page.
//
// It fails with a *ParseError only when the embedded payload is missing or is
// not JSON. Everything below that degrades: a page without a feed query is an
// empty result, malformed items are skipped and reported in Warnings, and
// missing or wrong-shaped fields become "".
func Extract(content string) (*PageResult, error) {
	raw, err := dataBlock(content)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var decoded interface{}
	if err := dec.Decode(&decoded); err != nil {
		return nil, &ParseError{Reason: "malformed embedded data block", Err: err}
	}

	root := newNode(decoded)
	feed, ok := findFeedQuery(root.get("props", "pageProps", "dehydratedState", "queries"))
	if !ok {
		return &PageResult{}, nil
	}

	data := feed.get("state", "data")
	result := &PageResult{
		TotalPages:   data.get("pagination", "pages").count(),
		TotalResults: data.get("pagination", "total").count(),
	}

	for _, bucket := range Buckets {
		list := data.get(bucket)
		if !list.present() {
			continue
		}
		if !list.isArray() {
			result.Warnings = append(result.Warnings, RecordWarning{
				Bucket: bucket,
				Index:  -1,
				Reason: "bucket is not an array",
			})
			continue
		}

		for i, item := range list.items() {
			l, warn, keep := parseItem(item, bucket, i)
			if warn != nil {
				result.Warnings = append(result.Warnings, *warn)
			}
			if keep {
				result.Listings = append(result.Listings, l)
			}
		}
	}

	return result, nil
}

// dataBlock returns the text of the __NEXT_DATA__ script element.
func dataBlock(content string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return "", &ParseError{Reason: "unreadable markup", Err: err}
	}

	raw := strings.TrimSpace(doc.Find(dataBlockSelector).First().Text())
	if raw == "" {
		return "", &ParseError{Reason: ErrNoDataBlock.Error(), Err: ErrNoDataBlock}
	}
	return raw, nil
}

// findFeedQuery returns the first query whose key sequence starts with "feed".
func findFeedQuery(queries node) (node, bool) {
	for _, q := range queries.items() {
		key := q.get("queryKey")
		if !key.isArray() {
			continue
		}
		if first := key.get(0); first.isString() && first.scalar() == feedQueryKey {
			return q, true
		}
	}
	return node{}, false
}

// parseItem maps one feed item. keep is false for items that are skipped.
func parseItem(item node, bucket string, index int) (l Listing, warn *RecordWarning, keep bool) {
	if !item.isObject() {
		return Listing{}, &RecordWarning{
			Bucket: bucket,
			Index:  index,
			Reason: "item is not an object",
		}, false
	}

	token := item.get("token")
	if !token.present() {
		return Listing{}, nil, false
	}
	if token.isObject() || token.isArray() {
		return Listing{}, &RecordWarning{
			Bucket: bucket,
			Index:  index,
			Reason: "token is not a scalar",
		}, false
	}
	if token.scalar() == "" {
		return Listing{}, nil, false
	}

	return fromItem(item, bucket), nil, true
}
