package testutil

import (
	"encoding/json"
	"fmt"
	"html"
)

// Feed describes the "feed" query of a search page.
type Feed struct {
	Pages int
	Total int

	// Buckets maps bucket names (private, commercial, ...) to their items.
	// Values are marshaled as-is, so malformed shapes can be injected.
	Buckets map[string]interface{}
}

// Car returns a realistic feed item for token.
func Car(token string) map[string]interface{} {
	return map[string]interface{}{
		"token":         token,
		"orderId":       4410021,
		"listingSource": "private",
		"manufacturer":  map[string]interface{}{"id": 19, "text": "טויוטה"},
		"model":         map[string]interface{}{"id": 10226, "text": "קורולה"},
		"subModel":      map[string]interface{}{"id": 101, "text": "Sun"},
		"vehicleDates":  map[string]interface{}{"yearOfProduction": 2021},
		"engineType":    map[string]interface{}{"id": 1101, "text": "בנזין"},
		"engineVolume":  1598,
		"hand":          map[string]interface{}{"id": 2, "text": "יד שנייה"},
		"handNumber":    2,
		"km":            45000,
		"gearBox":       map[string]interface{}{"id": 102, "text": "אוטומטית"},
		"color":         map[string]interface{}{"id": 7, "text": "לבן"},
		"price":         89000,
		"address": map[string]interface{}{
			"area": map[string]interface{}{"id": 5, "text": "מרכז"},
		},
		"metaData": map[string]interface{}{
			"coverImage": "https://img.yad2.co.il/" + token + ".jpg",
			"images":     []interface{}{"a.jpg", "b.jpg", "c.jpg"},
			"financingInfo": map[string]interface{}{
				"advancePayment":   20000,
				"monthlyPayment":   1500,
				"numberOfPayments": 48,
				"balance":          0,
			},
			"commitments": []interface{}{
				map[string]interface{}{"text": "אחריות יצרן"},
			},
		},
		"tags": []interface{}{
			map[string]interface{}{"name": "שמור"},
			map[string]interface{}{"text": "יבוא מקביל"},
		},
		"customer": map[string]interface{}{
			"id":         "",
			"agencyName": "",
		},
		"packages": map[string]interface{}{"isTradeInButton": false},
		"priority": 1,
	}
}

// Cars returns one Car per token.
func Cars(tokens ...string) []interface{} {
	out := make([]interface{}, len(tokens))
	for i, t := range tokens {
		out[i] = Car(t)
	}
	return out
}

// FeedPayload builds the Next.js payload carrying f.
func FeedPayload(f Feed) map[string]interface{} {
	data := map[string]interface{}{
		"pagination": map[string]interface{}{
			"pages": f.Pages,
			"total": f.Total,
		},
	}
	for bucket, items := range f.Buckets {
		data[bucket] = items
	}

	return map[string]interface{}{
		"props": map[string]interface{}{
			"pageProps": map[string]interface{}{
				"dehydratedState": map[string]interface{}{
					"queries": []interface{}{
						map[string]interface{}{
							"queryKey": []interface{}{"user-details"},
							"state":    map[string]interface{}{"data": map[string]interface{}{}},
						},
						map[string]interface{}{
							"queryKey": []interface{}{"feed", "cars", map[string]interface{}{"page": 1}},
							"state":    map[string]interface{}{"data": data},
						},
					},
				},
			},
		},
	}
}

// FeedHTML renders a search page carrying f.
func FeedHTML(f Feed) string {
	return NextDataHTML(FeedPayload(f))
}

// PrivatePage renders a search page whose private bucket holds one Car per
// token.
func PrivatePage(pages int, tokens ...string) string {
	return FeedHTML(Feed{
		Pages:   pages,
		Total:   pages * 40,
		Buckets: map[string]interface{}{"private": Cars(tokens...)},
	})
}

// NextDataHTML renders payload as the __NEXT_DATA__ script of a page.
func NextDataHTML(payload interface{}) string {
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(fmt.Sprintf("testutil: marshal payload: %v", err))
	}
	return RawNextDataHTML(string(raw))
}

// RawNextDataHTML renders raw verbatim as the __NEXT_DATA__ script of a page.
func RawNextDataHTML(raw string) string {
	return `<!DOCTYPE html><html lang="he" dir="rtl"><head><title>יד2</title></head><body>` +
		`<div id="__next"><h1>רכבים למכירה</h1></div>` +
		`<script id="__NEXT_DATA__" type="application/json">` + raw + `</script>` +
		`</body></html>`
}

// ChallengePage renders a page without a data block, like the bot check.
func ChallengePage() string {
	return `<!DOCTYPE html><html><head><title>` + html.EscapeString("Are you for real?") +
		`</title></head><body><div id="challenge">Checking your browser</div></body></html>`
}
