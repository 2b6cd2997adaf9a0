// Package listing extracts used-car listings from Yad2 search result pages.
//
// A search page is a server-rendered Next.js document. The listings are not in
// the markup itself but in the JSON payload of the script#__NEXT_DATA__
// element, under props.pageProps.dehydratedState.queries[]. Extract finds that
// payload, picks the "feed" query and flattens its listing buckets.
package listing

// Listing is one used-car ad. Every field is a string and defaults to "".
// Token is the identity field: two listings with the same non-empty token are
// the same ad.
type Listing struct {
	Token            string `csv:"token" json:"token"`
	OrderID          string `csv:"order_id" json:"order_id"`
	AdType           string `csv:"ad_type" json:"ad_type"`
	ListingSource    string `csv:"listing_source" json:"listing_source"`
	Manufacturer     string `csv:"manufacturer" json:"manufacturer"`
	ManufacturerID   string `csv:"manufacturer_id" json:"manufacturer_id"`
	Model            string `csv:"model" json:"model"`
	ModelID          string `csv:"model_id" json:"model_id"`
	SubModel         string `csv:"sub_model" json:"sub_model"`
	SubModelID       string `csv:"sub_model_id" json:"sub_model_id"`
	Year             string `csv:"year" json:"year"`
	EngineType       string `csv:"engine_type" json:"engine_type"`
	EngineTypeID     string `csv:"engine_type_id" json:"engine_type_id"`
	EngineVolumeCC   string `csv:"engine_volume_cc" json:"engine_volume_cc"`
	Hand             string `csv:"hand" json:"hand"`
	HandNumber       string `csv:"hand_number" json:"hand_number"`
	Kilometers       string `csv:"kilometers" json:"kilometers"`
	GearBox          string `csv:"gear_box" json:"gear_box"`
	Color            string `csv:"color" json:"color"`
	Price            string `csv:"price" json:"price"`
	AdvancePayment   string `csv:"advance_payment" json:"advance_payment"`
	MonthlyPayment   string `csv:"monthly_payment" json:"monthly_payment"`
	NumberOfPayments string `csv:"number_of_payments" json:"number_of_payments"`
	Balance          string `csv:"balance" json:"balance"`
	Area             string `csv:"area" json:"area"`
	AreaID           string `csv:"area_id" json:"area_id"`
	ImageCount       string `csv:"image_count" json:"image_count"`
	CoverImageURL    string `csv:"cover_image_url" json:"cover_image_url"`
	Tags             string `csv:"tags" json:"tags"`
	AgencyName       string `csv:"agency_name" json:"agency_name"`
	AgencyCustomerID string `csv:"agency_customer_id" json:"agency_customer_id"`
	Commitments      string `csv:"commitments" json:"commitments"`
	HasTradeIn       string `csv:"has_trade_in" json:"has_trade_in"`
	Priority         string `csv:"priority" json:"priority"`
}

// Columns is the ordered field list used as the CSV header.
var Columns = []string{
	"token",
	"order_id",
	"ad_type",
	"listing_source",
	"manufacturer",
	"manufacturer_id",
	"model",
	"model_id",
	"sub_model",
	"sub_model_id",
	"year",
	"engine_type",
	"engine_type_id",
	"engine_volume_cc",
	"hand",
	"hand_number",
	"kilometers",
	"gear_box",
	"color",
	"price",
	"advance_payment",
	"monthly_payment",
	"number_of_payments",
	"balance",
	"area",
	"area_id",
	"image_count",
	"cover_image_url",
	"tags",
	"agency_name",
	"agency_customer_id",
	"commitments",
	"has_trade_in",
	"priority",
}

// Buckets are the feed arrays that carry listings, in output order.
// Promoted buckets (platinum, boost, solo) repeat across pages, which is why
// the exporter deduplicates by token.
var Buckets = []string{"commercial", "private", "platinum", "boost", "solo"}

// PageResult is everything extracted from one search page.
type PageResult struct {
	Listings []Listing

	// TotalPages is the page count reported by the source; 0 means unknown.
	TotalPages int

	// TotalResults is the result count reported by the source; 0 means unknown.
	TotalResults int

	// Warnings lists the items that were skipped because they were malformed.
	Warnings []RecordWarning
}
