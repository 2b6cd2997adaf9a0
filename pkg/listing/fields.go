package listing

import (
	"strconv"
	"strings"
)

// accessor reads one column value from a raw feed item.
type accessor func(item node) string

// path reads the scalar at keys.
func path(keys ...interface{}) accessor {
	return func(item node) string {
		return item.get(keys...).scalar()
	}
}

// text reads the display text of the value at keys: the "text" member of a
// {id, text} object, or the scalar itself.
func text(keys ...interface{}) accessor {
	return func(item node) string {
		return item.get(keys...).display("text")
	}
}

// id reads the "id" member of the {id, text} object at keys. Scalars have no id.
func id(keys ...interface{}) accessor {
	return func(item node) string {
		v := item.get(keys...)
		if !v.isObject() {
			return ""
		}
		return v.get("id").scalar()
	}
}

// length reads the number of elements of the array at keys.
func length(keys ...interface{}) accessor {
	return func(item node) string {
		return strconv.Itoa(len(item.get(keys...).items()))
	}
}

// joined renders the array at keys as a ", " separated list, unwrapping each
// element through displayKeys.
func joined(keys []interface{}, displayKeys ...string) accessor {
	return func(item node) string {
		var parts []string
		for _, el := range item.get(keys...).items() {
			if s := el.display(displayKeys...); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	}
}

// firstOf returns the first non-empty value among accessors.
func firstOf(accessors ...accessor) accessor {
	return func(item node) string {
		for _, a := range accessors {
			if s := a(item); s != "" {
				return s
			}
		}
		return ""
	}
}

type fieldMapping struct {
	dst func(l *Listing) *string
	src accessor
}

// fieldMappings is evaluated once per feed item. AdType is not part of the
// item and is set from the bucket name.
var fieldMappings = []fieldMapping{
	{func(l *Listing) *string { return &l.Token }, path("token")},
	{func(l *Listing) *string { return &l.OrderID }, path("orderId")},
	{func(l *Listing) *string { return &l.ListingSource }, path("listingSource")},
	{func(l *Listing) *string { return &l.Manufacturer }, text("manufacturer")},
	{func(l *Listing) *string { return &l.ManufacturerID }, id("manufacturer")},
	{func(l *Listing) *string { return &l.Model }, text("model")},
	{func(l *Listing) *string { return &l.ModelID }, id("model")},
	{func(l *Listing) *string { return &l.SubModel }, text("subModel")},
	{func(l *Listing) *string { return &l.SubModelID }, id("subModel")},
	{func(l *Listing) *string { return &l.Year }, path("vehicleDates", "yearOfProduction")},
	{func(l *Listing) *string { return &l.EngineType }, text("engineType")},
	{func(l *Listing) *string { return &l.EngineTypeID }, id("engineType")},
	{func(l *Listing) *string { return &l.EngineVolumeCC }, path("engineVolume")},
	{func(l *Listing) *string { return &l.Hand }, text("hand")},
	{func(l *Listing) *string { return &l.HandNumber }, path("handNumber")},
	{func(l *Listing) *string { return &l.Kilometers }, firstOf(path("km"), path("kilometers"))},
	{func(l *Listing) *string { return &l.GearBox }, text("gearBox")},
	{func(l *Listing) *string { return &l.Color }, text("color")},
	{func(l *Listing) *string { return &l.Price }, path("price")},
	{func(l *Listing) *string { return &l.AdvancePayment }, path("metaData", "financingInfo", "advancePayment")},
	{func(l *Listing) *string { return &l.MonthlyPayment }, path("metaData", "financingInfo", "monthlyPayment")},
	{func(l *Listing) *string { return &l.NumberOfPayments }, path("metaData", "financingInfo", "numberOfPayments")},
	{func(l *Listing) *string { return &l.Balance }, path("metaData", "financingInfo", "balance")},
	{func(l *Listing) *string { return &l.Area }, text("address", "area")},
	{func(l *Listing) *string { return &l.AreaID }, id("address", "area")},
	{func(l *Listing) *string { return &l.ImageCount }, length("metaData", "images")},
	{func(l *Listing) *string { return &l.CoverImageURL }, path("metaData", "coverImage")},
	{func(l *Listing) *string { return &l.Tags }, joined([]interface{}{"tags"}, "name", "text")},
	{func(l *Listing) *string { return &l.AgencyName }, path("customer", "agencyName")},
	{func(l *Listing) *string { return &l.AgencyCustomerID }, path("customer", "id")},
	{func(l *Listing) *string { return &l.Commitments }, joined([]interface{}{"metaData", "commitments"}, "text")},
	{func(l *Listing) *string { return &l.HasTradeIn }, path("packages", "isTradeInButton")},
	{func(l *Listing) *string { return &l.Priority }, path("priority")},
}

// fromItem maps a raw feed item onto a Listing. Unknown item fields are ignored.
func fromItem(item node, adType string) Listing {
	l := Listing{AdType: adType}
	for _, m := range fieldMappings {
		*m.dst(&l) = m.src(item)
	}
	return l
}
