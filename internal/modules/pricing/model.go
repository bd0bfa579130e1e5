// README: Delivery rate definitions.
package pricing

// Rate prices a delivery method: a flat base plus a per-km charge, in the
// currency's minor unit.
type Rate struct {
	Method  string
	BaseFee int64
	PerKm   int64
}

// defaultRates are used when no rate row exists for a method.
var defaultRates = map[string]Rate{
	"standard": {Method: "standard", BaseFee: 250, PerKm: 60},
	"express":  {Method: "express", BaseFee: 500, PerKm: 110},
	"pickup":   {Method: "pickup", BaseFee: 0, PerKm: 0},
}

// taxPermille is the sales-tax rate applied to the item subtotal, in
// tenths of a percent.
const taxPermille = 80
