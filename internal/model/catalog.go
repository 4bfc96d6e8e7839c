package model

// Product is a sellable product in the catalog.
type Product struct {
	Key      string `json:"key" bson:"key"`
	Label    string `json:"label" bson:"label"`
	Category string `json:"category,omitempty" bson:"category,omitempty"`
}

// AccountType is a free text account category, e.g. "shared account".
type AccountType struct {
	Label string `json:"label" bson:"label"`
}

// Duration is a selectable subscription length.
type Duration struct {
	Label string `json:"label" bson:"label"`
	Code  string `json:"code" bson:"code"`
	Seq   int    `json:"seq" bson:"seq"`
}

// Catalog is the reference data used to populate selections.
type Catalog struct {
	Products     []Product     `json:"products"`
	AccountTypes []AccountType `json:"account_types"`
	Durations    []Duration    `json:"durations"`
	Fallback     bool          `json:"fallback"`
}
