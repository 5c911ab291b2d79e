package model

// Semantic field names used across the pipeline. The extractor maps source
// column headers onto these names; every later stage addresses fields by
// them only.
const (
	FieldBranch       = "branch"
	FieldDateTime     = "date_time"
	FieldQty          = "qty"
	FieldPrice        = "price"
	FieldPaymentType  = "payment_type"
	FieldProduct      = "product"
	FieldProductName  = "product_name"
	FieldSize         = "size"
	FieldFlavour      = "flavour"
	FieldProductPrice = "product_price"

	FieldCustomerName = "customer_name"
	FieldCardNumber   = "card_number"
	FieldEmail        = "email"
	FieldPhone        = "phone"
)

// BusinessFields is the set of fields that carry purchase data. They form
// the duplicate-comparison key and are the only fields the scrubber lets
// through without classification.
var BusinessFields = map[string]bool{
	FieldBranch:       true,
	FieldDateTime:     true,
	FieldQty:          true,
	FieldPrice:        true,
	FieldPaymentType:  true,
	FieldProduct:      true,
	FieldProductName:  true,
	FieldSize:         true,
	FieldFlavour:      true,
	FieldProductPrice: true,
}

// BusinessFieldOrder fixes the order in which business fields contribute to
// the duplicate-comparison key.
var BusinessFieldOrder = []string{
	FieldBranch,
	FieldDateTime,
	FieldQty,
	FieldPrice,
	FieldPaymentType,
	FieldProduct,
	FieldProductName,
	FieldSize,
	FieldFlavour,
	FieldProductPrice,
}
