package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FieldType selects how a column is decoded and which default fills a missing
// cell.
type FieldType string

const (
	// Text columns default to "Unknown".
	Text FieldType = "text"
	// Number columns default to 0.0.
	Number FieldType = "number"
	// Compound columns hold lists or mappings, stored as JSON text.
	Compound FieldType = "compound"
)

// Field is one declared column of an entity.
type Field struct {
	Name string    `yaml:"name" json:"name"`
	Type FieldType `yaml:"type,omitempty" json:"type,omitempty"`
}

// UnmarshalYAML accepts either a bare column name (a text field) or a mapping.
func (f *Field) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		f.Name = node.Value
		f.Type = Text
		return nil
	}
	type plain Field
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*f = Field(p)
	return nil
}

// Entity describes one business object type: its table name, ordered
// columns and the validator assigned to each checked field.
type Entity struct {
	Name       string            `yaml:"name" json:"name"`
	Fields     []Field           `yaml:"fields" json:"fields"`
	Validators map[string]string `yaml:"validators,omitempty" json:"validators,omitempty"`
}

// FieldNames returns the declared column names in order.
func (e Entity) FieldNames() []string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Name
	}
	return names
}

// Catalog is the document layout of an entity definitions file.
type Catalog struct {
	Entities []Entity `yaml:"entities"`
}

// Parse decodes a YAML entity catalog.
func Parse(data []byte) ([]Entity, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse entity catalog: %w", err)
	}
	if len(c.Entities) == 0 {
		return nil, fmt.Errorf("entity catalog defines no entities")
	}
	return c.Entities, nil
}

// LoadFile reads a YAML entity catalog from disk.
func LoadFile(path string) ([]Entity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func text(name string) Field     { return Field{Name: name, Type: Text} }
func number(name string) Field   { return Field{Name: name, Type: Number} }
func compound(name string) Field { return Field{Name: name, Type: Compound} }

// partyValidators are shared by suppliers and customers.
func partyValidators() map[string]string {
	return map[string]string{
		"email":      "email",
		"phone":      "phone",
		"gst_number": "gst_number",
		"pan_number": "pan",
	}
}

func orderFields(docNumber, party string) []Field {
	return []Field{
		text(docNumber), text(party),
		text("order_date"), text("delivery_date"),
		compound("items"),
		number("subtotal"), number("gst_amount"), number("total_amount"),
		text("payment_terms"), text("status"), text("notes"),
	}
}

// Defaults returns the built-in back-office catalog.
func Defaults() []Entity {
	return []Entity{
		{
			Name: "categories",
			Fields: []Field{
				text("name"), text("description"), text("parent_category"), text("status"),
			},
		},
		{
			Name: "suppliers",
			Fields: []Field{
				text("name"), text("contact_person"), text("email"), text("phone"), text("address"),
				text("gst_number"), text("pan_number"), compound("bank_details"),
				text("payment_terms"), number("credit_limit"), text("status"),
			},
			Validators: partyValidators(),
		},
		{
			Name: "customers",
			Fields: []Field{
				text("name"), text("contact_person"), text("email"), text("phone"), text("address"),
				text("gst_number"), text("pan_number"), number("credit_limit"),
				text("payment_terms"), text("status"),
			},
			Validators: partyValidators(),
		},
		{
			Name: "inventory",
			Fields: []Field{
				text("name"), text("sku"), text("barcode"), text("category"),
				compound("suppliers"), text("unit"),
				number("quantity"), number("min_quantity"), number("max_quantity"),
				number("purchase_price"), number("selling_price"), number("mrp"), number("gst_rate"),
				text("hsn_code"), text("status"), text("description"), compound("specifications"),
			},
		},
		{
			Name:   "purchase_orders",
			Fields: orderFields("po_number", "supplier"),
		},
		{
			Name:   "sales_orders",
			Fields: orderFields("so_number", "customer"),
		},
		{
			Name: "invoices",
			Fields: []Field{
				text("invoice_number"), text("reference_type"), text("reference_id"),
				text("date"), text("due_date"), text("customer"),
				text("billing_address"), text("shipping_address"),
				compound("items"), number("subtotal"), number("discount"),
				compound("gst_breakdown"), number("total_gst"), number("total_amount"),
				text("payment_status"), text("notes"),
			},
		},
		{
			Name: "payments",
			Fields: []Field{
				text("payment_number"), text("date"), text("entity_type"), text("entity_id"),
				number("amount"), text("payment_method"), text("reference_number"),
				text("notes"), text("status"),
			},
		},
		{
			Name: "tax_rates",
			Fields: []Field{
				text("name"), number("rate"), text("description"), text("status"),
			},
		},
	}
}
