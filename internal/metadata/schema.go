package metadata

import "fmt"

// Schema describes one (tenant, resource kind) partition: the backing table,
// the tenant-specific field layout and the event-type prefix used for webhooks.
// Every table and column name the engine emits comes from a Schema, never from
// request input.
type Schema struct {
	Tenant    string  `json:"tenant"`
	Kind      string  `json:"kind"`       // contacts, deals, companies
	EventName string  `json:"event_name"` // singular: contact, deal, company
	Fields    []Field `json:"fields"`     // tenant-specific fields, excluding id/created_at/updated_at
}

// Table returns the backing table name for this partition.
func (s *Schema) Table() string {
	return s.Tenant + "_" + s.Kind
}

// GetField returns a pointer to the field with the given name, or nil.
func (s *Schema) GetField(name string) *Field {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return &s.Fields[i]
		}
	}
	return nil
}

// HasField returns true if the schema has a field with the given name.
func (s *Schema) HasField(name string) bool {
	return s.GetField(name) != nil
}

// FieldNames returns all schema field names, excluding the system columns.
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// RequiredFields returns the fields a create payload must supply.
func (s *Schema) RequiredFields() []Field {
	var fields []Field
	for _, f := range s.Fields {
		if f.Required {
			fields = append(fields, f)
		}
	}
	return fields
}

// EventType maps a mutation operation to the webhook event type string,
// e.g. ("contacts", CREATE) -> "contact.created".
func (s *Schema) EventType(operation string) string {
	switch operation {
	case "CREATE":
		return s.EventName + ".created"
	case "UPDATE":
		return s.EventName + ".updated"
	case "DELETE":
		return s.EventName + ".deleted"
	}
	return ""
}

func (s *Schema) key() string {
	return fmt.Sprintf("%s/%s", s.Tenant, s.Kind)
}
