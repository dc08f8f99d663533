package metadata

import (
	"reflect"
	"testing"
)

func TestRegistryLoadAndLookup(t *testing.T) {
	reg := NewRegistry()
	reg.Load(Catalog())

	if got := len(reg.All()); got != 9 {
		t.Fatalf("expected 9 schemas, got %d", got)
	}

	schema := reg.Get("salesforce", "contacts")
	if schema == nil {
		t.Fatal("expected salesforce/contacts schema")
	}
	if schema.Table() != "salesforce_contacts" {
		t.Errorf("table = %q, want salesforce_contacts", schema.Table())
	}
	if !schema.HasField("Email") {
		t.Error("expected Email field on salesforce contacts")
	}
	if schema.HasField("email") {
		t.Error("field lookup should be case sensitive")
	}

	if reg.Get("salesforce", "invoices") != nil {
		t.Error("unknown kind should return nil")
	}
	if reg.Get("zoho", "contacts") != nil {
		t.Error("unknown tenant should return nil")
	}
}

func TestRegistryTenants(t *testing.T) {
	reg := NewRegistry()
	reg.Load(Catalog())

	want := []string{"hubspot", "pipedrive", "salesforce"}
	if got := reg.Tenants(); !reflect.DeepEqual(got, want) {
		t.Errorf("Tenants() = %v, want %v", got, want)
	}
	if !reg.HasTenant("hubspot") {
		t.Error("expected hubspot tenant")
	}
	if reg.HasTenant("zoho") {
		t.Error("did not expect zoho tenant")
	}
}

func TestRegistryEventTypes(t *testing.T) {
	reg := NewRegistry()
	reg.Load(Catalog())

	types := reg.EventTypes()
	if len(types) != 9 {
		t.Fatalf("expected 9 event types, got %d: %v", len(types), types)
	}
	seen := make(map[string]bool)
	for _, et := range types {
		seen[et] = true
	}
	for _, want := range []string{"contact.created", "deal.updated", "company.deleted"} {
		if !seen[want] {
			t.Errorf("missing event type %s", want)
		}
	}
}

func TestSchemaEventType(t *testing.T) {
	schema := &Schema{Tenant: "hubspot", Kind: "deals", EventName: "deal"}

	cases := map[string]string{
		"CREATE": "deal.created",
		"UPDATE": "deal.updated",
		"DELETE": "deal.deleted",
		"PATCH":  "",
	}
	for op, want := range cases {
		if got := schema.EventType(op); got != want {
			t.Errorf("EventType(%s) = %q, want %q", op, got, want)
		}
	}
}

func TestSchemaRequiredFields(t *testing.T) {
	reg := NewRegistry()
	reg.Load(Catalog())

	schema := reg.Get("hubspot", "deals")
	required := schema.RequiredFields()
	if len(required) != 4 {
		t.Fatalf("expected 4 required fields, got %d", len(required))
	}
	names := make(map[string]bool)
	for _, f := range required {
		names[f.Name] = true
	}
	for _, want := range []string{"deal_name", "amount", "deal_stage", "close_date"} {
		if !names[want] {
			t.Errorf("missing required field %s", want)
		}
	}
}
