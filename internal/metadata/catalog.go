package metadata

// Catalog returns the built-in tenant schemas. Each mocked system exposes the
// same three resource kinds under its own field naming convention.
func Catalog() []*Schema {
	return []*Schema{
		{
			Tenant: "salesforce", Kind: "contacts", EventName: "contact",
			Fields: []Field{
				{Name: "Email", Type: "string", Required: true},
				{Name: "FirstName", Type: "string", Required: true},
				{Name: "LastName", Type: "string", Required: true},
				{Name: "Phone", Type: "string"},
				{Name: "AccountId", Type: "string"},
				{Name: "OwnerId", Type: "string"},
				{Name: "Title", Type: "string"},
				{Name: "Department", Type: "string"},
			},
		},
		{
			Tenant: "salesforce", Kind: "deals", EventName: "deal",
			Fields: []Field{
				{Name: "Name", Type: "string", Required: true},
				{Name: "Amount", Type: "decimal", Required: true},
				{Name: "Stage", Type: "string", Required: true},
				{Name: "CloseDate", Type: "string", Required: true},
				{Name: "ContactId", Type: "string"},
				{Name: "AccountId", Type: "string"},
				{Name: "Probability", Type: "int"},
				{Name: "Description", Type: "string"},
			},
		},
		{
			Tenant: "salesforce", Kind: "companies", EventName: "company",
			Fields: []Field{
				{Name: "Name", Type: "string", Required: true},
				{Name: "Industry", Type: "string"},
				{Name: "Phone", Type: "string"},
				{Name: "Website", Type: "string"},
				{Name: "NumberOfEmployees", Type: "int"},
				{Name: "AnnualRevenue", Type: "decimal"},
				{Name: "BillingStreet", Type: "string"},
				{Name: "BillingCity", Type: "string"},
				{Name: "BillingState", Type: "string"},
				{Name: "BillingCountry", Type: "string"},
			},
		},
		{
			Tenant: "hubspot", Kind: "contacts", EventName: "contact",
			Fields: []Field{
				{Name: "email_address", Type: "string", Required: true},
				{Name: "firstname", Type: "string", Required: true},
				{Name: "lastname", Type: "string", Required: true},
				{Name: "phone_number", Type: "string"},
				{Name: "company_id", Type: "string"},
				{Name: "owner_id", Type: "string"},
				{Name: "job_title", Type: "string"},
				{Name: "department", Type: "string"},
			},
		},
		{
			Tenant: "hubspot", Kind: "deals", EventName: "deal",
			Fields: []Field{
				{Name: "deal_name", Type: "string", Required: true},
				{Name: "amount", Type: "decimal", Required: true},
				{Name: "deal_stage", Type: "string", Required: true},
				{Name: "close_date", Type: "string", Required: true},
				{Name: "contact_id", Type: "string"},
				{Name: "company_id", Type: "string"},
				{Name: "probability", Type: "int"},
				{Name: "description", Type: "string"},
			},
		},
		{
			Tenant: "hubspot", Kind: "companies", EventName: "company",
			Fields: []Field{
				{Name: "company_name", Type: "string", Required: true},
				{Name: "industry", Type: "string"},
				{Name: "phone", Type: "string"},
				{Name: "website", Type: "string"},
				{Name: "number_of_employees", Type: "int"},
				{Name: "annual_revenue", Type: "decimal"},
				{Name: "street_address", Type: "string"},
				{Name: "city", Type: "string"},
				{Name: "state", Type: "string"},
				{Name: "country", Type: "string"},
			},
		},
		{
			Tenant: "pipedrive", Kind: "contacts", EventName: "contact",
			Fields: []Field{
				{Name: "email", Type: "string", Required: true},
				{Name: "first_name", Type: "string", Required: true},
				{Name: "last_name", Type: "string", Required: true},
				{Name: "phone", Type: "string"},
				{Name: "organization_id", Type: "string"},
				{Name: "owner_id", Type: "string"},
				{Name: "job_title", Type: "string"},
				{Name: "department", Type: "string"},
			},
		},
		{
			Tenant: "pipedrive", Kind: "deals", EventName: "deal",
			Fields: []Field{
				{Name: "title", Type: "string", Required: true},
				{Name: "value", Type: "decimal", Required: true},
				{Name: "status", Type: "string", Required: true},
				{Name: "expected_close_date", Type: "string", Required: true},
				{Name: "person_id", Type: "string"},
				{Name: "organization_id", Type: "string"},
				{Name: "probability", Type: "int"},
				{Name: "description", Type: "string"},
			},
		},
		{
			Tenant: "pipedrive", Kind: "companies", EventName: "company",
			Fields: []Field{
				{Name: "name", Type: "string", Required: true},
				{Name: "industry", Type: "string"},
				{Name: "phone", Type: "string"},
				{Name: "website", Type: "string"},
				{Name: "people_count", Type: "int"},
				{Name: "annual_revenue", Type: "decimal"},
				{Name: "address_street", Type: "string"},
				{Name: "address_city", Type: "string"},
				{Name: "address_state", Type: "string"},
				{Name: "address_country", Type: "string"},
			},
		},
	}
}
