package seed

import (
	"strings"

	"github.com/brianvoe/gofakeit/v7"

	"mockcrm-backend/internal/metadata"
)

var dealStages = []string{"prospecting", "qualification", "proposal", "negotiation", "closed_won", "closed_lost"}
var dealStatuses = []string{"open", "won", "lost"}
var industries = []string{"Technology", "Healthcare", "Finance", "Manufacturing", "Retail", "Education", "Real Estate", "Media"}
var departments = []string{"Sales", "Marketing", "Engineering", "Support", "Operations", "Finance"}

// Record generates one realistic payload for a schema. Field meanings are
// inferred from the tenant-specific names, so every naming convention gets
// plausible values for the same underlying concept.
func Record(f *gofakeit.Faker, schema *metadata.Schema) map[string]any {
	record := make(map[string]any, len(schema.Fields))
	for _, field := range schema.Fields {
		record[field.Name] = fieldValue(f, schema, field)
	}
	return record
}

func fieldValue(f *gofakeit.Faker, schema *metadata.Schema, field metadata.Field) any {
	name := strings.ToLower(field.Name)

	switch {
	case strings.Contains(name, "email"):
		return f.Email()
	case name == "firstname" || name == "first_name":
		return f.FirstName()
	case name == "lastname" || name == "last_name":
		return f.LastName()
	case strings.Contains(name, "phone"):
		return f.Phone()
	case name == "title" && schema.Kind == "deals":
		return f.Company() + " deal"
	case strings.Contains(name, "title"):
		return f.JobTitle()
	case strings.Contains(name, "department"):
		return f.RandomString(departments)
	case strings.Contains(name, "industry"):
		return f.RandomString(industries)
	case strings.Contains(name, "website"):
		return f.URL()
	case name == "stage" || name == "deal_stage":
		return f.RandomString(dealStages)
	case name == "status":
		return f.RandomString(dealStatuses)
	case strings.Contains(name, "close_date"):
		return f.FutureDate().Format("2006-01-02")
	case strings.Contains(name, "probability"):
		return f.Number(10, 90)
	case strings.Contains(name, "employees") || name == "people_count":
		return f.Number(5, 5000)
	case strings.Contains(name, "revenue"):
		return f.Price(100000, 50000000)
	case strings.Contains(name, "street"):
		return f.Street()
	case strings.Contains(name, "city"):
		return f.City()
	case strings.Contains(name, "state"):
		return f.State()
	case strings.Contains(name, "country"):
		return f.Country()
	case strings.Contains(name, "description"):
		return f.Sentence(8)
	case strings.HasSuffix(name, "id"):
		return f.UUID()
	case name == "amount" || name == "value":
		return f.Price(1000, 250000)
	case name == "name" || strings.Contains(name, "company_name") || name == "deal_name":
		if schema.Kind == "deals" {
			return f.Company() + " deal"
		}
		return f.Company()
	}

	switch field.Type {
	case "int":
		return f.Number(1, 100)
	case "decimal":
		return f.Price(1, 10000)
	default:
		return f.Word()
	}
}
