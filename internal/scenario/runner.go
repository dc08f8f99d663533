package scenario

import (
	"context"
	"fmt"

	"github.com/brianvoe/gofakeit/v7"

	"mockcrm-backend/internal/engine"
	"mockcrm-backend/internal/metadata"
	"mockcrm-backend/internal/seed"
	"mockcrm-backend/internal/store"
)

// Runner executes canned multi-step scenarios through the same CRUD service
// the public API uses, so every step leaves change history and webhook
// events behind exactly like real traffic.
type Runner struct {
	store     *store.Store
	registry  *metadata.Registry
	resources *engine.Resources
	simulator *engine.Simulator
	faker     *gofakeit.Faker
}

func NewRunner(s *store.Store, reg *metadata.Registry, resources *engine.Resources, sim *engine.Simulator) *Runner {
	return &Runner{
		store:     s,
		registry:  reg,
		resources: resources,
		simulator: sim,
		faker:     gofakeit.New(0),
	}
}

// Result summarizes one scenario run.
type Result struct {
	Scenario string           `json:"scenario"`
	Actions  []map[string]any `json:"actions"`
	Message  string           `json:"message,omitempty"`
}

// Names returns the available scenario names.
func Names() []string {
	return []string{
		"create-contacts", "update-deals", "bulk-update", "delete-contacts",
		"rapid-changes", "rate-limit", "api-errors",
	}
}

// Run executes one scenario by name.
func (r *Runner) Run(ctx context.Context, name string) (*Result, error) {
	switch name {
	case "create-contacts":
		return r.createContacts(ctx)
	case "update-deals":
		return r.updateDeals(ctx)
	case "bulk-update":
		return r.bulkUpdate(ctx)
	case "delete-contacts":
		return r.deleteContacts(ctx)
	case "rapid-changes":
		return r.rapidChanges(ctx)
	case "rate-limit":
		r.simulator.EnableRateLimit()
		return &Result{
			Scenario: name,
			Message:  fmt.Sprintf("rate limiting enabled for %s", r.simulator.Window()),
		}, nil
	case "api-errors":
		r.simulator.EnableErrors()
		return &Result{
			Scenario: name,
			Message:  fmt.Sprintf("random errors enabled for %s", r.simulator.Window()),
		}, nil
	default:
		return nil, engine.NewAppError("VALIDATION_FAILED", 400,
			fmt.Sprintf("unknown scenario: %s", name))
	}
}

func (r *Runner) createContacts(ctx context.Context) (*Result, error) {
	result := &Result{Scenario: "create-contacts"}
	for _, tenant := range r.registry.Tenants() {
		schema := r.registry.Get(tenant, "contacts")
		if schema == nil {
			continue
		}
		for i := 0; i < 3; i++ {
			record, err := r.resources.Create(ctx, schema, seed.Record(r.faker, schema))
			if err != nil {
				return nil, err
			}
			result.Actions = append(result.Actions, map[string]any{
				"operation": "CREATE", "tenant": tenant, "resource_kind": "contacts",
				"resource_id": record["id"],
			})
		}
	}
	return result, nil
}

func (r *Runner) updateDeals(ctx context.Context) (*Result, error) {
	result := &Result{Scenario: "update-deals"}
	for _, tenant := range r.registry.Tenants() {
		schema := r.registry.Get(tenant, "deals")
		if schema == nil {
			continue
		}
		rows, err := r.recent(ctx, schema, 5)
		if err != nil {
			return nil, err
		}

		amountField := pickField(schema, "Amount", "amount", "value")
		stageField := pickField(schema, "Stage", "deal_stage", "status")
		for _, row := range rows {
			patch := map[string]any{}
			if amountField != nil {
				patch[amountField.Name] = r.faker.Price(1000, 250000)
			}
			if stageField != nil {
				patch[stageField.Name] = seed.Record(r.faker, schema)[stageField.Name]
			}
			if len(patch) == 0 {
				continue
			}
			id, _ := row["id"].(string)
			if _, err := r.resources.Update(ctx, schema, id, patch); err != nil {
				return nil, err
			}
			result.Actions = append(result.Actions, map[string]any{
				"operation": "UPDATE", "tenant": tenant, "resource_kind": "deals",
				"resource_id": id,
			})
		}
	}
	return result, nil
}

func (r *Runner) bulkUpdate(ctx context.Context) (*Result, error) {
	result := &Result{Scenario: "bulk-update"}
	for _, tenant := range r.registry.Tenants() {
		schema := r.registry.Get(tenant, "contacts")
		if schema == nil {
			continue
		}
		field := pickField(schema, "Department", "department")
		if field == nil {
			continue
		}
		rows, err := r.recent(ctx, schema, 10)
		if err != nil {
			return nil, err
		}
		department := seed.Record(r.faker, schema)[field.Name]
		for _, row := range rows {
			id, _ := row["id"].(string)
			if _, err := r.resources.Update(ctx, schema, id, map[string]any{field.Name: department}); err != nil {
				return nil, err
			}
			result.Actions = append(result.Actions, map[string]any{
				"operation": "UPDATE", "tenant": tenant, "resource_kind": "contacts",
				"resource_id": id,
			})
		}
	}
	return result, nil
}

func (r *Runner) deleteContacts(ctx context.Context) (*Result, error) {
	result := &Result{Scenario: "delete-contacts"}
	for _, tenant := range r.registry.Tenants() {
		schema := r.registry.Get(tenant, "contacts")
		if schema == nil {
			continue
		}
		rows, err := r.recent(ctx, schema, 2)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			id, _ := row["id"].(string)
			if err := r.resources.Delete(ctx, schema, id); err != nil {
				return nil, err
			}
			result.Actions = append(result.Actions, map[string]any{
				"operation": "DELETE", "tenant": tenant, "resource_kind": "contacts",
				"resource_id": id,
			})
		}
	}
	return result, nil
}

// rapidChanges runs a create, update, delete burst per tenant to generate a
// dense event stream for receiver-side ordering checks.
func (r *Runner) rapidChanges(ctx context.Context) (*Result, error) {
	result := &Result{Scenario: "rapid-changes"}
	for _, tenant := range r.registry.Tenants() {
		schema := r.registry.Get(tenant, "contacts")
		if schema == nil {
			continue
		}
		record, err := r.resources.Create(ctx, schema, seed.Record(r.faker, schema))
		if err != nil {
			return nil, err
		}
		id, _ := record["id"].(string)

		field := pickField(schema, "Department", "department")
		if field != nil {
			if _, err := r.resources.Update(ctx, schema, id, map[string]any{
				field.Name: seed.Record(r.faker, schema)[field.Name],
			}); err != nil {
				return nil, err
			}
		}
		if err := r.resources.Delete(ctx, schema, id); err != nil {
			return nil, err
		}
		result.Actions = append(result.Actions, map[string]any{
			"operation": "CREATE+UPDATE+DELETE", "tenant": tenant,
			"resource_kind": "contacts", "resource_id": id,
		})
	}
	return result, nil
}

func (r *Runner) recent(ctx context.Context, schema *metadata.Schema, limit int) ([]map[string]any, error) {
	pb := r.store.Dialect.NewParamBuilder()
	return store.QueryRows(ctx, r.store.DB,
		fmt.Sprintf("SELECT * FROM %s ORDER BY created_at DESC LIMIT %s", schema.Table(), pb.Add(limit)),
		pb.Params()...)
}

func pickField(schema *metadata.Schema, names ...string) *metadata.Field {
	for _, name := range names {
		if f := schema.GetField(name); f != nil {
			return f
		}
	}
	return nil
}
