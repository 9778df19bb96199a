package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		bookings := core.NewBaseCollection("bookings")
		bookings.Fields.Add(
			&core.SelectField{Name: "type", Required: true, MaxSelect: 1, Values: []string{
				"private",
				"commercial",
			}},
			&core.TextField{Name: "driver_id", Required: true},
			&core.TextField{Name: "host_id", Required: true},
			&core.TextField{Name: "listing_id"},
			&core.TextField{Name: "slot_id"},
			&core.TextField{Name: "facility_id"},
			&core.DateField{Name: "scheduled_start", Required: true},
			&core.DateField{Name: "scheduled_end", Required: true},
			&core.DateField{Name: "actual_start"},
			&core.DateField{Name: "actual_end"},
			&core.NumberField{Name: "hourly_rate", Required: true},
			&core.NumberField{Name: "estimated_cost"},
			&core.NumberField{Name: "actual_cost"},
			&core.NumberField{Name: "tax_amount"},
			&core.SelectField{Name: "status", Required: true, MaxSelect: 1, Values: []string{
				"requested",
				"confirmed",
				"active",
				"completed",
				"rejected",
				"cancelled",
				"cancel_requested",
				"no_show",
			}},
			&core.TextField{Name: "access_code_hash", Max: 100},
			&core.TextField{Name: "rejection_reason", Max: 500},
			&core.DateField{Name: "approved_at"},
			&core.TextField{Name: "driver_message", Max: 1000},
			&core.TextField{Name: "host_message", Max: 1000},
			&core.NumberField{Name: "rating", OnlyInt: true},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)
		bookings.AddIndex("idx_bookings_driver", false, "driver_id", "")
		bookings.AddIndex("idx_bookings_host_status", false, "host_id, status", "")
		bookings.AddIndex("idx_bookings_facility_status", false, "facility_id, status", "")
		return app.Save(bookings)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("bookings")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
