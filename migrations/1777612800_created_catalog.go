package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		listings := core.NewBaseCollection("listings")
		listings.Fields.Add(
			&core.TextField{Name: "host_id", Required: true},
			&core.TextField{Name: "title", Required: true, Max: 200},
			&core.TextField{Name: "description", Max: 2000},
			&core.NumberField{Name: "hourly_rate", Required: true},
			&core.BoolField{Name: "auto_accept"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)
		listings.AddIndex("idx_listings_host", false, "host_id", "")
		if err := app.Save(listings); err != nil {
			return err
		}

		slots := core.NewBaseCollection("slots")
		slots.Fields.Add(
			&core.TextField{Name: "listing_id", Required: true},
			&core.TextField{Name: "label", Max: 50},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)
		slots.AddIndex("idx_slots_listing", false, "listing_id", "")
		if err := app.Save(slots); err != nil {
			return err
		}

		facilities := core.NewBaseCollection("facilities")
		facilities.Fields.Add(
			&core.TextField{Name: "owner_id", Required: true},
			&core.TextField{Name: "name", Required: true, Max: 200},
			&core.TextField{Name: "address", Max: 500},
			&core.NumberField{Name: "hourly_rate", Required: true},
			&core.NumberField{Name: "total_capacity", Required: true, OnlyInt: true},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)
		facilities.AddIndex("idx_facilities_owner", false, "owner_id", "")
		return app.Save(facilities)
	}, func(app core.App) error {
		for _, name := range []string{"facilities", "slots", "listings"} {
			collection, err := app.FindCollectionByNameOrId(name)
			if err != nil {
				return err
			}
			if err := app.Delete(collection); err != nil {
				return err
			}
		}
		return nil
	})
}
