package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		users, err := app.FindCollectionByNameOrId("users")
		if err != nil {
			return err
		}

		users.Fields.Add(
			&core.BoolField{Name: "can_drive"},
			&core.BoolField{Name: "can_host_private"},
			&core.BoolField{Name: "can_host_commercial"},
			&core.NumberField{Name: "booking_count", OnlyInt: true},
			&core.NumberField{Name: "total_earnings"},
			&core.NumberField{Name: "host_rating"},
			&core.NumberField{Name: "rating_count", OnlyInt: true},
		)
		return app.Save(users)
	}, func(app core.App) error {
		users, err := app.FindCollectionByNameOrId("users")
		if err != nil {
			return err
		}

		for _, name := range []string{
			"can_drive",
			"can_host_private",
			"can_host_commercial",
			"booking_count",
			"total_earnings",
			"host_rating",
			"rating_count",
		} {
			users.Fields.RemoveByName(name)
		}
		return app.Save(users)
	})
}
