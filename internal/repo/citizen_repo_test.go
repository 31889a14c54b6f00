package repo

import (
	"context"
	"errors"
	"testing"
)

func TestCitizenLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	const id = "911234567890"

	if _, err := GetCitizen(ctx, db, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetCitizen before create: err = %v, want ErrNotFound", err)
	}

	created, err := CreateCitizen(ctx, db, id, "Ramesh", "mr")
	if err != nil {
		t.Fatalf("CreateCitizen: %v", err)
	}
	if created.IsRegistered {
		t.Error("new citizen must not be registered")
	}

	lat, lng := 18.3322, 74.0298
	err = UpdateCitizenFields(ctx, db, id, map[string]any{
		"user_provided_name": "Ramesh Patil",
		"village":            "Saswad",
		"taluka":             "Purandar",
		"latitude":           lat,
		"longitude":          lng,
		"is_registered":      true,
	})
	if err != nil {
		t.Fatalf("UpdateCitizenFields: %v", err)
	}

	got, err := GetCitizen(ctx, db, id)
	if err != nil {
		t.Fatalf("GetCitizen: %v", err)
	}
	if got.UserProvidedName != "Ramesh Patil" || got.Village != "Saswad" || !got.IsRegistered {
		t.Errorf("unexpected citizen after update: %+v", got)
	}
	if got.Latitude == nil || *got.Latitude != lat {
		t.Errorf("Latitude = %v, want %v", got.Latitude, lat)
	}

	n, err := CountRegisteredCitizens(ctx, db)
	if err != nil {
		t.Fatalf("CountRegisteredCitizens: %v", err)
	}
	if n != 1 {
		t.Errorf("registered count = %d, want 1", n)
	}
}

func TestUpdateCitizenFields_Missing(t *testing.T) {
	db := newTestDB(t)

	err := UpdateCitizenFields(context.Background(), db, "nope", map[string]any{"village": "Saswad"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
