package database

import (
	"context"
	"errors"
	"testing"

	"gorm.io/gorm"
)

type widgetModel struct {
	ID   int64  `gorm:"primaryKey"`
	Name string `gorm:"not null"`
	Size int64
}

func (widgetModel) TableName() string { return "widgets" }

type widget struct {
	name string
	size int64
}

type widgetMapper struct{}

func (widgetMapper) ToDomain(e widgetModel) widget { return widget{name: e.Name, size: e.Size} }
func (widgetMapper) ToModel(d widget) widgetModel  { return widgetModel{Name: d.name, Size: d.size} }

func seedWidgets(t *testing.T) Database {
	t.Helper()
	db, _ := openFileDB(t)
	ctx := context.Background()
	if err := db.Session(ctx).AutoMigrate(&widgetModel{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	for _, w := range []widgetModel{{Name: "a", Size: 10}, {Name: "b", Size: 30}, {Name: "c", Size: 20}} {
		if err := db.Session(ctx).Create(&w).Error; err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	return db
}

func TestRepository_FindOrderedAndLimited(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository[widget, widgetModel](seedWidgets(t), widgetMapper{}, "widget")

	got, err := repo.Find(ctx, NewQuery().OrderDesc("size").Limit(2))
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(got) != 2 || got[0].name != "b" || got[1].name != "c" {
		t.Errorf("Find() = %+v, want [b c]", got)
	}
}

func TestRepository_FindOne(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository[widget, widgetModel](seedWidgets(t), widgetMapper{}, "widget")

	w, err := repo.FindOne(ctx, NewQuery().Equal("name", "c"))
	if err != nil {
		t.Fatalf("FindOne: %v", err)
	}
	if w.size != 20 {
		t.Errorf("size = %d, want 20", w.size)
	}

	_, err = repo.FindOne(ctx, NewQuery().Equal("name", "missing"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRepository_CountAndExists(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository[widget, widgetModel](seedWidgets(t), widgetMapper{}, "widget")

	count, err := repo.Count(ctx, NewQuery().Limit(1))
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 3 {
		t.Errorf("Count() = %d, want 3 (limit must not apply)", count)
	}

	exists, err := repo.Exists(ctx, NewQuery().Equal("name", "zzz"))
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Error("Exists() = true for a missing name")
	}
}

func TestRepository_Scope(t *testing.T) {
	ctx := context.Background()
	scope := func(db *gorm.DB) *gorm.DB { return db.Where("size >= ?", 20) }
	repo := NewRepositoryWithScope[widget, widgetModel](seedWidgets(t), widgetMapper{}, "widget", scope)

	got, err := repo.Find(ctx, NewQuery().OrderAsc("size"))
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(got) != 2 || got[0].name != "c" {
		t.Errorf("Find() = %+v, want [c b]", got)
	}
}
